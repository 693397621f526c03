package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/forecast"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/intake"
)

func newForecastCmd(root *rootOptions) *cobra.Command {
	var (
		months int
		risk   float64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "forecast <scenario-file>",
		Short: "Project delivery risk for a scenario's constraints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if months < 1 || months > 24 {
				return fmt.Errorf("--months must be in [1,24]")
			}
			if risk < 0 || risk > 100 {
				return fmt.Errorf("--risk must be in [0,100]")
			}
			if _, _, err := root.load(cmd); err != nil {
				return err
			}
			scn, err := intake.LoadScenarioFile(args[0])
			if err != nil {
				return err
			}

			f := forecast.Project(scn.Constraints, risk, months)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(f)
			}
			return printForecast(cmd.OutOrStdout(), scn.Title, f)
		},
	}

	cmd.Flags().IntVar(&months, "months", forecast.DefaultMonths, "forecast horizon in months")
	cmd.Flags().Float64Var(&risk, "risk", 0, "current risk score (0 uses the default base risk)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the forecast as JSON")
	return cmd
}
