package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/intake"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

// General-mode negotiations have no round cap of their own, so the CLI
// stops after this many rounds unless told otherwise.
const defaultMaxRounds = 10

type negotiateOptions struct {
	oracle    string
	maxRounds int
	interval  time.Duration
	asJSON    bool
	raw       bool
}

func newNegotiateCmd(root *rootOptions) *cobra.Command {
	opts := &negotiateOptions{}

	cmd := &cobra.Command{
		Use:   "negotiate <scenario-file>",
		Short: "Run a scenario until the agents converge",
		Long: `Run a negotiation on a scenario file (yaml, toml or json), printing each
round and then the executive summary. Comparison scenarios also print the
vendor ranking.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNegotiate(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.oracle, "oracle", "", "oracle provider override (groq, openai, gemini, offline)")
	f.IntVar(&opts.maxRounds, "max-rounds", defaultMaxRounds, "stop after this many rounds (0 runs until convergence)")
	f.DurationVar(&opts.interval, "interval", 0, "pause between rounds (default from negotiation.auto_negotiate_interval_ms)")
	f.BoolVar(&opts.asJSON, "json", false, "print the final snapshot as JSON")
	f.BoolVar(&opts.raw, "raw", false, "print the executive summary as markdown")
	return cmd
}

func runNegotiate(cmd *cobra.Command, root *rootOptions, opts *negotiateOptions, path string) error {
	ctx := cmd.Context()

	scn, err := intake.LoadScenarioFile(path)
	if err != nil {
		return err
	}
	cfg, logger, err := root.loadWithOracle(cmd, opts.oracle)
	if err != nil {
		return err
	}
	if opts.maxRounds < 0 {
		return fmt.Errorf("--max-rounds must be >= 0")
	}
	cfg.Negotiation.AutoNegotiateMaxRounds = opts.maxRounds
	if cmd.Flags().Changed("interval") {
		cfg.Negotiation.AutoNegotiateIntervalMS = int(opts.interval.Milliseconds())
	}

	stack, err := newEngineStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.kernel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("kernel_shutdown_failed", "error", err.Error())
		}
	}()

	sess, err := stack.kernel.CreateSession(scn, stack.oracle)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !opts.asJSON {
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s (%s)", scn.Title, scn.Module)))
	}

	_, err = stack.kernel.AutoNegotiate(ctx, sess.ID(), func(r *negotiation.RoundResult) error {
		if !opts.asJSON {
			printRound(out, r)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("negotiation stopped: %w", err)
	}

	snap := sess.Engine().Snapshot()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return printOutcome(out, snap, opts.raw)
}
