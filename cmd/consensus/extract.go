package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/intake"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

type extractOptions struct {
	oracle      string
	vendors     []string
	module      string
	title       string
	description string
	asJSON      bool
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <file>...",
		Short: "Build a scenario from documents",
		Long: `Extract constraint facts from documents and print a scenario that
negotiate can run. With --vendor, each file is a vendor proposal named by the
matching --vendor flag, in order, and the module defaults to vendor_eval.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.oracle, "oracle", "", "oracle provider override (groq, openai, gemini, offline)")
	f.StringArrayVar(&opts.vendors, "vendor", nil, "vendor name for the file at the same position (repeatable)")
	f.StringVar(&opts.module, "module", "", "scenario module (general, vendor_eval, roadmap_prd, policy_compliance, project_planning)")
	f.StringVar(&opts.title, "title", "", "scenario title")
	f.StringVar(&opts.description, "description", "", "scenario description")
	f.BoolVar(&opts.asJSON, "json", false, "print the scenario as JSON instead of YAML")
	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, opts *extractOptions, files []string) error {
	ctx := cmd.Context()

	if len(opts.vendors) > 0 && len(opts.vendors) != len(files) {
		return fmt.Errorf("got %d --vendor names for %d files", len(opts.vendors), len(files))
	}
	module := scenario.ModuleGeneral
	if len(opts.vendors) > 0 {
		module = scenario.ModuleVendorEval
	}
	if opts.module != "" {
		m, err := scenario.ModuleKindFromString(opts.module)
		if err != nil {
			return err
		}
		module = m
	}

	cfg, logger, err := root.loadWithOracle(cmd, opts.oracle)
	if err != nil {
		return err
	}
	provider, err := newProvider(ctx, cfg.Oracle, logger)
	if err != nil {
		return err
	}
	parser := newParser(provider, cfg.Oracle.Model, logger)

	builder := intake.NewScenarioBuilder(module)
	for i, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc := parser.Parse(ctx, filepath.Base(path), string(content))

		if len(opts.vendors) > 0 {
			builder.AddVendorDocument(doc, opts.vendors[i])
			continue
		}
		builder.AddDocument(doc)
	}

	scn, err := builder.Build(opts.title, opts.description)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(scn)
	}

	prediction := builder.Predict()
	fmt.Fprintf(out, "# likely winner: %s, likely sacrifice: %s\n", prediction.LikelyWinner, prediction.LikelySacrifice)
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(scn); err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}
	return enc.Close()
}
