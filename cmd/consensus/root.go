package main

import (
	"github.com/spf13/cobra"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/config"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "consensus",
		Short: "Multi-agent negotiation engine",
		Long: `consensus runs budget, timeline, quality and risk agents against a
decision scenario until they agree on a proposal, or ranks the vendors of a
comparison scenario. It can also serve the engine over gRPC and HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Configuration also reads CONSENSUS_* environment variables,
	// e.g. CONSENSUS_ORACLE_PROVIDER for oracle.provider.
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	cmd.AddCommand(
		newNegotiateCmd(opts),
		newServeCmd(opts),
		newExtractCmd(opts),
		newForecastCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and builds a logger writing to the command's
// error stream.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat), nil
}

// loadWithOracle is load plus an optional provider override.
func (o *rootOptions) loadWithOracle(cmd *cobra.Command, provider string) (*config.Config, logging.Logger, error) {
	cfg, logger, err := o.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	if provider != "" {
		if err := cfg.SetProvider(provider); err != nil {
			return nil, nil, err
		}
	}
	return cfg, logger, nil
}
