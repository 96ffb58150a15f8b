package main

import (
	"github.com/spf13/cobra"

	"github.com/inferencegate/inferencegate/internal/config"
)

// globalFlags holds the persistent flags every subcommand reads.
type globalFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "inferencegate",
		Short:         "Recording reverse proxy for an OpenAI-compatible inference API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml (default ./config.yaml)")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "enable debug-level logging")

	root.AddCommand(
		newStartCmd(flags),
		newReplayCmd(flags),
		newCacheCmd(flags),
		newConfigCmd(flags),
		newTestGateCmd(flags),
		newTestUpstreamCmd(flags),
	)

	return root
}

// loadConfig resolves and loads configuration per the --config flag,
// applying the global --verbose override last since CLI flags win over
// every other layer.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(config.Path(flags.configPath))
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

