package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inferencegate/inferencegate/internal/config"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold gateway configuration",
	}
	cmd.AddCommand(newConfigShowCmd(flags), newConfigInitCmd(flags), newConfigPathCmd(flags))
	return cmd
}

func newConfigShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration, with api_key redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			redacted := "(unset)"
			if cfg.APIKey != "" {
				redacted = "********"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "host: %s\n", cfg.Host)
			fmt.Fprintf(cmd.OutOrStdout(), "port: %d\n", cfg.Port)
			fmt.Fprintf(cmd.OutOrStdout(), "upstream: %s\n", cfg.Upstream)
			fmt.Fprintf(cmd.OutOrStdout(), "api_key: %s\n", redacted)
			fmt.Fprintf(cmd.OutOrStdout(), "cache_dir: %s\n", cfg.CacheDir)
			fmt.Fprintf(cmd.OutOrStdout(), "verbose: %t\n", cfg.Verbose)
			fmt.Fprintf(cmd.OutOrStdout(), "test_model: %s\n", cfg.TestModel)
			fmt.Fprintf(cmd.OutOrStdout(), "test_prompt: %s\n", cfg.TestPrompt)
			fmt.Fprintf(cmd.OutOrStdout(), "read_timeout: %s\n", cfg.ReadTimeout)
			fmt.Fprintf(cmd.OutOrStdout(), "write_timeout: %s\n", cfg.WriteTimeout)
			return nil
		},
	}
}

func newConfigInitCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml template",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(flags.configPath)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}

			d := config.Defaults()
			body, err := yaml.Marshal(d)
			if err != nil {
				return fmt.Errorf("rendering config template: %w", err)
			}
			header := "# inferencegate configuration\n# api_key is never read from this file — set OPENAI_API_KEY instead.\n"
			content := header + string(body)

			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func newConfigPathCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.Path(flags.configPath))
			return nil
		},
	}
}
