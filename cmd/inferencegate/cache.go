package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferencegate/inferencegate/internal/store"
)

func newCacheCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the recorded response cache",
	}
	cmd.AddCommand(newCacheListCmd(flags), newCacheInfoCmd(flags), newCacheClearCmd(flags))
	return cmd
}

func openCacheStore(flags *globalFlags) (*store.Store, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.CacheDir)
}

func newCacheListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openCacheStore(flags)
			if err != nil {
				return err
			}

			summaries, err := s.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMETHOD\tPATH\tSTATUS\tSTREAMING\tMODEL")
			for _, sm := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n", sm.ID, sm.Method, sm.Path, sm.Status, sm.IsStreaming, sm.Model)
			}
			return tw.Flush()
		},
	}
}

func newCacheInfoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <id>",
		Short: "Print one entry's metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openCacheStore(flags)
			if err != nil {
				return err
			}

			e, err := s.Get(args[0])
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("no entry with id %q", args[0])
			}

			// Bodies are omitted from this view; metadata only, matching the
			// CLI's "no bodies" contract.
			e.Request.Body.JSON = nil
			e.Request.Body.Raw = nil
			e.Response.Body = nil
			e.Response.BodyJSON = nil
			e.Chunks = nil

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(e)
		},
	}
}

func newCacheClearCmd(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprint(cmd.OutOrStdout(), "This will delete every cached entry. Continue? [y/N] ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, _ := reader.ReadString('\n')
				if !strings.EqualFold(strings.TrimSpace(line), "y") {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			s, err := openCacheStore(flags)
			if err != nil {
				return err
			}
			if err := s.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}
