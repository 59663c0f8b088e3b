package commands

import (
	"aywatch/internal/components/restydump"
	"aywatch/internal/components/telemetry"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var dumpDir string

func init() {
	checkCmd.Flags().StringVar(&dumpDir, "dump", "", "A directory to write every fetched page to, it is emptied first.")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [--dump <dir>]",
	Short: "Checks every enabled page once and prints what was found.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBot(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer b.Close()
		go b.forwarder.Run(cmd.Context())

		if dumpDir != "" {
			output, err := restydump.NewDirOutput(dumpDir)
			if err != nil {
				return fmt.Errorf("prepare dump directory: %w", err)
			}
			b.fetcher.Dump(output)
		}

		results := b.monitor.Sweep(cmd.Context())

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Page", "Found", "New", "Status"})
		for _, result := range results {
			status := "ok"
			switch {
			case result.Skipped:
				status = "skipped: " + result.Reason
			case result.Seeded:
				status = "seeded"
			}
			t.AppendRow(table.Row{result.Page.ID, result.Page.Label, result.Found, result.New, status})
		}
		t.Render()
		return nil
	},
}
