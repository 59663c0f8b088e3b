package commands

import (
	"aywatch/internal/components/telemetry"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var recentLimit int

func init() {
	historyRecentCmd.Flags().IntVar(&recentLimit, "limit", 10, "How many lots to show.")
	historyCmd.AddCommand(historyRecentCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspects the recorded lots.",
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent <id | label> [--limit <n>]",
	Short: "Shows the lots most recently recorded for a page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		page, err := resolvePage(cmd.Context(), s.pages, args[0])
		if err != nil {
			return err
		}
		records, err := s.history.Recent(cmd.Context(), page.Url, recentLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.SetTitle(page.Label)
		t.AppendHeader(table.Row{"Captured", "Title", "Price", "Photos", "URL"})
		for _, record := range records {
			t.AppendRow(table.Row{
				record.CapturedAt.In(s.clock.Location()).Format(time.DateTime),
				record.Listing.Title,
				record.Listing.Price,
				len(record.Listing.Images()),
				record.Listing.Url,
			})
		}
		t.Render()
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forgets every recorded lot, the next check of each page records its lots again without notifying.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		err = s.history.Clear(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("history cleared")
		return nil
	},
}
