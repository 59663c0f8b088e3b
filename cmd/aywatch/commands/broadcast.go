package commands

import (
	"aywatch/internal/components/telemetry"
	"aywatch/internal/delivery"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(broadcastCmd)
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <message>",
	Short: "Sends an announcement to every admin, the message may use Telegram's html markup.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBot(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer b.Close()

		outcomes := b.notifier.Broadcast(cmd.Context(), strings.Join(args, " "))

		t := newTable()
		t.AppendHeader(table.Row{"Chat ID", "Status", "Attempts", "Error"})
		for _, outcome := range outcomes {
			errText := ""
			if outcome.Err != nil {
				errText = outcome.Err.Error()
			}
			status := outcome.Status.String()
			if outcome.Status == delivery.STATUS_DELIVERED && outcome.Plain {
				status += " (plain text)"
			}
			t.AppendRow(table.Row{outcome.ChatID, status, outcome.Attempts, errText})
		}
		t.Render()
		return nil
	},
}
