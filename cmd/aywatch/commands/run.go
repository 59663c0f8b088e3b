package commands

import (
	"aywatch/internal/components/chrono"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/store"
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

const report_run_sweep = "run.sweep"

func init() {
	rootCmd.AddCommand(runCmd)
}

// sweep reloads settings changed by other processes before checking every page.
func (b *bot) sweep(ctx context.Context) {
	err := b.settings.Reload(ctx)
	if err != nil {
		b.tel.ReportWarning(report_run_sweep, err)
	}

	results := b.monitor.Sweep(ctx)
	for _, result := range results {
		if result.Skipped {
			slog.Info("page skipped", "page", result.Page.Label, "reason", result.Reason)
			continue
		}
		slog.Info("page checked", "page", result.Page.Label, "found", result.Found, "new", result.New, "seeded", result.Seeded)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Checks every enabled page now and then on the configured interval until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		otel, err := telemetry.Setup(ctx, "aywatch", config.Telemetry)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		defer otel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		b, err := openBot(ctx, telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer b.Close()

		if len(b.admins()) == 0 {
			return fmt.Errorf("ADMIN_CHAT_IDS is required")
		}
		me, err := b.telegram.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("reach telegram: %w", err)
		}

		go b.forwarder.Run(ctx)

		snapshot := b.settings.Snapshot()
		scheduler := chrono.NewScheduler(b.clock.Location(), b.forwarder, b.sweep)
		b.settings.Subscribe(func(s store.Snapshot) {
			b.fetcher.Apply(fetchSettings(s))
			err := scheduler.Reschedule(s.CheckInterval)
			if err != nil {
				b.tel.ReportWarning(report_run_sweep, err)
			}
		})
		scheduler.Start(ctx, snapshot.CheckInterval)

		slog.Info(
			"bot started",
			"username", me.Username,
			"interval", snapshot.CheckInterval.String(),
			"admins", len(snapshot.Admins),
		)
		scheduler.RunNow(ctx)

		<-ctx.Done()
		slog.Info("bot stopped")
		return nil
	},
}
