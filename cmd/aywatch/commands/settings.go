package commands

import (
	"aywatch/internal/components/telemetry"
	"aywatch/internal/store"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingCommand(
		"interval <minutes>",
		fmt.Sprintf("Sets how often pages are checked, %d to %d minutes.", store.MIN_CHECK_INTERVAL_MINUTES, store.MAX_CHECK_INTERVAL_MINUTES),
		func(ctx context.Context, s *store.Settings, value string) error {
			minutes, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("interval must be a whole number of minutes: %w", err)
			}
			return s.SetCheckInterval(ctx, minutes)
		},
	))
	settingsCmd.AddCommand(settingCommand(
		"timeout <seconds>",
		fmt.Sprintf("Sets the request timeout, up to %d seconds.", store.MAX_TIMEOUT_SECONDS),
		func(ctx context.Context, s *store.Settings, value string) error {
			secs, err := parseFloat(value)
			if err != nil {
				return err
			}
			return s.SetTimeout(ctx, secs)
		},
	))
	settingsCmd.AddCommand(settingCommand(
		"retries <count>",
		fmt.Sprintf("Sets how many times a failed request is retried, 0 to %d.", store.MAX_RETRIES),
		func(ctx context.Context, s *store.Settings, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("retries must be a whole number: %w", err)
			}
			return s.SetMaxRetries(ctx, n)
		},
	))
	settingsCmd.AddCommand(settingCommand(
		"backoff <factor>",
		fmt.Sprintf("Sets the retry backoff factor in seconds, 0 to %d.", store.MAX_BACKOFF_FACTOR),
		func(ctx context.Context, s *store.Settings, value string) error {
			factor, err := parseFloat(value)
			if err != nil {
				return err
			}
			return s.SetBackoffFactor(ctx, factor)
		},
	))
	settingsCmd.AddCommand(settingCommand(
		"delay <seconds>",
		fmt.Sprintf("Sets the pause between two requests to the same site, 0 to %d seconds.", store.MAX_DELAY_SECONDS),
		func(ctx context.Context, s *store.Settings, value string) error {
			secs, err := parseFloat(value)
			if err != nil {
				return err
			}
			return s.SetDelay(ctx, secs)
		},
	))
	rootCmd.AddCommand(settingsCmd)
}

// parseFloat accepts a decimal comma as well as a dot.
func parseFloat(value string) (float64, error) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", value)
	}
	return n, nil
}

func printSettings(snapshot store.Snapshot) {
	t := newTable()
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRows([]table.Row{
		{"interval", snapshot.CheckInterval.String()},
		{"timeout", snapshot.Timeout.String()},
		{"retries", snapshot.MaxRetries},
		{"backoff", strconv.FormatFloat(snapshot.BackoffFactor, 'f', -1, 64)},
		{"delay", snapshot.Delay.String()},
		{"admins", formatIds(snapshot.Admins)},
	})
	t.Render()
}

func formatIds(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func settingCommand(use, short string, apply func(ctx context.Context, s *store.Settings, value string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
			if err != nil {
				return err
			}
			defer s.Close()

			err = apply(cmd.Context(), s.settings, args[0])
			if err != nil {
				return err
			}
			printSettings(s.settings.Snapshot())
			return nil
		},
	}
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Shows and changes the runtime settings, a running bot picks changes up before its next check.",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Shows the settings in effect.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		printSettings(s.settings.Snapshot())
		return nil
	},
}
