package commands

import (
	"aywatch/internal/components/telemetry"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	adminsCmd.AddCommand(adminsListCmd)
	adminsCmd.AddCommand(adminsAddCmd)
	adminsCmd.AddCommand(adminsRemoveCmd)
	rootCmd.AddCommand(adminsCmd)
}

func printAdmins(admins []int64) {
	t := newTable()
	t.AppendHeader(table.Row{"Chat ID"})
	for _, id := range admins {
		t.AppendRow(table.Row{id})
	}
	t.Render()
}

func parseChatId(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a chat id", value)
	}
	return id, nil
}

var adminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manages the chats that receive notifications and alerts.",
}

var adminsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the admin chat ids.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		printAdmins(s.settings.Snapshot().Admins)
		return nil
	},
}

var adminsAddCmd = &cobra.Command{
	Use:   "add <chat id>",
	Short: "Adds an admin chat.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseChatId(args[0])
		if err != nil {
			return err
		}
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		admins, err := s.settings.AddAdmin(cmd.Context(), id)
		if err != nil {
			return err
		}
		printAdmins(admins)
		return nil
	},
}

var adminsRemoveCmd = &cobra.Command{
	Use:   "remove <chat id>",
	Short: "Removes an admin chat, the last admin cannot be removed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseChatId(args[0])
		if err != nil {
			return err
		}
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		admins, err := s.settings.RemoveAdmin(cmd.Context(), id)
		if err != nil {
			return err
		}
		printAdmins(admins)
		return nil
	},
}
