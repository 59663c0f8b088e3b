package commands

import (
	"aywatch/internal/components/telemetry"
	"aywatch/internal/store"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var pageLabel string

func init() {
	pagesCmd.AddCommand(pagesListCmd)
	pagesAddCmd.Flags().StringVar(&pageLabel, "label", "", "The label of the page, derived from the url when empty.")
	pagesCmd.AddCommand(pagesAddCmd)
	pagesCmd.AddCommand(pagesToggleCmd)
	pagesCmd.AddCommand(pagesRenameCmd)
	pagesCmd.AddCommand(pagesRemoveCmd)
	pagesCmd.AddCommand(pagesSortCmd)
	rootCmd.AddCommand(pagesCmd)
}

func printPages(pages ...store.Page) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Label", "Enabled", "URL"})
	for _, page := range pages {
		enabled := "yes"
		if !page.Enabled {
			enabled = "no"
		}
		t.AppendRow(table.Row{page.ID, page.Label, enabled, page.Url})
	}
	t.Render()
}

func sortOrderNames() string {
	names := make([]string, 0, len(store.SortOrders))
	for name, hint := range store.SortOrders {
		names = append(names, fmt.Sprintf("%s (%s)", name, hint))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Manages the tracked catalogue pages.",
}

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every tracked page.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		pages, err := s.pages.List(cmd.Context())
		if err != nil {
			return err
		}
		printPages(pages...)
		return nil
	},
}

var pagesAddCmd = &cobra.Command{
	Use:   "add <url> [--label <label>]",
	Short: "Starts tracking a catalogue page, its current lots are recorded on the next check without notifying.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context(), telemetry.SlogAPI{})
		if err != nil {
			return err
		}
		defer s.Close()

		page, err := s.pages.Add(cmd.Context(), args[0], pageLabel)
		if err != nil {
			return err
		}
		printPages(page)
		return nil
	},
}

var pagesToggleCmd = &cobra.Command{
	Use:   "toggle <id | label>",
	Short: "Enables a disabled page or disables an enabled one.",
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
		page, err = s.pages.Toggle(cmd.Context(), page.ID)
		if err != nil {
			return err
		}
		printPages(page)
		return nil
	},
}

var pagesRenameCmd = &cobra.Command{
	Use:   "rename <id | label> <new label>",
	Short: "Changes the label of a page.",
	Args:  cobra.MinimumNArgs(2),
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
		page, err = s.pages.Rename(cmd.Context(), page.ID, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		printPages(page)
		return nil
	},
}

var pagesRemoveCmd = &cobra.Command{
	Use:   "remove <id | label>",
	Short: "Stops tracking a page.",
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
		removed, err := s.pages.Remove(cmd.Context(), page.ID)
		if err != nil {
			return err
		}
		fmt.Printf("removed %q (%s)\n", removed.Label, removed.Url)
		return nil
	},
}

var pagesSortCmd = &cobra.Command{
	Use:   "sort <id | label> <order>",
	Short: "Changes the order the catalogue page is sorted by.",
	Long:  "Changes the order the catalogue page is sorted by, one of: " + sortOrderNames() + ".",
	Args:  cobra.ExactArgs(2),
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
		page, err = s.pages.SetSortOrder(cmd.Context(), page.ID, args[1])
		if err != nil {
			return err
		}
		printPages(page)
		return nil
	},
}
