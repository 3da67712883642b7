package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/smartnotifier/internal/app"
	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			order, err := a.SortOrder(ctx)
			if err != nil {
				return err
			}
			title, err := a.NotificationTitle(ctx)
			if err != nil {
				return err
			}
			out.Prefs(order, title)
			return nil
		})
	},
}

var prefsSortCmd = &cobra.Command{
	Use:       "sort newest|app",
	Short:     "Set the rule list order",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"newest", "app"},
	RunE: func(cmd *cobra.Command, args []string) error {
		order, ok := domain.ParseSortOrder(args[0])
		if !ok {
			return fmt.Errorf("unknown sort order %q (want newest or app)", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.SetSortOrder(ctx, order); err != nil {
				return err
			}
			out.Success("Rules are listed by %s", order)
			return nil
		})
	},
}

var prefsTitleCmd = &cobra.Command{
	Use:   "title <text>",
	Short: "Set the title of check notifications",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.SetNotificationTitle(ctx, title); err != nil {
				return err
			}
			out.Success("Check notifications are titled %q", strings.TrimSpace(title))
			return nil
		})
	},
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd, prefsSortCmd, prefsTitleCmd)
}
