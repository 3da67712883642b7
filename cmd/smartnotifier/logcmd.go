package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/smartnotifier/internal/app"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the notification log",
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged package channels, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			logs, err := a.Logs(ctx, logLimit)
			if err != nil {
				return err
			}
			out.Logs(logs)
			return nil
		})
	},
}

var logAddRuleCmd = &cobra.Command{
	Use:   "add-rule <log-id>",
	Short: "Create a disabled rule from a log entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rule, err := a.AddRuleFromLog(ctx, id)
			if err != nil {
				return err
			}
			out.Success("Added rule %d for %s (%q); enable it with `rules enable %d`",
				rule.ID, rule.AppLabel, rule.SrhTitle, rule.ID)
			return nil
		})
	},
}

func init() {
	logListCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "maximum entries (default: all kept)")
	logCmd.AddCommand(logListCmd, logAddRuleCmd)
}
