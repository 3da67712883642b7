package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/smartnotifier/internal/app"
	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

var (
	rulePackage string
	ruleChannel string
	ruleTitle   string
	ruleVoice   string
	ruleLabel   string
	ruleEnabled bool
)

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"rule"},
	Short:   "Manage speech rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in the preferred order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rules, err := a.Rules(ctx)
			if err != nil {
				return err
			}
			out.Rules(rules)
			return nil
		})
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule",
	Long: `Adds a rule for a package channel. An empty --title matches every
notification of the channel; an empty --voice speaks "<app> notification".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rule, err := a.AddRule(ctx, domain.Rule{
				PackageName: rulePackage,
				AppLabel:    ruleLabel,
				ChannelID:   ruleChannel,
				SrhTitle:    ruleTitle,
				VoiceMsg:    ruleVoice,
				Enabled:     ruleEnabled,
			})
			if err != nil {
				return err
			}
			out.Success("Added rule %d", rule.ID)
			return nil
		})
	},
}

var rulesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the title, voice message or label of a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rule, err := a.Rule(ctx, id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("title") {
				rule.SrhTitle = ruleTitle
			}
			if flags.Changed("voice") {
				rule.VoiceMsg = ruleVoice
			}
			if flags.Changed("label") {
				rule.AppLabel = ruleLabel
			}
			if flags.Changed("enabled") {
				rule.Enabled = ruleEnabled
			}
			if err := a.UpdateRuleNow(ctx, rule); err != nil {
				return err
			}
			out.Success("Updated rule %d", id)
			return nil
		})
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], true) },
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], false) },
}

var rulesDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a rule",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.DeleteRule(ctx, id); err != nil {
				return err
			}
			out.Success("Deleted rule %d", id)
			return nil
		})
	},
}

var rulesDuplicateCmd = &cobra.Command{
	Use:   "duplicate <id>",
	Short: "Copy a rule as a disabled rule with a numbered title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			copied, err := a.DuplicateRule(ctx, id)
			if err != nil {
				return err
			}
			out.Success("Duplicated rule %d as %d (%q)", id, copied.ID, copied.SrhTitle)
			return nil
		})
	},
}

func init() {
	rulesAddCmd.Flags().StringVarP(&rulePackage, "package", "p", "", "package name (required)")
	rulesAddCmd.Flags().StringVar(&ruleChannel, "channel", "", "channel id (required)")
	rulesAddCmd.MarkFlagRequired("package")
	rulesAddCmd.MarkFlagRequired("channel")

	for _, c := range []*cobra.Command{rulesAddCmd, rulesEditCmd} {
		c.Flags().StringVarP(&ruleTitle, "title", "t", "", "title substring to match")
		c.Flags().StringVar(&ruleVoice, "voice", "", "voice message")
		c.Flags().StringVar(&ruleLabel, "label", "", "app label")
		c.Flags().BoolVar(&ruleEnabled, "enabled", true, "whether the rule speaks")
	}

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesEditCmd, rulesEnableCmd,
		rulesDisableCmd, rulesDeleteCmd, rulesDuplicateCmd)
}

func setEnabled(cmd *cobra.Command, arg string, enabled bool) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.SetEnabled(ctx, id, enabled); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		out.Success("Rule %d %s", id, state)
		return nil
	})
}

// withApp opens the database for one command.
func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	a := app.New(store, nil, log, app.WithSelfPackage(cfg.SelfPackage))
	defer a.Close(ctx)
	return fn(ctx, a)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
