package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expensetracker/internal/analytics"
	"expensetracker/internal/core"
)

func analyticsCmd(v *viper.Viper, open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "analytics",
		Aliases: []string{"stats"},
		Short:   "Show this month's spending dashboard",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				snap, insights := a.expenses.Analytics()
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(struct {
						analytics.Snapshot
						Insights analytics.Insights `json:"insights"`
					}{snap, insights})
				}
				renderAnalytics(cmd.OutOrStdout(), snap, insights, a.prefs.Get(ctx).Currency, a.expenses.Location())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the expense categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				headerStyle.Render("ID"),
				headerStyle.Render("Icon"),
				headerStyle.Render("Name"))
			for _, c := range core.Categories() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Icon, c.Name)
			}
			return w.Flush()
		},
	}
}

func prefsCmd(v *viper.Viper, open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Show or change preferences",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the current preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				renderPreferences(cmd.OutOrStdout(), a.prefs.Get(ctx))
				return nil
			})
		},
	}

	var (
		currency      string
		language      string
		theme         string
		notifications bool
		backup        bool
	)
	set := &cobra.Command{
		Use:     "set",
		Short:   "Change one or more preferences",
		Example: "  expensectl prefs set --currency EUR --theme dark --backup=false",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch core.PreferencesPatch
			flags := cmd.Flags()
			if flags.Changed("currency") {
				patch.Currency = &currency
			}
			if flags.Changed("language") {
				patch.Language = &language
			}
			if flags.Changed("theme") {
				t := core.Theme(theme)
				patch.Theme = &t
			}
			if flags.Changed("notifications") {
				patch.Notifications = &notifications
			}
			if flags.Changed("backup") {
				patch.Backup = &backup
			}
			if patch == (core.PreferencesPatch{}) {
				return fmt.Errorf("nothing to change")
			}

			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				p, err := a.prefs.Update(ctx, patch)
				if err != nil {
					return err
				}
				renderPreferences(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
	set.Flags().StringVar(&currency, "currency", "", "ISO 4217 code")
	set.Flags().StringVar(&language, "language", "", "language tag")
	set.Flags().StringVar(&theme, "theme", "", "light, dark or system")
	set.Flags().BoolVar(&notifications, "notifications", true, "enable notifications")
	set.Flags().BoolVar(&backup, "backup", true, "enable spreadsheet backup")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				p, err := a.prefs.Reset(ctx)
				if err != nil {
					return err
				}
				renderPreferences(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}

	cmd.AddCommand(get, set, reset)
	return cmd
}

func restoreCmd(v *viper.Viper, open opener) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace all expenses with the spreadsheet backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errConfirmationRequired
			}
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				reader, err := a.backup(ctx)
				if err != nil {
					return err
				}
				list, err := reader.ReadSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("read backup: %w", err)
				}
				if len(list) == 0 {
					return fmt.Errorf("backup is empty, nothing restored")
				}
				data, err := json.Marshal(list)
				if err != nil {
					return fmt.Errorf("encode backup: %w", err)
				}
				n, err := a.expenses.Import(ctx, data, "json")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatSuccess(fmt.Sprintf("Restored %d expenses from backup", n)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm replacing the current list")
	return cmd
}
