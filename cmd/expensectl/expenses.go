package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expensetracker/internal/analytics"
	"expensetracker/internal/core"
)

var errConfirmationRequired = errors.New("refusing to continue without --yes")

func addCmd(v *viper.Viper, open opener) *cobra.Command {
	var (
		category string
		date     string
		imageURI string
	)

	cmd := &cobra.Command{
		Use:   "add <amount> <description>",
		Short: "Record an expense",
		Example: `  expensectl add 12.50 "Lunch" --category food
  expensectl add 40 "Train ticket" --category transport --date 2025-03-18`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return err
			}
			if !core.IsKnownCategory(category) {
				return fmt.Errorf("unknown category %q (one of: %s)", category, strings.Join(core.CategoryIDs(), ", "))
			}

			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				when := a.expenses.Now()
				if date != "" {
					when, err = core.ParseDate(date, a.expenses.Location())
					if err != nil {
						return err
					}
				}
				exp, err := a.expenses.Add(ctx, core.Draft{
					Amount:      amount,
					Description: strings.Join(args[1:], " "),
					Category:    core.LookupCategory(category),
					Date:        core.FormatDate(when),
					ImageURI:    imageURI,
				})
				if err != nil {
					return err
				}
				currency := a.prefs.Get(ctx).Currency
				fmt.Fprintln(cmd.OutOrStdout(), formatSuccess(fmt.Sprintf("Added %s: %s %s",
					exp.ID, exp.Description, core.FormatCurrency(exp.Amount, currency))))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", core.FallbackCategoryID, "category id")
	cmd.Flags().StringVarP(&date, "date", "d", "", "when the expense occurred (default: now)")
	cmd.Flags().StringVar(&imageURI, "image", "", "receipt image URI")
	return cmd
}

func listCmd(v *viper.Viper, open opener) *cobra.Command {
	var (
		search   string
		category string
		from     string
		to       string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List expenses, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				loc := a.expenses.Location()
				opts := analytics.FilterOptions{
					Search:     search,
					CategoryID: category,
					Location:   loc,
				}
				var err error
				if opts.Start, err = parseBound(from, loc); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				if opts.End, err = parseBound(to, loc); err != nil {
					return fmt.Errorf("--to: %w", err)
				}

				res := a.expenses.Filter(opts)
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				renderExpenses(cmd.OutOrStdout(), res, a.prefs.Get(ctx).Currency, loc)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "match description or category name")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category id, or all")
	cmd.Flags().StringVar(&from, "from", "", "first day to include")
	cmd.Flags().StringVar(&to, "to", "", "last day to include")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func deleteCmd(v *viper.Viper, open opener) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete expenses by id",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				for _, id := range args {
					if err := a.expenses.Delete(ctx, id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), formatSuccess("Deleted "+id))
				}
				return nil
			})
		},
	}
}

func clearCmd(v *viper.Viper, open opener) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errConfirmationRequired
			}
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				n := len(a.expenses.Expenses())
				if err := a.expenses.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatSuccess(fmt.Sprintf("Removed %d expenses", n)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func exportCmd(v *viper.Viper, open opener) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all expenses as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format == "" {
				format = formatFromPath(output)
			}
			return withApp(cmd, v, open, func(_ context.Context, a *app) error {
				data, err := a.expenses.Export(format)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), formatSuccess(fmt.Sprintf("Exported %d expenses to %s", len(a.expenses.Expenses()), output)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default: from --output, else json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default: stdout)")
	return cmd
}

func importCmd(v *viper.Viper, open opener) *cobra.Command {
	var (
		format string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all expenses with the contents of a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errConfirmationRequired
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			if format == "" {
				format = formatFromPath(args[0])
			}
			return withApp(cmd, v, open, func(ctx context.Context, a *app) error {
				n, err := a.expenses.Import(ctx, data, format)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatSuccess(fmt.Sprintf("Imported %d expenses", n)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default: from the file extension)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm replacing the current list")
	return cmd
}

func parseBound(s string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := core.ParseDate(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
