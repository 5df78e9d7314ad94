package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expensetracker/internal/backend"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/sheets"
)

var version = "dev"

var errNoBackup = errors.New("no backup spreadsheet configured (set GOOGLE_SPREADSHEET_ID)")

// app is what every command works against.
type app struct {
	expenses *services.ExpenseService
	prefs    *services.PreferencesService
	backup   func(ctx context.Context) (sheets.BackupReader, error)
	close    func() error
}

// opener builds the app from the resolved settings.
type opener func(ctx context.Context, v *viper.Viper) (*app, error)

func main() {
	cli.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(openApp).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "expensectl",
		Short: "Track expenses from the terminal",
		Long: `expensectl reads and writes the same expense store as the HTTP server.
Mutations are published to the configured event bus so the backup worker
sees them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/expensectl/config.yaml)")
	flags.String("backend", config.DataSQLite, "storage backend (memory, sqlite, postgres)")
	flags.String("db", "./data/expenses.db", "SQLite database path")
	flags.String("dsn", "", "Postgres connection string")
	flags.String("events", config.EventsNone, "event bus (none, amqp, kafka)")
	flags.String("timezone", "", "IANA zone for dates without an offset")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	for _, key := range []string{"backend", "db", "dsn", "events", "timezone", "log-level"} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}
	// Fall back to the variables the server reads.
	_ = v.BindEnv("backend", "EXPENSES_BACKEND", "DATA_BACKEND")
	_ = v.BindEnv("db", "EXPENSES_DB", "SQLITE_DB_PATH")
	_ = v.BindEnv("dsn", "EXPENSES_DSN", "POSTGRES_DSN")
	_ = v.BindEnv("events", "EXPENSES_EVENTS", "EVENTS_BACKEND")
	_ = v.BindEnv("timezone", "EXPENSES_TIMEZONE", "APP_TIMEZONE")

	root.AddCommand(
		addCmd(v, open),
		listCmd(v, open),
		deleteCmd(v, open),
		clearCmd(v, open),
		exportCmd(v, open),
		importCmd(v, open),
		analyticsCmd(v, open),
		categoriesCmd(),
		prefsCmd(v, open),
		restoreCmd(v, open),
	)
	return root
}

func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".config", "expensectl"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("EXPENSES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cli.SetupLogger(v.GetString("log-level"), "text", log.ComponentCLI)
	return nil
}

// openApp opens the store selected by flags, env and config file. Event bus
// and spreadsheet settings come from the same environment as the server.
func openApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg := config.Load()
	cfg.DataBackend = v.GetString("backend")
	cfg.SQLiteDBPath = v.GetString("db")
	cfg.PostgresDSN = v.GetString("dsn")
	cfg.EventsBackend = v.GetString("events")
	if tz := v.GetString("timezone"); tz != "" {
		cfg.Timezone = tz
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	if backendCfg.Storage == backend.SQLiteStorage {
		if err := os.MkdirAll(filepath.Dir(backendCfg.SQLiteDBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	logger := log.FromContext(ctx).WithComponent(log.ComponentCLI)
	factory := backend.NewFactory(logger)
	backends, err := factory.OpenServer(ctx, backendCfg)
	if err != nil {
		return nil, err
	}

	expenses := services.NewExpenseService(backends.KV, backends.Publisher,
		services.WithLocation(cfg.Location()),
		services.WithLogger(logger))
	expenses.Load(ctx)

	return &app{
		expenses: expenses,
		prefs:    services.NewPreferencesService(backends.KV, logger),
		backup: func(ctx context.Context) (sheets.BackupReader, error) {
			if backendCfg.GoogleSpreadsheetID == "" {
				return nil, errNoBackup
			}
			return factory.NewBackup(ctx, backendCfg)
		},
		close: backends.Cleanup,
	}, nil
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, v *viper.Viper, open opener, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := open(ctx, v)
	if err != nil {
		return err
	}
	defer func() {
		if a.close != nil {
			err = errors.Join(err, a.close())
		}
	}()
	return fn(ctx, a)
}
