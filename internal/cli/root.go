// Package cli implements ledgerctl, the operator command line for the job
// ledger database.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/cuongbtq/jobledger/internal/config"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/cuongbtq/jobledger/shared/database"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for ledgerctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and maintain the job credit ledger",
		Long: `ledgerctl operates directly on the job ledger database.

It applies the schema, grants credits, reconciles cached balances against
the ledger and lists jobs whose workers stopped sending heartbeats.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the error and picks the exit code
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "configs/worker-service/config.yaml", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log database activity to stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewGrantCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))

	return cmd
}

// env is what a command needs to reach the database
type env struct {
	cfg    *config.Config
	client *database.Client
	store  *storage.Storage
	ledger *ledger.Ledger
	out    *OutputFormatter
}

func (e *env) Close() error {
	return e.client.Close()
}

// openEnv loads the configuration and connects to the database. The schema
// is applied so every command works against a fresh database.
func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.ValidateDatabaseConfig(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	client, err := database.NewClient(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to database", err)
	}

	if err := storage.Migrate(ctx, client.GetDB()); err != nil {
		client.Close()
		return nil, WrapExitError(ExitCommandError, "failed to migrate database", err)
	}

	return &env{
		cfg:    cfg,
		client: client,
		store:  storage.NewStorage(client.GetDB(), logger),
		ledger: ledger.New(client.GetDB(), logger),
		out: &OutputFormatter{
			Format: opts.Format,
			Writer: cmd.OutOrStdout(),
		},
	}, nil
}
