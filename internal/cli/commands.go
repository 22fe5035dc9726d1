package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			return e.out.Success(MigrateReport{Driver: e.client.Driver()})
		},
	}
}

// NewGrantCommand creates the grant command.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sessionID string
		reason    string
	)

	cmd := &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Add credits to a user",
		Long: `Add credits to a user as a purchase ledger entry.

With --session the grant is recorded at most once per session id, so a
payment webhook can be replayed safely.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("amount must be a positive integer, got %q", args[1]))
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			applied, err := e.ledger.Purchase(ctx, userID, amount, sessionID, reason)
			if err != nil {
				return WrapExitError(ExitCommandError, "grant failed", err)
			}

			balance, err := e.ledger.Balance(ctx, userID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read balance", err)
			}

			return e.out.Success(GrantReport{
				UserID:    userID,
				Amount:    amount,
				SessionID: sessionID,
				Applied:   applied,
				Balance:   balance,
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "external payment session id used for deduplication")
	cmd.Flags().StringVar(&reason, "reason", domain.ReasonAdminGrant, "ledger reason recorded on the entry")

	return cmd
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show a user's balance and recent ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]

			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			balance, err := e.ledger.Balance(ctx, userID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read balance", err)
			}

			txs, err := e.ledger.Transactions(ctx, userID, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read transactions", err)
			}

			return e.out.Success(NewBalanceReport(userID, balance, txs))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of ledger entries to show")

	return cmd
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [user-id]",
		Short: "Compare cached balances with the ledger",
		Long: `Compare each user's cached balance with the sum of their ledger entries.

Exits with status 1 when any user is inconsistent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			var results []domain.AuditResult
			if len(args) == 1 {
				res, err := e.ledger.Audit(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "audit failed", err)
				}
				results = append(results, *res)
			} else {
				results, err = e.ledger.AuditAll(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "audit failed", err)
				}
			}

			report := NewAuditReport(results)
			if err := e.out.Success(report); err != nil {
				return err
			}
			if report.Inconsistent > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d users inconsistent", report.Inconsistent))
			}
			return nil
		},
	}

	return cmd
}

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs",
	}

	cmd.AddCommand(newJobsStuckCommand(rootOpts))

	return cmd
}

func newJobsStuckCommand(rootOpts *RootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List processing jobs whose heartbeat went stale",
		Long: `List processing jobs whose heartbeat is older than --older-than.

The default threshold is worker.stale_after from the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			threshold := olderThan
			if threshold <= 0 {
				threshold = e.cfg.Worker.StaleAfter
			}
			before := e.store.Now().Add(-threshold)

			jobs, err := e.store.ListStaleJobs(ctx, before)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list stuck jobs", err)
			}

			return e.out.Success(NewStuckReport(before, jobs))
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "heartbeat age after which a job counts as stuck")

	return cmd
}
