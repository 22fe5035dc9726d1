package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
)

const timeLayout = time.RFC3339

// MigrateReport is printed by migrate
type MigrateReport struct {
	Driver string `json:"driver"`
}

func (r MigrateReport) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "schema up to date (%s)\n", r.Driver)
	return err
}

// GrantReport is printed by grant
type GrantReport struct {
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	SessionID string `json:"session_id,omitempty"`
	Applied   bool   `json:"applied"`
	Balance   int64  `json:"balance"`
}

func (r GrantReport) RenderText(w io.Writer) error {
	if !r.Applied {
		_, err := fmt.Fprintf(w, "session %s already recorded for %s, balance %d\n", r.SessionID, r.UserID, r.Balance)
		return err
	}
	_, err := fmt.Fprintf(w, "granted %d credits to %s, balance %d\n", r.Amount, r.UserID, r.Balance)
	return err
}

// TransactionRow is one ledger entry in a balance report
type TransactionRow struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	JobID     string    `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BalanceReport is printed by balance
type BalanceReport struct {
	UserID       string           `json:"user_id"`
	Balance      int64            `json:"balance"`
	Transactions []TransactionRow `json:"transactions"`
}

// NewBalanceReport converts ledger rows, newest first
func NewBalanceReport(userID string, balance int64, txs []domain.CreditTransaction) BalanceReport {
	rows := make([]TransactionRow, 0, len(txs))
	for _, tx := range txs {
		row := TransactionRow{
			ID:        tx.ID,
			Type:      string(tx.Type),
			Amount:    tx.Amount,
			Reason:    tx.Reason,
			CreatedAt: tx.CreatedAt.UTC(),
		}
		if tx.JobID != nil {
			row.JobID = *tx.JobID
		}
		rows = append(rows, row)
	}
	return BalanceReport{UserID: userID, Balance: balance, Transactions: rows}
}

func (r BalanceReport) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "user %s balance %d\n", r.UserID, r.Balance); err != nil {
		return err
	}
	for _, tx := range r.Transactions {
		line := fmt.Sprintf("  %s %s %+d %s", tx.CreatedAt.Format(timeLayout), tx.Type, tx.Amount, tx.Reason)
		if tx.JobID != "" {
			line += " job=" + tx.JobID
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// AuditRow is the reconciliation of one user
type AuditRow struct {
	UserID       string `json:"user_id"`
	Balance      int64  `json:"balance"`
	LedgerSum    int64  `json:"ledger_sum"`
	Transactions int64  `json:"transactions"`
	Consistent   bool   `json:"consistent"`
}

// AuditReport is printed by audit
type AuditReport struct {
	Users        []AuditRow `json:"users"`
	Inconsistent int        `json:"inconsistent"`
}

// NewAuditReport counts the users whose cached balance drifted from the ledger
func NewAuditReport(results []domain.AuditResult) AuditReport {
	report := AuditReport{Users: make([]AuditRow, 0, len(results))}
	for _, res := range results {
		row := AuditRow{
			UserID:       res.UserID,
			Balance:      res.Balance,
			LedgerSum:    res.LedgerSum,
			Transactions: res.Transactions,
			Consistent:   res.Consistent(),
		}
		if !row.Consistent {
			report.Inconsistent++
		}
		report.Users = append(report.Users, row)
	}
	return report
}

func (r AuditReport) RenderText(w io.Writer) error {
	for _, u := range r.Users {
		status := "ok"
		if !u.Consistent {
			status = "MISMATCH"
		}
		if _, err := fmt.Fprintf(w, "%s balance=%d ledger=%d transactions=%d %s\n",
			u.UserID, u.Balance, u.LedgerSum, u.Transactions, status); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d users audited, %d inconsistent\n", len(r.Users), r.Inconsistent)
	return err
}

// StuckJob is a processing job without a recent heartbeat
type StuckJob struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Type            string     `json:"type"`
	Retries         int        `json:"retries"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
}

// StuckReport is printed by jobs stuck
type StuckReport struct {
	Before time.Time  `json:"before"`
	Jobs   []StuckJob `json:"jobs"`
}

// NewStuckReport converts the stale jobs found before the cutoff
func NewStuckReport(before time.Time, jobs []domain.Job) StuckReport {
	report := StuckReport{Before: before.UTC(), Jobs: make([]StuckJob, 0, len(jobs))}
	for _, job := range jobs {
		report.Jobs = append(report.Jobs, StuckJob{
			ID:              job.ID,
			UserID:          job.UserID,
			Type:            string(job.Type),
			Retries:         job.Retries,
			StartedAt:       utc(job.StartedAt),
			LastHeartbeatAt: utc(job.LastHeartbeatAt),
		})
	}
	return report
}

func (r StuckReport) RenderText(w io.Writer) error {
	for _, job := range r.Jobs {
		heartbeat := "never"
		if job.LastHeartbeatAt != nil {
			heartbeat = job.LastHeartbeatAt.Format(timeLayout)
		}
		if _, err := fmt.Fprintf(w, "%s user=%s type=%s retries=%d heartbeat=%s\n",
			job.ID, job.UserID, job.Type, job.Retries, heartbeat); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d stuck jobs with no heartbeat since %s\n", len(r.Jobs), r.Before.Format(timeLayout))
	return err
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
