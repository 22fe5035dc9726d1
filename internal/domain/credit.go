package domain

import "time"

// TransactionType classifies a ledger row
type TransactionType string

const (
	TransactionPurchase  TransactionType = "purchase"
	TransactionDeduction TransactionType = "deduction"
	TransactionRefund    TransactionType = "refund"
)

// Ledger reasons
const (
	ReasonJobCharge           = "job_charge"
	ReasonJobFailureExhausted = "job_failure_exhausted"
	ReasonJobFailureFatal     = "job_failure_fatal"
	ReasonPurchase            = "purchase"
	ReasonAdminGrant          = "admin_grant"
)

// CreditTransaction is an append-only ledger row. The sum of a user's
// amounts equals the cached balance on the users row.
type CreditTransaction struct {
	ID                string          `db:"id"`
	UserID            string          `db:"user_id"`
	Type              TransactionType `db:"type"`
	Amount            int64           `db:"amount"`
	Reason            string          `db:"reason"`
	JobID             *string         `db:"job_id"`
	Metadata          string          `db:"metadata"`
	ExternalSessionID *string         `db:"external_session_id"`
	CreatedAt         time.Time       `db:"created_at"`
}

// User holds the cached balance projection.
type User struct {
	ID        string    `db:"id"`
	Credits   int64     `db:"credits"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// AuditResult compares the cached balance with the ledger sum for one user.
type AuditResult struct {
	UserID       string `db:"user_id"`
	Balance      int64  `db:"credits"`
	LedgerSum    int64  `db:"ledger_sum"`
	Transactions int64  `db:"transactions"`
}

// Consistent reports whether the projection matches the ledger.
func (a AuditResult) Consistent() bool {
	return a.Balance == a.LedgerSum
}
