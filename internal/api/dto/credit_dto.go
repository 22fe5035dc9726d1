package dto

import (
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
)

type BalanceResponse struct {
	UserID       string           `json:"user_id"`
	Balance      int64            `json:"balance"`
	Transactions []TransactionDTO `json:"transactions"`
}

type TransactionDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	JobID     string `json:"job_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func NewTransactionDTO(tx domain.CreditTransaction) TransactionDTO {
	out := TransactionDTO{
		ID:        tx.ID,
		Type:      string(tx.Type),
		Amount:    tx.Amount,
		Reason:    tx.Reason,
		CreatedAt: tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.JobID != nil {
		out.JobID = *tx.JobID
	}
	return out
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
