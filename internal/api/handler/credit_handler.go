package handler

import (
	"net/http"

	"github.com/cuongbtq/jobledger/internal/api/dto"
	"github.com/gin-gonic/gin"
)

const recentTransactions = 50

// GetBalance handles GET /api/v1/credits
func (h *CreditHandler) GetBalance(c *gin.Context) {
	ctx := c.Request.Context()
	user := userID(c)

	balance, err := h.credits.Balance(ctx, user)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	txs, err := h.credits.Transactions(ctx, user, recentTransactions)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := dto.BalanceResponse{
		UserID:       user,
		Balance:      balance,
		Transactions: make([]dto.TransactionDTO, len(txs)),
	}
	for i, tx := range txs {
		out.Transactions[i] = dto.NewTransactionDTO(tx)
	}

	c.JSON(http.StatusOK, out)
}
