package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/jobledger/internal/api/dto"
	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps a domain error to its HTTP status
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var validationErr *domain.ValidationError
	var rateErr *domain.RateLimitedError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: validationErr.Message,
			Field: validationErr.Field,
		})

	case errors.As(err, &rateErr):
		c.Header("Retry-After", strconv.Itoa(rateErr.ResetInSeconds()))
		c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{Error: rateErr.Error()})

	case errors.Is(err, domain.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, dto.ErrorResponse{Error: "insufficient credits"})

	case errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrArtifactNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not found"})

	case errors.Is(err, domain.ErrDuplicateIdempotencyKey):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "idempotency key already used"})

	default:
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
