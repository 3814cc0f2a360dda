package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/pkg/errors"
)

func TestNewShortage_ComputesShortfall(t *testing.T) {
	s := errors.NewShortage("mat-1", "Oud Oil", decimal.NewFromInt(20), decimal.NewFromInt(10))

	assert.True(t, s.Shortfall.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "Oud Oil", s.ItemName)
}

func TestInsufficientStock_CarriesShortages(t *testing.T) {
	err := errors.InsufficientStock(
		errors.NewShortage("p-1", "", decimal.NewFromInt(20), decimal.NewFromInt(10)),
	)

	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
	require.Len(t, err.Shortages, 1)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	assert.False(t, errors.IsRetryable(err))
}

func TestConcurrencyConflict_IsRetryable(t *testing.T) {
	cause := fmt.Errorf("lock timeout")
	err := fmt.Errorf("approve transfer: %w", errors.ConcurrencyConflict(cause))

	assert.True(t, errors.IsRetryable(err))
	assert.True(t, errors.Is(err, errors.ErrConcurrencyConflict))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONCURRENCY_CONFLICT", appErr.Code)
}

func TestInvalidStateTransition_Message(t *testing.T) {
	err := errors.InvalidStateTransition("transfer", "approved", "approve")

	assert.Equal(t, "cannot approve transfer in status approved", err.Message)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, "approved", err.Details["status"])
}
