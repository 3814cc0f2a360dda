package database_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
		retryable  bool
	}{
		{"lock timeout", &pq.Error{Code: "55P03"}, "CONCURRENCY_CONFLICT", http.StatusConflict, true},
		{"serialization failure", &pq.Error{Code: "40001"}, "CONCURRENCY_CONFLICT", http.StatusConflict, true},
		{"deadlock wrapped", fmt.Errorf("lock stock: %w", &pq.Error{Code: "40P01"}), "CONCURRENCY_CONFLICT", http.StatusConflict, true},
		{"negative quantity check", &pq.Error{Code: "23514", Constraint: "location_stock_quantity_non_negative"}, "INVALID_ADJUSTMENT", http.StatusBadRequest, false},
		{"reserved above quantity", &pq.Error{Code: "23514", Constraint: "raw_material_stock_reserved_within_quantity"}, "INVALID_ADJUSTMENT", http.StatusBadRequest, false},
		{"duplicate sku", &pq.Error{Code: "23505", Constraint: "products_sku_key"}, "CONFLICT", http.StatusConflict, false},
		{"missing reference", &pq.Error{Code: "23503"}, "BAD_REQUEST", http.StatusBadRequest, false},
		{"not null", &pq.Error{Code: "23502", Column: "location_id"}, "VALIDATION_ERROR", http.StatusBadRequest, false},
		{"malformed uuid", &pq.Error{Code: "22P02"}, "VALIDATION_ERROR", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := database.MapPQError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode)
			assert.Equal(t, tt.retryable, appErr.Retryable)
		})
	}
}

func TestMapPQError_Unmapped(t *testing.T) {
	assert.Nil(t, database.MapPQError(fmt.Errorf("plain error")))
	assert.Nil(t, database.MapPQError(&pq.Error{Code: "42601"}))
}

func TestIsConcurrencyError(t *testing.T) {
	assert.True(t, database.IsConcurrencyError(&pq.Error{Code: "55P03"}))
	assert.False(t, database.IsConcurrencyError(&pq.Error{Code: "23505"}))
	assert.False(t, database.IsConcurrencyError(errors.ErrConflict))
}
