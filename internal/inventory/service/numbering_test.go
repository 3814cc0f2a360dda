package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/pkg/errors"
)

func TestDocumentNumbers(t *testing.T) {
	day := time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "TRF-20261016-001", FormatTransferNumber(day, 1))
	assert.Equal(t, "TRF-20261016-042", FormatTransferNumber(day, 42))
	assert.Equal(t, "TRF-20261016-1000", FormatTransferNumber(day, 1000))

	assert.Equal(t, "PRD202610160001", FormatOrderNumber(day, 1))
	assert.Equal(t, "PRD202610160137", FormatOrderNumber(day, 137))
}

func TestMergeSaleLines(t *testing.T) {
	lines, err := mergeSaleLines([]SaleLine{
		{ProductID: "b", Quantity: decimal.NewFromInt(2)},
		{ProductID: "a", Quantity: decimal.NewFromInt(1)},
		{ProductID: "b", Quantity: decimal.NewFromInt(3)},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "a", lines[0].ProductID)
	assert.Equal(t, "1", lines[0].Quantity.String())
	assert.Equal(t, "b", lines[1].ProductID)
	assert.Equal(t, "5", lines[1].Quantity.String())
}

func TestMergeSaleLines_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		lines []SaleLine
	}{
		{"empty", nil},
		{"missing product", []SaleLine{{Quantity: decimal.NewFromInt(1)}}},
		{"zero quantity", []SaleLine{{ProductID: "a", Quantity: decimal.Zero}}},
		{"negative quantity", []SaleLine{{ProductID: "a", Quantity: decimal.NewFromInt(-1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mergeSaleLines(tt.lines)
			assert.True(t, errors.Is(err, errors.ErrValidation))
		})
	}
}
