package consumers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/logger"
	"github.com/scentflow/scentflow-backend/pkg/messaging"
)

type fakeRecorder struct {
	mu     sync.Mutex
	sales  []service.Sale
	voids  []service.Sale
	failOn string
}

func (f *fakeRecorder) RecordSale(ctx context.Context, sale service.Sale) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sale.SaleNumber == f.failOn {
		return false, errors.InvalidAdjustment("stock quantity cannot become negative")
	}
	f.sales = append(f.sales, sale)
	return true, nil
}

func (f *fakeRecorder) RecordVoid(ctx context.Context, sale service.Sale) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voids = append(f.voids, sale)
	return true, nil
}

func saleEvent(t *testing.T, eventType, saleNumber string) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(eventType, "pos-service", "corr-1", messaging.SaleCompletedEvent{
		SaleNumber: saleNumber,
		LocationID: "7b0c4f4e-8f0a-4d8e-9a55-1f0a3c1d2e3f",
		SoldAt:     time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC),
		Items: []messaging.SaleLine{
			{ProductID: "p-1", Quantity: decimal.NewFromInt(2)},
			{ProductID: "p-2", Quantity: decimal.RequireFromString("1.5")},
		},
	})
	require.NoError(t, err)
	return event
}

func TestSalesEventConsumer_HandleSaleCompleted(t *testing.T) {
	recorder := &fakeRecorder{}
	c := newSalesEventConsumer(recorder, logger.Nop())

	require.NoError(t, c.handleSaleCompleted(context.Background(), saleEvent(t, messaging.EventSaleCompleted, "S-1001")))

	require.Len(t, recorder.sales, 1)
	sale := recorder.sales[0]
	assert.Equal(t, "S-1001", sale.SaleNumber)
	assert.Equal(t, "7b0c4f4e-8f0a-4d8e-9a55-1f0a3c1d2e3f", sale.LocationID)
	require.Len(t, sale.Lines, 2)
	assert.True(t, sale.Lines[1].Quantity.Equal(decimal.RequireFromString("1.5")))
	assert.Empty(t, recorder.voids)
}

func TestSalesEventConsumer_HandleSaleVoided(t *testing.T) {
	recorder := &fakeRecorder{}
	c := newSalesEventConsumer(recorder, logger.Nop())

	require.NoError(t, c.handleSaleVoided(context.Background(), saleEvent(t, messaging.EventSaleVoided, "S-1002")))

	assert.Empty(t, recorder.sales)
	require.Len(t, recorder.voids, 1)
	assert.Equal(t, "S-1002", recorder.voids[0].SaleNumber)
}

func TestSalesEventConsumer_PropagatesRecorderError(t *testing.T) {
	recorder := &fakeRecorder{failOn: "S-1003"}
	c := newSalesEventConsumer(recorder, logger.Nop())

	err := c.handleSaleCompleted(context.Background(), saleEvent(t, messaging.EventSaleCompleted, "S-1003"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSalesEventConsumer_MalformedPayload(t *testing.T) {
	c := newSalesEventConsumer(&fakeRecorder{}, logger.Nop())

	event := &messaging.Event{Type: messaging.EventSaleCompleted, Data: json.RawMessage(`{"items": "nope"}`)}
	assert.Error(t, c.handleSaleCompleted(context.Background(), event))
}
