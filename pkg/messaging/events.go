package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Stock ledger events
	EventStockAdjusted = "inventory.stock.adjusted"
	EventStockLow      = "inventory.stock.low"

	// Transfer events
	EventTransferRequested  = "inventory.transfer.requested"
	EventTransferApproved   = "inventory.transfer.approved"
	EventTransferRejected   = "inventory.transfer.rejected"
	EventTransferDispatched = "inventory.transfer.dispatched"
	EventTransferReceived   = "inventory.transfer.received"
	EventTransferCancelled  = "inventory.transfer.cancelled"

	// Production events
	EventProductionCreated   = "inventory.production.created"
	EventProductionSubmitted = "inventory.production.submitted"
	EventProductionApproved  = "inventory.production.approved"
	EventProductionRejected  = "inventory.production.rejected"
	EventProductionStarted   = "inventory.production.started"
	EventProductionCompleted = "inventory.production.completed"
	EventProductionCancelled = "inventory.production.cancelled"

	// Point-of-sale events consumed by the inventory service
	EventSaleCompleted = "sale.completed"
	EventSaleVoided    = "sale.voided"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeSalesEvents     = "sales.events"
	ExchangeDeadLetter      = "dlx.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock Events

// StockAdjustedEvent is published after every committed ledger movement
type StockAdjustedEvent struct {
	Catalog       string          `json:"catalog"`
	ItemID        string          `json:"item_id"`
	LocationID    string          `json:"location_id"`
	MovementType  string          `json:"movement_type"`
	Delta         decimal.Decimal `json:"delta"`
	QuantityAfter decimal.Decimal `json:"quantity_after"`
	Reserved      decimal.Decimal `json:"reserved"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	PerformedBy   string          `json:"performed_by"`
}

// LowStockEvent is published when available stock falls to or below the reorder level
type LowStockEvent struct {
	Catalog      string          `json:"catalog"`
	ItemID       string          `json:"item_id"`
	ItemName     string          `json:"item_name"`
	LocationID   string          `json:"location_id"`
	Available    decimal.Decimal `json:"available"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// Transfer Events

// TransferStatusEvent is published on every transfer status change
type TransferStatusEvent struct {
	TransferID     string `json:"transfer_id"`
	TransferNumber string `json:"transfer_number"`
	FromLocationID string `json:"from_location_id"`
	ToLocationID   string `json:"to_location_id"`
	FromStatus     string `json:"from_status,omitempty"`
	Status         string `json:"status"`
	PerformedBy    string `json:"performed_by"`
	Reason         string `json:"reason,omitempty"`
}

// Production Events

// ProductionStatusEvent is published on every production order status change
type ProductionStatusEvent struct {
	OrderID        string          `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	LocationID     string          `json:"location_id"`
	ProductID      string          `json:"product_id"`
	FromStatus     string          `json:"from_status,omitempty"`
	Status         string          `json:"status"`
	Quantity       decimal.Decimal `json:"quantity"`
	ActualQuantity decimal.Decimal `json:"actual_quantity,omitempty"`
	PerformedBy    string          `json:"performed_by"`
	Reason         string          `json:"reason,omitempty"`
}

// Sales Events

// SaleLine is one product line of a completed sale
type SaleLine struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// SaleCompletedEvent is published by the point of sale when a sale closes or is voided
type SaleCompletedEvent struct {
	SaleNumber string     `json:"sale_number"`
	LocationID string     `json:"location_id"`
	SoldAt     time.Time  `json:"sold_at"`
	Items      []SaleLine `json:"items"`
}
