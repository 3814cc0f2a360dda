package events

import (
	"context"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/logger"
	"github.com/scentflow/scentflow-backend/pkg/messaging"
)

// Source is the event source recorded in every envelope.
const Source = "inventory-service"

// InventoryEventPublisher publishes inventory-related events. A nil publisher
// is valid and drops every event, which is how tests and tools run without a
// broker. Publishing happens after commit and failures are only logged.
type InventoryEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher creates a new inventory event publisher
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, Source, log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing publisher.
func NewWithPublisher(publisher messaging.EventPublisher, log *logger.Logger) *InventoryEventPublisher {
	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("events"),
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *InventoryEventPublisher) PublishStockAdjusted(ctx context.Context, key repository.StockKey, m *repository.Movement, level *repository.StockLevel) {
	if p == nil {
		return
	}

	data := messaging.StockAdjustedEvent{
		Catalog:       string(key.Catalog),
		ItemID:        key.ItemID,
		LocationID:    key.LocationID,
		MovementType:  string(m.MovementType),
		Delta:         m.Quantity,
		QuantityAfter: m.QuantityAfter,
		Reserved:      level.ReservedQuantity,
		ReferenceType: referenceType(m),
		ReferenceID:   m.Reference,
		PerformedBy:   m.CreatedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", key.ItemID).Msg("failed to publish stock adjusted event")
	}
}

// PublishLowStock publishes a low stock event
func (p *InventoryEventPublisher) PublishLowStock(ctx context.Context, key repository.StockKey, itemName string, level *repository.StockLevel) {
	if p == nil {
		return
	}

	data := messaging.LowStockEvent{
		Catalog:      string(key.Catalog),
		ItemID:       key.ItemID,
		ItemName:     itemName,
		LocationID:   key.LocationID,
		Available:    level.Available(),
		ReorderLevel: level.ReorderLevel,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockLow, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", key.ItemID).Msg("failed to publish low stock event")
	}
}

var transferEventTypes = map[repository.TransferStatus]string{
	repository.TransferRequested:  messaging.EventTransferRequested,
	repository.TransferApproved:   messaging.EventTransferApproved,
	repository.TransferRejected:   messaging.EventTransferRejected,
	repository.TransferDispatched: messaging.EventTransferDispatched,
	repository.TransferReceived:   messaging.EventTransferReceived,
	repository.TransferCancelled:  messaging.EventTransferCancelled,
}

// PublishTransferStatus publishes the event matching the transfer's new status
func (p *InventoryEventPublisher) PublishTransferStatus(ctx context.Context, t *repository.Transfer, from repository.TransferStatus, actorID, reason string) {
	if p == nil {
		return
	}

	data := messaging.TransferStatusEvent{
		TransferID:     t.ID,
		TransferNumber: t.TransferNumber,
		FromLocationID: t.FromLocationID,
		ToLocationID:   t.ToLocationID,
		FromStatus:     string(from),
		Status:         string(t.Status),
		PerformedBy:    actorID,
		Reason:         reason,
	}

	if err := p.publisher.Publish(ctx, transferEventTypes[t.Status], data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer event")
	}
}

var productionEventTypes = map[repository.ProductionStatus]string{
	repository.ProductionDraft:      messaging.EventProductionCreated,
	repository.ProductionPending:    messaging.EventProductionSubmitted,
	repository.ProductionApproved:   messaging.EventProductionApproved,
	repository.ProductionRejected:   messaging.EventProductionRejected,
	repository.ProductionInProgress: messaging.EventProductionStarted,
	repository.ProductionCompleted:  messaging.EventProductionCompleted,
	repository.ProductionCancelled:  messaging.EventProductionCancelled,
}

// PublishProductionStatus publishes the event matching the order's new status.
// Orders created directly as pending publish created.
func (p *InventoryEventPublisher) PublishProductionStatus(ctx context.Context, o *repository.ProductionOrder, from repository.ProductionStatus, actorID, reason string) {
	if p == nil {
		return
	}

	eventType := productionEventTypes[o.Status]
	if from == "" {
		eventType = messaging.EventProductionCreated
	}

	data := messaging.ProductionStatusEvent{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		LocationID:     o.LocationID,
		ProductID:      o.ProductID,
		FromStatus:     string(from),
		Status:         string(o.Status),
		Quantity:       o.QuantityOrdered,
		ActualQuantity: o.QuantityProduced.Decimal,
		PerformedBy:    actorID,
		Reason:         reason,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", o.ID).Msg("failed to publish production event")
	}
}

func referenceType(m *repository.Movement) string {
	switch {
	case m.TransferID != nil:
		return "transfer"
	case m.ProductionOrderID != nil:
		return "production_order"
	case m.MovementType == repository.MovementSale || m.MovementType == repository.MovementReturn:
		return "sale"
	}
	return ""
}
