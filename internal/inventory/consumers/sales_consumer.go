package consumers

import (
	"context"

	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/logger"
	"github.com/scentflow/scentflow-backend/pkg/messaging"
)

// SalesQueue is the queue the inventory service reads point-of-sale events from.
const SalesQueue = "inventory-service.sales-events"

// SaleRecorder books sale receipts into stock.
type SaleRecorder interface {
	RecordSale(ctx context.Context, sale service.Sale) (bool, error)
	RecordVoid(ctx context.Context, sale service.Sale) (bool, error)
}

// SalesEventConsumer consumes point-of-sale events
type SalesEventConsumer struct {
	consumer *messaging.Consumer
	recorder SaleRecorder
	logger   *logger.Logger
}

// NewSalesEventConsumer creates a new sales event consumer
func NewSalesEventConsumer(rmq *messaging.RabbitMQ, recorder SaleRecorder, log *logger.Logger) (*SalesEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, SalesQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeSalesEvents, "sale.#"); err != nil {
		return nil, err
	}

	c := newSalesEventConsumer(recorder, log)
	c.consumer = consumer
	c.register(consumer)
	return c, nil
}

func newSalesEventConsumer(recorder SaleRecorder, log *logger.Logger) *SalesEventConsumer {
	return &SalesEventConsumer{
		recorder: recorder,
		logger:   log.WithComponent("sales_consumer"),
	}
}

func (c *SalesEventConsumer) register(consumer *messaging.Consumer) {
	consumer.RegisterHandler(messaging.EventSaleCompleted, c.handleSaleCompleted)
	consumer.RegisterHandler(messaging.EventSaleVoided, c.handleSaleVoided)
}

// Start starts consuming messages
func (c *SalesEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *SalesEventConsumer) handleSaleCompleted(ctx context.Context, event *messaging.Event) error {
	sale, err := decodeSale(event)
	if err != nil {
		return err
	}

	applied, err := c.recorder.RecordSale(ctx, sale)
	if err != nil {
		return err
	}
	c.logger.Info().
		Str("event_id", event.ID).
		Str("sale_number", sale.SaleNumber).
		Bool("applied", applied).
		Msg("received sale completed event")
	return nil
}

func (c *SalesEventConsumer) handleSaleVoided(ctx context.Context, event *messaging.Event) error {
	sale, err := decodeSale(event)
	if err != nil {
		return err
	}

	applied, err := c.recorder.RecordVoid(ctx, sale)
	if err != nil {
		return err
	}
	c.logger.Info().
		Str("event_id", event.ID).
		Str("sale_number", sale.SaleNumber).
		Bool("applied", applied).
		Msg("received sale voided event")
	return nil
}

func decodeSale(event *messaging.Event) (service.Sale, error) {
	var data messaging.SaleCompletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return service.Sale{}, err
	}

	sale := service.Sale{
		SaleNumber: data.SaleNumber,
		LocationID: data.LocationID,
		SoldAt:     data.SoldAt,
		Lines:      make([]service.SaleLine, 0, len(data.Items)),
	}
	for _, item := range data.Items {
		sale.Lines = append(sale.Lines, service.SaleLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return sale, nil
}
