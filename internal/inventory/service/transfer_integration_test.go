package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/messaging"
)

func TestTransfer_FullWorkflow(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	wh := suite.Fixtures.Warehouse(t, ctx)
	kiosk := suite.Fixtures.Kiosk(t, ctx, wh.ID)
	product := suite.Fixtures.Product(t, ctx)
	suite.Fixtures.ProductStock(t, ctx, wh.ID, product.ID, 100)

	kioskStaff := staffAt(kiosk.ID)
	warehouseStaff := staffAt(wh.ID)

	// source defaults to the kiosk's parent warehouse
	transfer, err := s.transfers.Create(ctx, kioskStaff, service.CreateTransferInput{
		Items: []service.TransferLineInput{{ItemID: product.ID, Quantity: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)
	assert.Equal(t, wh.ID, transfer.FromLocationID)
	assert.Equal(t, repository.TransferRequested, transfer.Status)
	assert.Regexp(t, `^TRF-\d{8}-001$`, transfer.TransferNumber)

	transfer, err = s.transfers.Approve(ctx, warehouseStaff, transfer.ID, service.TransferStageInput{})
	require.NoError(t, err)
	assert.Equal(t, repository.TransferApproved, transfer.Status)

	reserved, err := s.ledger.GetStock(ctx, productKey(wh.ID, product.ID))
	require.NoError(t, err)
	assert.Equal(t, "50", reserved.ReservedQuantity.String())

	transfer, err = s.transfers.Dispatch(ctx, warehouseStaff, transfer.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferDispatched, transfer.Status)

	transfer, err = s.transfers.Receive(ctx, kioskStaff, transfer.ID, service.TransferStageInput{})
	require.NoError(t, err)
	assert.Equal(t, repository.TransferReceived, transfer.Status)

	source, err := s.ledger.GetStock(ctx, productKey(wh.ID, product.ID))
	require.NoError(t, err)
	assert.Equal(t, "50", source.Quantity.String())
	assert.True(t, source.ReservedQuantity.IsZero())

	dest, err := s.ledger.GetStock(ctx, productKey(kiosk.ID, product.ID))
	require.NoError(t, err)
	assert.Equal(t, "50", dest.Quantity.String())

	assertConsistent(t, s, productKey(wh.ID, product.ID))
	assertConsistent(t, s, productKey(kiosk.ID, product.ID))

	moves, err := s.ledger.MovementsByReference(ctx, transfer.TransferNumber)
	require.NoError(t, err)
	assert.Len(t, moves[repository.CatalogProducts], 2)

	for _, eventType := range []string{
		messaging.EventTransferRequested,
		messaging.EventTransferApproved,
		messaging.EventTransferDispatched,
		messaging.EventTransferReceived,
	} {
		s.published.AssertEventPublished(t, eventType)
	}
}

func TestTransfer_ApproveReportsEveryShortage(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	wh := suite.Fixtures.Warehouse(t, ctx)
	kiosk := suite.Fixtures.Kiosk(t, ctx, wh.ID)
	stocked := suite.Fixtures.Product(t, ctx)
	short := suite.Fixtures.Product(t, ctx)
	oil := suite.Fixtures.RawMaterial(t, ctx, "oil")
	suite.Fixtures.ProductStock(t, ctx, wh.ID, stocked.ID, 100)
	suite.Fixtures.ProductStock(t, ctx, wh.ID, short.ID, 20)
	suite.Fixtures.MaterialStock(t, ctx, wh.ID, oil.ID, decimal.NewFromInt(10))

	transfer, err := s.transfers.Create(ctx, staffAt(kiosk.ID), service.CreateTransferInput{
		Items: []service.TransferLineInput{
			{ItemID: stocked.ID, Quantity: decimal.NewFromInt(10)},
			{ItemID: short.ID, Quantity: decimal.NewFromInt(30)},
			{ItemType: repository.ItemTypeRawMaterial, ItemID: oil.ID, Quantity: decimal.NewFromInt(25)},
		},
	})
	require.NoError(t, err)
	s.published.Reset()

	_, err = s.transfers.Approve(ctx, admin(), transfer.ID, service.TransferStageInput{})
	require.Error(t, err)
	s.published.AssertNoEventsPublished(t)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(appErr, errors.ErrInsufficientStock))
	require.Len(t, appErr.Shortages, 2)

	shortfalls := map[string]string{}
	for _, sh := range appErr.Shortages {
		shortfalls[sh.ItemID] = sh.Shortfall.String()
	}
	assert.Equal(t, map[string]string{short.ID: "10", oil.ID: "15"}, shortfalls)

	// nothing stays reserved and the transfer is still requested
	level, err := s.ledger.GetStock(ctx, productKey(wh.ID, stocked.ID))
	require.NoError(t, err)
	assert.True(t, level.ReservedQuantity.IsZero())

	got, err := s.transfers.Get(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferRequested, got.Status)
}

func TestTransfer_PartialApprovalAndShortReceipt(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	wh := suite.Fixtures.Warehouse(t, ctx)
	kiosk := suite.Fixtures.Kiosk(t, ctx, wh.ID)
	product := suite.Fixtures.Product(t, ctx)
	suite.Fixtures.ProductStock(t, ctx, wh.ID, product.ID, 100)

	transfer, err := s.transfers.Create(ctx, staffAt(kiosk.ID), service.CreateTransferInput{
		Items: []service.TransferLineInput{{ItemID: product.ID, Quantity: decimal.NewFromInt(40)}},
	})
	require.NoError(t, err)

	_, err = s.transfers.Approve(ctx, admin(), transfer.ID, service.TransferStageInput{
		Quantities: map[string]decimal.Decimal{product.ID: decimal.NewFromInt(30)},
	})
	require.NoError(t, err)
	_, err = s.transfers.Dispatch(ctx, admin(), transfer.ID, nil)
	require.NoError(t, err)
	received, err := s.transfers.Receive(ctx, admin(), transfer.ID, service.TransferStageInput{
		Quantities: map[string]decimal.Decimal{product.ID: decimal.NewFromInt(28)},
	})
	require.NoError(t, err)
	require.Len(t, received.Items, 1)
	assert.Equal(t, "2", received.Items[0].Discrepancy().String())

	source, err := s.ledger.GetStock(ctx, productKey(wh.ID, product.ID))
	require.NoError(t, err)
	assert.Equal(t, "70", source.Quantity.String())

	dest, err := s.ledger.GetStock(ctx, productKey(kiosk.ID, product.ID))
	require.NoError(t, err)
	assert.Equal(t, "28", dest.Quantity.String())

	discrepancies, err := s.transfers.Discrepancies(ctx, kiosk.ID)
	require.NoError(t, err)
	assert.Len(t, discrepancies, 1)
}

func TestTransfer_CancelReleasesReservation(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	wh := suite.Fixtures.Warehouse(t, ctx)
	kiosk := suite.Fixtures.Kiosk(t, ctx, wh.ID)
	product := suite.Fixtures.Product(t, ctx)
	suite.Fixtures.ProductStock(t, ctx, wh.ID, product.ID, 10)

	transfer, err := s.transfers.Create(ctx, staffAt(kiosk.ID), service.CreateTransferInput{
		Items: []service.TransferLineInput{{ItemID: product.ID, Quantity: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	_, err = s.transfers.Approve(ctx, admin(), transfer.ID, service.TransferStageInput{})
	require.NoError(t, err)

	cancelled, err := s.transfers.Cancel(ctx, staffAt(kiosk.ID), transfer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, repository.TransferCancelled, cancelled.Status)

	level, err := s.ledger.GetStock(ctx, productKey(wh.ID, product.ID))
	require.NoError(t, err)
	assert.True(t, level.ReservedQuantity.IsZero())
	assert.Equal(t, "10", level.Quantity.String())

	t.Run("terminal transfers reject further transitions", func(t *testing.T) {
		_, err := s.transfers.Dispatch(ctx, admin(), transfer.ID, nil)
		assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition))
	})
}

func TestTransfer_RejectRequiresReason(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	wh := suite.Fixtures.Warehouse(t, ctx)
	kiosk := suite.Fixtures.Kiosk(t, ctx, wh.ID)
	product := suite.Fixtures.Product(t, ctx)

	transfer, err := s.transfers.Create(ctx, staffAt(kiosk.ID), service.CreateTransferInput{
		Items: []service.TransferLineInput{{ItemID: product.ID, Quantity: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)

	_, err = s.transfers.Reject(ctx, admin(), transfer.ID, "  ")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = s.transfers.Reject(ctx, staffAt(kiosk.ID), transfer.ID, "no stock")
	assert.True(t, errors.Is(err, errors.ErrForbidden), "only the source may reject")

	rejected, err := s.transfers.Reject(ctx, staffAt(wh.ID), transfer.ID, "no stock")
	require.NoError(t, err)
	assert.Equal(t, repository.TransferRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "no stock", *rejected.RejectionReason)
}
