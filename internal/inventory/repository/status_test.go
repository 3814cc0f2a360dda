package repository_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
)

func TestTransferStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from repository.TransferStatus
		to   repository.TransferStatus
		want bool
	}{
		{repository.TransferRequested, repository.TransferApproved, true},
		{repository.TransferRequested, repository.TransferRejected, true},
		{repository.TransferRequested, repository.TransferCancelled, true},
		{repository.TransferRequested, repository.TransferDispatched, false},
		{repository.TransferApproved, repository.TransferDispatched, true},
		{repository.TransferApproved, repository.TransferCancelled, true},
		{repository.TransferApproved, repository.TransferReceived, false},
		{repository.TransferDispatched, repository.TransferReceived, true},
		{repository.TransferDispatched, repository.TransferCancelled, false},
		{repository.TransferReceived, repository.TransferCancelled, false},
		{repository.TransferRejected, repository.TransferApproved, false},
		{repository.TransferCancelled, repository.TransferRequested, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestProductionStatus_Guards(t *testing.T) {
	all := []repository.ProductionStatus{
		repository.ProductionDraft,
		repository.ProductionPending,
		repository.ProductionApproved,
		repository.ProductionInProgress,
		repository.ProductionCompleted,
		repository.ProductionRejected,
		repository.ProductionCancelled,
	}

	allowed := func(guard func(repository.ProductionStatus) bool) []repository.ProductionStatus {
		var out []repository.ProductionStatus
		for _, s := range all {
			if guard(s) {
				out = append(out, s)
			}
		}
		return out
	}

	assert.Equal(t, []repository.ProductionStatus{repository.ProductionDraft}, allowed(repository.ProductionStatus.CanSubmit))
	assert.Equal(t, []repository.ProductionStatus{repository.ProductionPending}, allowed(repository.ProductionStatus.CanApprove))
	assert.Equal(t, []repository.ProductionStatus{repository.ProductionPending}, allowed(repository.ProductionStatus.CanReject))
	assert.Equal(t, []repository.ProductionStatus{repository.ProductionApproved}, allowed(repository.ProductionStatus.CanStart))
	assert.Equal(t, []repository.ProductionStatus{repository.ProductionApproved, repository.ProductionInProgress}, allowed(repository.ProductionStatus.CanExecute))
	assert.Equal(t,
		[]repository.ProductionStatus{repository.ProductionDraft, repository.ProductionPending, repository.ProductionApproved},
		allowed(repository.ProductionStatus.CanCancel))
	assert.Equal(t, []repository.ProductionStatus{repository.ProductionApproved, repository.ProductionInProgress}, allowed(repository.ProductionStatus.HoldsReservation))
}

func TestRecipe_CanProduceAt(t *testing.T) {
	r := &repository.Recipe{CanProduceAtWarehouse: true}
	assert.True(t, r.CanProduceAt(repository.LocationWarehouse))
	assert.False(t, r.CanProduceAt(repository.LocationKiosk))
}

func TestItemType_Catalog(t *testing.T) {
	assert.Equal(t, repository.CatalogProducts, repository.ItemTypeProduct.Catalog())
	assert.Equal(t, repository.CatalogRawMaterials, repository.ItemTypeRawMaterial.Catalog())
	assert.Equal(t, repository.CatalogProducts, repository.ItemType("").Catalog())
}
