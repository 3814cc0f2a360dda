package migrations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/migrations"
)

func TestAll_OrderedAndNonEmpty(t *testing.T) {
	all, err := migrations.All()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	assert.Equal(t, "001_locations_catalog", all[0].Version)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
	for _, m := range all {
		assert.NotEmpty(t, m.SQL, m.Version)
	}
}

func TestAll_StockConstraintsPresent(t *testing.T) {
	all, err := migrations.All()
	require.NoError(t, err)

	var ledger string
	for _, m := range all {
		if m.Version == "002_stock_ledger" {
			ledger = m.SQL
		}
	}
	require.NotEmpty(t, ledger)

	for _, name := range []string{
		"location_stock_quantity_non_negative",
		"location_stock_reserved_within_quantity",
		"raw_material_stock_reserved_non_negative",
	} {
		assert.Contains(t, ledger, name)
	}
}
