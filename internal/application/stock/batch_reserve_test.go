package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

func TestReserveBatch_AllSucceed(t *testing.T) {
	f := newFixture(t)
	f.create(t, "SKU-A", 10, 2)
	f.create(t, "SKU-B", 20, 2)

	result, err := f.ledger.ReserveBatch(context.Background(), "ORDER-1", []ReserveLine{
		{SKUCode: "SKU-A", Quantity: 3},
		{SKUCode: "SKU-B", Quantity: 5},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", result.ReservationID)
	require.Len(t, result.Items, 2)
	assert.Equal(t, 7, result.Items[0].AvailableQuantity)
	assert.Equal(t, 15, result.Items[1].AvailableQuantity)
	assert.Equal(t, []string{"success"}, f.reporter.sagaResults)
}

func TestReserveBatch_CompensatesOnFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, "SKU-A", 10, 2)
	f.create(t, "SKU-B", 10, 2)
	f.create(t, "SKU-C", 1, 0)

	_, err := f.ledger.ReserveBatch(context.Background(), "ORDER-2", []ReserveLine{
		{SKUCode: "SKU-A", Quantity: 4},
		{SKUCode: "SKU-B", Quantity: 6},
		{SKUCode: "SKU-C", Quantity: 2},
	}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "SKU-C")

	// 已预留的行被释放
	assert.Equal(t, 0, f.record(t, "SKU-A").ReservedQuantity)
	assert.Equal(t, 0, f.record(t, "SKU-B").ReservedQuantity)
	assert.Equal(t, 0, f.record(t, "SKU-C").ReservedQuantity)
	assert.Equal(t, []string{"compensated"}, f.reporter.sagaResults)

	// 每个补偿都留下RELEASE流水
	views, _, err := f.query.ListMovements(context.Background(), "SKU-A", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "RELEASE", views[0].Type)
	assert.Equal(t, "ORDER-2", views[0].ReferenceID)
}

func TestReserveBatch_Validation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "SKU-A", 10, 2)

	_, err := f.ledger.ReserveBatch(context.Background(), "ORDER-3", nil, "")
	assert.ErrorIs(t, err, stock.ErrInvalidOperation)

	_, err = f.ledger.ReserveBatch(context.Background(), "ORDER-3", []ReserveLine{
		{SKUCode: "SKU-A", Quantity: 1},
		{SKUCode: "SKU-A", Quantity: 1},
	}, "")
	assert.ErrorIs(t, err, stock.ErrInvalidOperation)

	_, err = f.ledger.ReserveBatch(context.Background(), "ORDER-3", []ReserveLine{
		{SKUCode: "SKU-A", Quantity: 0},
	}, "")
	assert.ErrorIs(t, err, stock.ErrInvalidOperation)

	assert.Equal(t, 0, f.record(t, "SKU-A").ReservedQuantity)
}

func TestReserveBatch_UnknownSKU(t *testing.T) {
	f := newFixture(t)
	f.create(t, "SKU-A", 10, 2)

	_, err := f.ledger.ReserveBatch(context.Background(), "ORDER-4", []ReserveLine{
		{SKUCode: "SKU-A", Quantity: 2},
		{SKUCode: "SKU-MISSING", Quantity: 1},
	}, "")
	assert.ErrorIs(t, err, stock.ErrStockNotFound)
	assert.Equal(t, 0, f.record(t, "SKU-A").ReservedQuantity)
}
