package order

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal("Completed"))
	assert.True(t, IsTerminal("Closed"))
	assert.True(t, IsTerminal("Cancelled"))
	assert.True(t, IsTerminal(" Completed "))

	// case-sensitive contract
	assert.False(t, IsTerminal("completed"))
	assert.False(t, IsTerminal("CLOSED"))
	assert.False(t, IsTerminal("To Receive and Bill"))
	assert.False(t, IsTerminal(""))
}

func TestOrderUnmarshalLenientAmounts(t *testing.T) {
	payload := `[
		{"id": "PO-1", "supplier": "A", "grand_total": 1000, "status": "Completed"},
		{"id": "PO-2", "supplier": "B", "grand_total": "1,500.50"},
		{"id": "PO-3", "grand_total": null},
		{"id": "PO-4", "grand_total": "n/a"},
		{"id": "PO-5", "grand_total": {"nested": true}},
		{"id": "PO-6"},
		{"id": "PO-7", "grand_total": -250}
	]`

	var orders []Order
	require.NoError(t, json.Unmarshal([]byte(payload), &orders))
	require.Len(t, orders, 7)

	assert.Equal(t, 1000.0, orders[0].GrandTotal.Float64())
	assert.Equal(t, 1500.5, orders[1].GrandTotal.Float64())
	assert.Equal(t, 0.0, orders[2].GrandTotal.Float64())
	assert.Equal(t, 0.0, orders[3].GrandTotal.Float64())
	assert.Equal(t, 0.0, orders[4].GrandTotal.Float64())
	assert.Equal(t, 0.0, orders[5].GrandTotal.Float64())
	assert.Equal(t, -250.0, orders[6].GrandTotal.Float64())
}

func TestOrderUnmarshalAliases(t *testing.T) {
	payload := `{
		"name": "PUR-ORD-2026-00001",
		"supplier": "Tech Supplies",
		"transaction_date": "2026-01-05",
		"delivery_date": "2026-01-20",
		"status": "To Receive",
		"items": [{"item_code": "CPU", "qty": 2, "rate": "450"}]
	}`

	var o Order
	require.NoError(t, json.Unmarshal([]byte(payload), &o))

	assert.Equal(t, "PUR-ORD-2026-00001", o.ID)
	assert.Equal(t, "2026-01-05", o.Date)
	assert.Equal(t, "2026-01-20", o.ScheduleDate)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "CPU", o.Items[0].ItemCode)
	assert.Equal(t, 2.0, o.Items[0].Quantity.Float64())
	assert.Equal(t, 450.0, o.Items[0].Rate.Float64())
}

func TestOrderKeys(t *testing.T) {
	assert.Equal(t, UnknownKey, Order{}.SupplierKey())
	assert.Equal(t, UnknownKey, Order{Supplier: "   "}.SupplierKey())
	assert.Equal(t, "Acme", Order{Supplier: "Acme"}.SupplierKey())
	assert.Equal(t, UnknownKey, Order{}.StatusKey())
	assert.Equal(t, "Draft", Order{Status: "Draft"}.StatusKey())

	assert.True(t, Order{}.IsPending())
	assert.False(t, Order{Status: "Closed"}.IsPending())

	assert.Equal(t, "CPU", Item{ItemCode: "CPU", ItemName: "Processor"}.Key())
	assert.Equal(t, "Processor", Item{ItemName: "Processor"}.Key())
	assert.Equal(t, UnknownKey, Item{}.Key())
}

func TestFind(t *testing.T) {
	orders := []Order{{ID: "PO-1"}, {ID: "PO-2", Supplier: "B"}}

	found, ok := Find(orders, "PO-2")
	assert.True(t, ok)
	assert.Equal(t, "B", found.Supplier)

	_, ok = Find(orders, "PO-9")
	assert.False(t, ok)
}
