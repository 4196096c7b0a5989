// Package insights provides the Aggregation Engine.
// It turns a batch of purchase orders into an aggregate snapshot of totals,
// group-bys and derived ratios.
package insights

import (
	"sort"

	"procurement-insight/decision/metrics"
	"procurement-insight/decision/order"
)

// TopSupplierLimit is the number of suppliers kept in Snapshot.TopSuppliers
const TopSupplierLimit = 3

// SupplierSpend is one entry of the top-suppliers ranking
type SupplierSpend struct {
	Name           string  `json:"name"`
	Spend          float64 `json:"spend"`
	SpendFormatted string  `json:"spend_formatted"`
}

// Snapshot is the derived summary of a batch of orders
type Snapshot struct {
	TotalOrders                int                `json:"total_orders"`
	TotalSpend                 float64            `json:"total_spend"`
	TotalSpendFormatted        string             `json:"total_spend_formatted"`
	CountsByStatus             map[string]int     `json:"counts_by_status"`
	SpendBySupplier            map[string]float64 `json:"spend_by_supplier"`
	TopSuppliers               []SupplierSpend    `json:"top_suppliers"`
	PendingCount               int                `json:"pending_count"`
	SupplierCount              int                `json:"supplier_count"`
	AverageOrderValue          float64            `json:"average_order_value"`
	AverageOrderValueFormatted string             `json:"average_order_value_formatted"`

	// supplierOrder lists supplier keys in order of first appearance
	supplierOrder []string
}

// StatusCount returns the number of orders in any of the given statuses.
func (s Snapshot) StatusCount(statuses ...string) int {
	total := 0
	for _, st := range statuses {
		total += s.CountsByStatus[st]
	}
	return total
}

// TopSupplierShare returns the leading supplier and its share of total spend.
// ok is false when there is no supplier.
func (s Snapshot) TopSupplierShare() (top SupplierSpend, share float64, ok bool) {
	if len(s.TopSuppliers) == 0 {
		return SupplierSpend{}, 0, false
	}
	top = s.TopSuppliers[0]
	if s.TotalSpend == 0 {
		return top, 0, true
	}
	return top, top.Spend / s.TotalSpend, true
}

// ComputeAggregate summarises a batch of orders.
// The input slice is never modified and the result never aliases it.
func ComputeAggregate(orders []order.Order) Snapshot {
	snap := Snapshot{
		CountsByStatus:  make(map[string]int),
		SpendBySupplier: make(map[string]float64),
		TopSuppliers:    make([]SupplierSpend, 0, TopSupplierLimit),
		supplierOrder:   make([]string, 0),
	}

	for _, o := range orders {
		amount := o.GrandTotal.Float64()
		supplier := o.SupplierKey()

		snap.TotalOrders++
		snap.TotalSpend += amount

		if _, seen := snap.SpendBySupplier[supplier]; !seen {
			snap.supplierOrder = append(snap.supplierOrder, supplier)
		}
		snap.SpendBySupplier[supplier] += amount
		snap.CountsByStatus[o.StatusKey()]++

		if o.IsPending() {
			snap.PendingCount++
		}
	}

	// The Unknown bucket counts as a supplier for compatibility with existing consumers.
	snap.SupplierCount = len(snap.SpendBySupplier)

	if snap.TotalOrders > 0 {
		snap.AverageOrderValue = snap.TotalSpend / float64(snap.TotalOrders)
	}

	snap.TopSuppliers = rankSuppliers(snap.supplierOrder, snap.SpendBySupplier, TopSupplierLimit)
	snap.TotalSpendFormatted = metrics.FormatCurrency(snap.TotalSpend)
	snap.AverageOrderValueFormatted = metrics.FormatCurrency(snap.AverageOrderValue)

	return snap
}

// rankSuppliers sorts by spend descending; ties keep first-seen order.
func rankSuppliers(order []string, spend map[string]float64, limit int) []SupplierSpend {
	ranked := make([]SupplierSpend, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, SupplierSpend{Name: name, Spend: spend[name]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Spend > ranked[j].Spend
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].SpendFormatted = metrics.FormatCurrency(ranked[i].Spend)
	}
	return ranked
}
