package insights

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"procurement-insight/decision/order"
)

var (
	propSuppliers = []string{"", "Acme", "Globex", "Initech", "Umbrella"}
	propStatuses  = []string{"", "Draft", "To Receive", "To Bill", "To Receive and Bill", "Completed", "Closed", "Cancelled", "completed"}
)

// buildOrders builds order batches from parallel slices of picks and amounts.
func buildOrders(supplierPicks, statusPicks []int, amounts []float64) []order.Order {
	n := len(amounts)
	if len(supplierPicks) < n {
		n = len(supplierPicks)
	}
	if len(statusPicks) < n {
		n = len(statusPicks)
	}
	orders := make([]order.Order, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, order.Order{
			ID:         string(rune('a' + i%26)),
			Supplier:   propSuppliers[supplierPicks[i]%len(propSuppliers)],
			Status:     propStatuses[statusPicks[i]%len(propStatuses)],
			GrandTotal: order.Amount(amounts[i]),
		})
	}
	return orders
}

func TestAggregateInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	picks := gen.SliceOf(gen.IntRange(0, 100))
	amounts := gen.SliceOf(gen.Float64Range(-10000, 100000))

	properties.Property("status counts sum to total orders", prop.ForAll(
		func(sp, st []int, am []float64) bool {
			snap := ComputeAggregate(buildOrders(sp, st, am))
			sum := 0
			for _, c := range snap.CountsByStatus {
				sum += c
			}
			return sum == snap.TotalOrders
		},
		picks, picks, amounts,
	))

	properties.Property("supplier spend sums to total spend", prop.ForAll(
		func(sp, st []int, am []float64) bool {
			snap := ComputeAggregate(buildOrders(sp, st, am))
			sum := 0.0
			for _, v := range snap.SpendBySupplier {
				sum += v
			}
			return math.Abs(sum-snap.TotalSpend) <= 1e-6*math.Max(1, math.Abs(snap.TotalSpend))
		},
		picks, picks, amounts,
	))

	properties.Property("average order value is total over count", prop.ForAll(
		func(sp, st []int, am []float64) bool {
			snap := ComputeAggregate(buildOrders(sp, st, am))
			if snap.TotalOrders == 0 {
				return snap.AverageOrderValue == 0
			}
			return snap.AverageOrderValue == snap.TotalSpend/float64(snap.TotalOrders)
		},
		picks, picks, amounts,
	))

	properties.Property("pending count never exceeds total and top suppliers are bounded", prop.ForAll(
		func(sp, st []int, am []float64) bool {
			snap := ComputeAggregate(buildOrders(sp, st, am))
			return snap.PendingCount <= snap.TotalOrders &&
				len(snap.TopSuppliers) <= TopSupplierLimit &&
				snap.SupplierCount == len(snap.SpendBySupplier)
		},
		picks, picks, amounts,
	))

	properties.TestingRun(t)
}
