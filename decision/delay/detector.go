// Package delay finds purchase orders past their scheduled delivery date and
// rates suppliers by on-time delivery.
package delay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"procurement-insight/decision/metrics"
	"procurement-insight/decision/order"
)

const (
	// MaxListed caps Report.DelayedOrders; summary counts cover every delayed order.
	MaxListed = 50
	// MaxSupplierRows caps Report.SupplierPerformance.
	MaxSupplierRows    = 10
	MaxRecommendations = 6

	dateLayout = "2006-01-02"
)

type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Classify maps days overdue to a severity.
func Classify(days int) Severity {
	switch {
	case days >= 60:
		return SeverityCritical
	case days >= 30:
		return SeverityHigh
	case days >= 15:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

type Rating string

const (
	RatingExcellent Rating = "Excellent"
	RatingGood      Rating = "Good"
	RatingFair      Rating = "Fair"
	RatingPoor      Rating = "Poor"
)

// Rate maps an on-time percentage to a supplier rating.
func Rate(onTimePct float64) Rating {
	switch {
	case onTimePct >= 95:
		return RatingExcellent
	case onTimePct >= 85:
		return RatingGood
	case onTimePct >= 70:
		return RatingFair
	default:
		return RatingPoor
	}
}

// DelayedOrder is an open order past its schedule date
type DelayedOrder struct {
	OrderID         string   `json:"order_id"`
	Supplier        string   `json:"supplier"`
	ScheduleDate    string   `json:"schedule_date"`
	DaysOverdue     int      `json:"days_overdue"`
	Amount          float64  `json:"amount"`
	AmountFormatted string   `json:"amount_formatted"`
	Status          string   `json:"status"`
	ItemsCount      int      `json:"items_count"`
	Severity        Severity `json:"severity"`
}

// SupplierPerformance is the on-time record of one supplier
type SupplierPerformance struct {
	Supplier         string  `json:"supplier"`
	TotalOrders      int     `json:"total_orders"`
	OnTimeOrders     int     `json:"on_time_orders"`
	DelayedOrders    int     `json:"delayed_orders"`
	OnTimePercentage float64 `json:"on_time_percentage"`
	AverageDelayDays float64 `json:"average_delay_days"`
	Rating           Rating  `json:"performance_rating"`
}

type Summary struct {
	TotalOrders      int     `json:"total_orders"`
	DelayedCount     int     `json:"delayed_count"`
	OnTimeCount      int     `json:"on_time_count"`
	ScheduledCount   int     `json:"scheduled_count"`
	OnTimePercentage float64 `json:"on_time_percentage"`
	TotalDelayDays   int     `json:"total_delay_days"`
	AverageDelayDays float64 `json:"average_delay_days"`
	CriticalCount    int     `json:"critical_count"`
	HighCount        int     `json:"high_count"`
	MediumCount      int     `json:"medium_count"`
	LowCount         int     `json:"low_count"`
}

// Report is the detector result
type Report struct {
	DelayedOrders       []DelayedOrder        `json:"delayed_orders"`
	Summary             Summary               `json:"summary"`
	SupplierPerformance []SupplierPerformance `json:"supplier_performance"`
	Recommendations     []string              `json:"recommendations"`
	AsOf                string                `json:"as_of"`
}

// Detect evaluates orders against the calendar date of asOf.
// Orders without a parseable schedule date or with a terminal status are on time.
func Detect(orders []order.Order, asOf time.Time) Report {
	today := civilDate(asOf)
	report := Report{
		DelayedOrders:       make([]DelayedOrder, 0),
		SupplierPerformance: make([]SupplierPerformance, 0),
		AsOf:                today.Format(dateLayout),
	}
	if len(orders) == 0 {
		report.Recommendations = []string{"No purchase orders to analyze."}
		return report
	}

	delayed := findDelayed(orders, today)
	report.Summary = summarize(len(orders), delayed)
	report.Summary.ScheduledCount = countScheduled(orders)
	report.SupplierPerformance = supplierPerformance(orders, delayed)
	report.Recommendations = recommend(delayed, report.SupplierPerformance)

	sort.SliceStable(delayed, func(i, j int) bool {
		return delayed[i].DaysOverdue > delayed[j].DaysOverdue
	})
	if len(delayed) > MaxListed {
		delayed = delayed[:MaxListed]
	}
	report.DelayedOrders = append(report.DelayedOrders, delayed...)
	if len(report.SupplierPerformance) > MaxSupplierRows {
		report.SupplierPerformance = report.SupplierPerformance[:MaxSupplierRows]
	}
	return report
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseScheduleDate reads the YYYY-MM-DD prefix of an ERP date or timestamp.
func ParseScheduleDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// countScheduled counts orders carrying a parseable schedule date.
func countScheduled(orders []order.Order) int {
	n := 0
	for _, o := range orders {
		if _, ok := ParseScheduleDate(o.ScheduleDate); ok {
			n++
		}
	}
	return n
}

func findDelayed(orders []order.Order, today time.Time) []DelayedOrder {
	var delayed []DelayedOrder
	for _, o := range orders {
		if order.IsTerminal(o.Status) {
			continue
		}
		due, ok := ParseScheduleDate(o.ScheduleDate)
		if !ok || !due.Before(today) {
			continue
		}
		days := int(today.Sub(due).Hours() / 24)
		amount := o.GrandTotal.Float64()
		delayed = append(delayed, DelayedOrder{
			OrderID:         o.ID,
			Supplier:        o.SupplierKey(),
			ScheduleDate:    due.Format(dateLayout),
			DaysOverdue:     days,
			Amount:          amount,
			AmountFormatted: metrics.FormatCurrency(amount),
			Status:          o.StatusKey(),
			ItemsCount:      len(o.Items),
			Severity:        Classify(days),
		})
	}
	return delayed
}

func summarize(total int, delayed []DelayedOrder) Summary {
	s := Summary{
		TotalOrders:  total,
		DelayedCount: len(delayed),
		OnTimeCount:  total - len(delayed),
	}
	for _, d := range delayed {
		s.TotalDelayDays += d.DaysOverdue
		switch d.Severity {
		case SeverityCritical:
			s.CriticalCount++
		case SeverityHigh:
			s.HighCount++
		case SeverityMedium:
			s.MediumCount++
		default:
			s.LowCount++
		}
	}
	if total > 0 {
		s.OnTimePercentage = metrics.Round(float64(s.OnTimeCount)/float64(total)*100, 1)
	}
	if len(delayed) > 0 {
		s.AverageDelayDays = metrics.Round(float64(s.TotalDelayDays)/float64(len(delayed)), 1)
	}
	return s
}

func supplierPerformance(orders []order.Order, delayed []DelayedOrder) []SupplierPerformance {
	type stats struct {
		total, delayed, days int
	}
	index := make(map[string]*stats)
	var names []string
	for _, o := range orders {
		name := o.SupplierKey()
		st, ok := index[name]
		if !ok {
			st = &stats{}
			index[name] = st
			names = append(names, name)
		}
		st.total++
	}
	for _, d := range delayed {
		st := index[d.Supplier]
		st.delayed++
		st.days += d.DaysOverdue
	}

	perf := make([]SupplierPerformance, 0, len(names))
	for _, name := range names {
		st := index[name]
		onTime := st.total - st.delayed
		pct := float64(onTime) / float64(st.total) * 100
		var avg float64
		if st.delayed > 0 {
			avg = float64(st.days) / float64(st.delayed)
		}
		perf = append(perf, SupplierPerformance{
			Supplier:         name,
			TotalOrders:      st.total,
			OnTimeOrders:     onTime,
			DelayedOrders:    st.delayed,
			OnTimePercentage: metrics.Round(pct, 1),
			AverageDelayDays: metrics.Round(avg, 1),
			Rating:           Rate(pct),
		})
	}

	sort.SliceStable(perf, func(i, j int) bool {
		return perf[i].OnTimePercentage < perf[j].OnTimePercentage
	})
	return perf
}

func recommend(delayed []DelayedOrder, perf []SupplierPerformance) []string {
	if len(delayed) == 0 {
		return []string{"All orders are on schedule."}
	}

	var recs []string
	var critical, high, totalDays int
	var totalAmount float64
	for _, d := range delayed {
		switch d.Severity {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		}
		totalDays += d.DaysOverdue
		totalAmount += d.Amount
	}

	if critical > 0 {
		recs = append(recs, fmt.Sprintf("%d orders are severely delayed (60+ days). Immediate escalation and supplier contact required.", critical))
	}
	if high > 0 {
		recs = append(recs, fmt.Sprintf("%d orders delayed 30-60 days. Contact suppliers immediately and request expedited delivery.", high))
	}
	// perf is sorted ascending so the first entry is the worst performer
	if len(perf) > 0 && perf[0].OnTimePercentage < 50 {
		recs = append(recs, fmt.Sprintf("Supplier '%s' has only %s on-time delivery. Consider renegotiating SLA or finding alternatives.",
			perf[0].Supplier, metrics.FormatPercent(perf[0].OnTimePercentage)))
	}
	if totalAmount > 0 {
		recs = append(recs, fmt.Sprintf("Total value of delayed orders: %s. This impacts cash flow and operations.",
			metrics.FormatCurrency(totalAmount)))
	}
	recs = append(recs, fmt.Sprintf("Average delay is %.0f days. Implement early warning system and improve supplier SLA enforcement.",
		float64(totalDays)/float64(len(delayed))))

	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}
