// Package explain provides the Explanation Builder.
//
// A template per Intent turns already computed facts into a narrative with
// evidence. Every number shown is read from the facts and formatted with the
// metrics primitives; ratios are always printed next to their inputs.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"procurement-insight/decision/anomaly"
	"procurement-insight/decision/approval"
	"procurement-insight/decision/delay"
	"procurement-insight/decision/insights"
	"procurement-insight/decision/metrics"
	"procurement-insight/decision/order"
)

// Title heads every explanation
const Title = "Why these recommendations?"

const (
	maxReasons     = 5
	maxNextActions = 3
)

// Reason pairs a statement with the evidence behind it
type Reason struct {
	Recommendation string `json:"recommendation"`
	Evidence       string `json:"evidence"`
}

// Explanation is the rendered narrative for one intent
type Explanation struct {
	Intent      Intent   `json:"intent"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Reasons     []Reason `json:"reasons"`
	NextActions []string `json:"next_actions"`
}

// Entity is one record of an ERP list (supplier, customer, item, invoice...)
type Entity struct {
	Name     string `json:"name"`
	Supplier string `json:"supplier,omitempty"`
	Customer string `json:"customer,omitempty"`
}

// EntitySet backs the list intents other than purchase orders
type EntitySet struct {
	Records []Entity `json:"records"`
}

// Facts carries whatever the caller has computed. Templates read only the
// fields they need and yield nil when those are missing.
type Facts struct {
	Snapshot        *insights.Snapshot
	Recommendations []string
	Anomalies       *anomaly.Report
	Delays          *delay.Report
	Entities        *EntitySet
	Verdict         *approval.Verdict
}

type template func(f Facts) *Explanation

var templates = [intentCount]template{
	TotalSpend:           totalSpend,
	ListPurchaseOrders:   listPurchaseOrders,
	ListSuppliers:        listEntities("suppliers"),
	ListCustomers:        listEntities("customers"),
	ListItems:            listEntities("items in catalog"),
	ListSalesOrders:      listEntities("sales orders"),
	ListSalesInvoices:    listEntities("sales invoices"),
	ListVendorBills:      listEntities("vendor bills"),
	DetectPriceAnomalies: priceAnomalies,
	DetectDelayedOrders:  delayedOrders,
	ApprovePurchaseOrder: approvalDecision,
}

// Build renders the explanation for intent, or nil when the intent is unknown
// or its facts are missing.
func Build(intent Intent, facts Facts) *Explanation {
	if intent < 0 || intent >= intentCount || templates[intent] == nil {
		return nil
	}
	e := templates[intent](facts)
	if e == nil {
		return nil
	}
	e.Intent = intent
	e.Title = Title
	if len(e.Reasons) > maxReasons {
		e.Reasons = e.Reasons[:maxReasons]
	}
	if len(e.NextActions) > maxNextActions {
		e.NextActions = e.NextActions[:maxNextActions]
	}
	return e
}

func totalSpend(f Facts) *Explanation {
	s := f.Snapshot
	if s == nil {
		return nil
	}
	completed := s.StatusCount(order.StatusCompleted)
	spend := metrics.FormatCurrency(s.TotalSpend)

	e := &Explanation{
		Summary: fmt.Sprintf("Your organization has spent %s across %d purchase orders, with an average order value of %s.",
			spend, s.TotalOrders, s.AverageOrderValueFormatted),
		Reasons: []Reason{
			{
				Recommendation: "Total spend across all purchase orders",
				Evidence:       fmt.Sprintf("%s spent across %d orders", spend, s.TotalOrders),
			},
			{
				Recommendation: fmt.Sprintf("Order completion status: %d of %d orders completed", completed, s.TotalOrders),
				Evidence: fmt.Sprintf("%s completion rate (%d completed, %d pending)",
					metrics.FormatPercentage(float64(completed), float64(s.TotalOrders)), completed, s.PendingCount),
			},
			{
				Recommendation: "Average purchase order size indicates spending patterns",
				Evidence: fmt.Sprintf("Average order value: %s (%s ÷ %d orders)",
					s.AverageOrderValueFormatted, metrics.FormatAmount(s.TotalSpend), s.TotalOrders),
			},
		},
		NextActions: []string{
			fmt.Sprintf("Review pending orders (%d) to track delivery and invoicing progress", s.PendingCount),
			"Analyze spending trends by supplier to identify cost optimization opportunities",
			"Compare current spend to budget allocation for procurement planning",
		},
	}
	if top, _, ok := s.TopSupplierShare(); ok {
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: fmt.Sprintf("Largest supplier by spend: %s", top.Name),
			Evidence: fmt.Sprintf("%s of %s (%s)",
				top.SpendFormatted, spend, metrics.FormatPercentage(top.Spend, s.TotalSpend)),
		})
	}
	e.Reasons = append(e.Reasons, recommendationReasons(s, f.Recommendations)...)
	return e
}

func listPurchaseOrders(f Facts) *Explanation {
	s := f.Snapshot
	if s == nil {
		return nil
	}
	e := &Explanation{
		Summary: fmt.Sprintf("You have %d purchase orders in the system with varying statuses and suppliers.", s.TotalOrders),
		Reasons: []Reason{{
			Recommendation: "Total number of purchase orders",
			Evidence:       fmt.Sprintf("%d purchase orders found in the system", s.TotalOrders),
		}},
		NextActions: []string{
			"Review orders by status (To Receive, To Bill, Completed) to track progress",
			"Analyze supplier concentration to avoid over-dependence on a single supplier",
			fmt.Sprintf("Follow up on pending items in %d orders", s.PendingCount),
		},
	}
	if s.TotalOrders > 0 {
		e.Reasons = append(e.Reasons,
			Reason{Recommendation: "Order status distribution", Evidence: statusBreakdown(s.CountsByStatus)},
			Reason{Recommendation: "Supplier diversity", Evidence: fmt.Sprintf("Orders placed with %d different suppliers", s.SupplierCount)},
		)
	} else {
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: "No open orders or suppliers on record",
			Evidence:       fmt.Sprintf("%d pending, %d suppliers", s.PendingCount, s.SupplierCount),
		})
	}
	e.Reasons = append(e.Reasons, recommendationReasons(s, f.Recommendations)...)
	return e
}

// recommendationReasons cites each generated recommendation against the batch totals.
func recommendationReasons(s *insights.Snapshot, recs []string) []Reason {
	var out []Reason
	for _, r := range recs {
		out = append(out, Reason{
			Recommendation: r,
			Evidence: fmt.Sprintf("Derived from %d orders totalling %s, %d pending across %d suppliers",
				s.TotalOrders, s.TotalSpendFormatted, s.PendingCount, s.SupplierCount),
		})
	}
	return out
}

func statusBreakdown(counts map[string]int) string {
	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)

	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
	}
	return strings.Join(parts, ", ")
}

func listEntities(label string) template {
	return func(f Facts) *Explanation {
		if f.Entities == nil {
			return nil
		}
		records := f.Entities.Records
		e := &Explanation{
			Summary: fmt.Sprintf("You have %d %s in the system.", len(records), label),
			Reasons: []Reason{{
				Recommendation: fmt.Sprintf("Total %s count", label),
				Evidence:       fmt.Sprintf("%d %s found", len(records), label),
			}},
			NextActions: []string{
				fmt.Sprintf("Review %s to identify inactive or high-value partners", label),
				fmt.Sprintf("Analyze performance metrics (spend, delivery, quality) for top %s", label),
				fmt.Sprintf("Plan relationship management strategy for key %s", label),
			},
		}
		suppliers := distinctParties(records, func(r Entity) string { return r.Supplier })
		customers := distinctParties(records, func(r Entity) string { return r.Customer })
		if suppliers > 0 {
			e.Reasons = append(e.Reasons, Reason{
				Recommendation: "Unique suppliers",
				Evidence:       fmt.Sprintf("%d different suppliers involved", suppliers),
			})
		}
		if customers > 0 {
			e.Reasons = append(e.Reasons, Reason{
				Recommendation: "Unique customers",
				Evidence:       fmt.Sprintf("%d different customers involved", customers),
			})
		}
		if suppliers == 0 && customers == 0 {
			e.Reasons = append(e.Reasons, Reason{
				Recommendation: "Records are not linked to a counterparty",
				Evidence:       fmt.Sprintf("0 of %d %s name a supplier or customer", len(records), label),
			})
		}
		return e
	}
}

func distinctParties(records []Entity, party func(Entity) string) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		if p := strings.TrimSpace(party(r)); p != "" {
			seen[p] = struct{}{}
		}
	}
	return len(seen)
}

func priceAnomalies(f Facts) *Explanation {
	r := f.Anomalies
	if r == nil {
		return nil
	}
	flagged := r.AnomalousItems()
	normal := r.Summary.TotalItemsAnalyzed - len(flagged)
	threshold := fmt.Sprintf("%g%%", r.ThresholdPercent)

	e := &Explanation{
		Summary: fmt.Sprintf("Price analysis of %d item(s) found %d item(s) priced %s or more above their average rate.",
			r.Summary.TotalItemsAnalyzed, len(flagged), threshold),
	}
	if len(flagged) > 0 {
		top := r.Anomalies[0]
		e.Reasons = append(e.Reasons,
			Reason{
				Recommendation: fmt.Sprintf("Price anomalies detected in %d item(s)", len(flagged)),
				Evidence:       fmt.Sprintf("Items priced %s or higher above average: %s", threshold, strings.Join(flagged, ", ")),
			},
			Reason{
				Recommendation: fmt.Sprintf("Largest deviation: %s from %s", top.ItemCode, top.Supplier),
				Evidence: fmt.Sprintf("%s vs average %s (%s above, %s rated %s)",
					top.PriceFormatted, top.AverageFormatted, top.PercentageFormatted, top.DifferenceFormatted, top.Severity),
			},
		)
		e.NextActions = []string{
			fmt.Sprintf("Negotiate pricing on %d item(s) to match historical averages", len(flagged)),
			"Request quotes from alternative suppliers for high-priced items",
			"Verify whether price increases are justified by market conditions or supplier communication",
		}
	} else {
		purchases := 0
		for _, it := range r.Items {
			purchases += it.PurchaseCount
		}
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: "No price anomalies detected",
			Evidence:       fmt.Sprintf("No line priced %s or more above its item average across %d purchase(s)", threshold, purchases),
		})
		e.NextActions = []string{
			"Continue monitoring supplier pricing for consistency",
			"Maintain current suppliers while pricing remains competitive",
		}
	}
	if normal > 0 {
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: fmt.Sprintf("Normal pricing confirmed for %d item(s)", normal),
			Evidence:       fmt.Sprintf("%d of %d item(s) within the expected price range", normal, r.Summary.TotalItemsAnalyzed),
		})
	} else if len(flagged) == 0 {
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: "No priced line items to compare",
			Evidence:       fmt.Sprintf("%d item(s) analyzed, %d anomaly record(s)", r.Summary.TotalItemsAnalyzed, r.Summary.AnomalyCount),
		})
	}
	return e
}

func delayedOrders(f Facts) *Explanation {
	r := f.Delays
	if r == nil {
		return nil
	}
	s := r.Summary
	if s.DelayedCount == 0 {
		return &Explanation{
			Summary: fmt.Sprintf("No delayed orders detected as of %s; all %d deliveries are on track.", r.AsOf, s.TotalOrders),
			Reasons: []Reason{
				{
					Recommendation: "All orders on schedule",
					Evidence:       fmt.Sprintf("%d of %d orders on time", s.OnTimeCount, s.TotalOrders),
				},
				{
					Recommendation: "Delivery dates checked",
					Evidence: fmt.Sprintf("%d of %d orders carry a schedule date, 0 past due as of %s",
						s.ScheduledCount, s.TotalOrders, r.AsOf),
				},
			},
			NextActions: []string{
				"Continue monitoring delivery schedules",
				"Maintain positive relationships with suppliers",
			},
		}
	}

	e := &Explanation{
		Summary: fmt.Sprintf("%d of %d orders are past their scheduled delivery date as of %s.", s.DelayedCount, s.TotalOrders, r.AsOf),
		Reasons: []Reason{
			{
				Recommendation: fmt.Sprintf("%d order(s) are delayed", s.DelayedCount),
				Evidence: fmt.Sprintf("Total %d days overdue, averaging %.1f days late per order (%d ÷ %d orders)",
					s.TotalDelayDays, s.AverageDelayDays, s.TotalDelayDays, s.DelayedCount),
			},
			{
				Recommendation: "On-time delivery rate",
				Evidence: fmt.Sprintf("%s on time (%d ÷ %d orders)",
					metrics.FormatPercent(s.OnTimePercentage), s.OnTimeCount, s.TotalOrders),
			},
		},
		NextActions: []string{
			fmt.Sprintf("Follow up with suppliers on %d delayed order(s)", s.DelayedCount),
			"Assess impact on production and operations due to delays",
			"Consider penalty clauses or supplier performance reviews if delays are recurring",
		},
	}
	if len(r.DelayedOrders) > 0 {
		worst := r.DelayedOrders[0]
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: fmt.Sprintf("Most overdue order: %s from %s", worst.OrderID, worst.Supplier),
			Evidence:       fmt.Sprintf("%d days past %s, %s outstanding", worst.DaysOverdue, worst.ScheduleDate, worst.AmountFormatted),
		})
	}
	if len(r.SupplierPerformance) > 0 {
		p := r.SupplierPerformance[0]
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: fmt.Sprintf("Lowest on-time supplier: %s (%s)", p.Supplier, p.Rating),
			Evidence: fmt.Sprintf("%s on time (%d ÷ %d orders)",
				metrics.FormatPercent(p.OnTimePercentage), p.OnTimeOrders, p.TotalOrders),
		})
	}
	return e
}

func approvalDecision(f Facts) *Explanation {
	v := f.Verdict
	if v == nil {
		return nil
	}
	e := &Explanation{
		Summary:     fmt.Sprintf("Purchase order %s: %s. %s", v.OrderID, v.Decision, v.Summary),
		NextActions: append([]string(nil), v.NextActions...),
	}

	for _, t := range v.Triggers {
		switch t {
		case approval.TriggerPriceAnomaly:
			e.Reasons = append(e.Reasons, Reason{
				Recommendation: fmt.Sprintf("Negotiate %d item(s) priced above their historical average", v.AnomalyCount()),
				Evidence:       evidenceRows(v.Evidence, approval.FlagAnomaly),
			})
		case approval.TriggerMissingHistory:
			e.Reasons = append(e.Reasons, Reason{
				Recommendation: fmt.Sprintf("Check market prices for %d item(s) without purchase history", v.MissingHistoryCount()),
				Evidence:       evidenceRows(v.Evidence, approval.FlagNoHistory),
			})
		case approval.TriggerSupplierRisk:
			e.Reasons = append(e.Reasons, Reason{
				Recommendation: "Confirm supplier capacity before adding orders",
				Evidence:       fmt.Sprintf("%d other open orders with the same supplier", v.SupplierOpenOrders),
			})
		case approval.TriggerNonStandardStatus:
			e.Reasons = append(e.Reasons, Reason{
				Recommendation: "Confirm the order is in an approvable state",
				Evidence:       findingFor(v.Findings, "PO status"),
			})
		}
	}
	if len(v.Triggers) == 0 {
		e.Reasons = append(e.Reasons, Reason{
			Recommendation: "Prices are consistent with purchase history",
			Evidence:       evidenceRows(v.Evidence, approval.FlagOK),
		})
	}
	e.Reasons = append(e.Reasons, Reason{
		Recommendation: fmt.Sprintf("Decision %s", v.Decision),
		Evidence:       fmt.Sprintf("Risk score %d from %d finding(s)", v.RiskScore, len(v.Triggers)),
	})
	return e
}

func evidenceRows(rows []approval.EvidenceRow, flag approval.Flag) string {
	var parts []string
	for _, r := range rows {
		if r.Flag != flag {
			continue
		}
		if r.HistoricalAverageRate == nil {
			parts = append(parts, fmt.Sprintf("%s at %s has no purchase history", r.ItemCode, metrics.FormatCurrency(r.CurrentRate)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s at %s vs average %s over %d purchase(s) (%+.1f%%)",
			r.ItemCode, metrics.FormatCurrency(r.CurrentRate), metrics.FormatCurrency(*r.HistoricalAverageRate),
			r.HistoricalCount, *r.DeltaPercent))
	}
	if len(parts) == 0 {
		return "No line items to compare"
	}
	return strings.Join(parts, "; ")
}

func findingFor(findings []string, prefix string) string {
	for _, f := range findings {
		if strings.HasPrefix(f, prefix) {
			return f
		}
	}
	return ""
}
