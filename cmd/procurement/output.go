package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"procurement-insight/db/clickhouse"
	"procurement-insight/decision/anomaly"
	"procurement-insight/decision/approval"
	"procurement-insight/decision/delay"
	"procurement-insight/decision/explain"
	"procurement-insight/decision/insights"
	"procurement-insight/decision/metrics"
)

// stdout is swapped in tests
var stdout io.Writer = os.Stdout

const rule = "════════════════════════════════════════════════════════════════"

// printer renders command results as table, json or markdown
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(c *cli.Context) *printer {
	return &printer{w: stdout, format: c.String("format")}
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) header(title string) {
	p.printf("\n%s\n  %s\n%s\n", rule, title, rule)
}

func (p *printer) list(items []string) {
	for _, s := range items {
		p.printf("- %s\n", s)
	}
}

// =============================================================================
// INSIGHTS
// =============================================================================

func (p *printer) insights(s insights.Snapshot, recs []string) error {
	switch p.format {
	case "json":
		return p.json(map[string]any{"metrics": s, "recommendations": recs})
	case "markdown":
		p.printf("## Procurement Insights\n\n")
		p.printf("| Metric | Value |\n|--------|-------|\n")
		p.printf("| **Total Orders** | %d |\n", s.TotalOrders)
		p.printf("| **Total Spend** | %s |\n", s.TotalSpendFormatted)
		p.printf("| **Average Order Value** | %s |\n", s.AverageOrderValueFormatted)
		p.printf("| **Suppliers** | %d |\n", s.SupplierCount)
		p.printf("| **Pending** | %d |\n", s.PendingCount)
		if len(s.TopSuppliers) > 0 {
			p.printf("\n### Top Suppliers\n\n| Supplier | Spend |\n|----------|-------|\n")
			for _, sup := range s.TopSuppliers {
				p.printf("| %s | %s |\n", sup.Name, sup.SpendFormatted)
			}
		}
		p.printf("\n### Recommendations\n\n")
		p.list(recs)
		return nil
	}

	p.header("PROCUREMENT INSIGHTS")
	p.printf("  %-24s %d\n", "Total orders:", s.TotalOrders)
	p.printf("  %-24s %s\n", "Total spend:", s.TotalSpendFormatted)
	p.printf("  %-24s %s\n", "Average order value:", s.AverageOrderValueFormatted)
	p.printf("  %-24s %d\n", "Suppliers:", s.SupplierCount)
	p.printf("  %-24s %d\n", "Pending:", s.PendingCount)

	if len(s.CountsByStatus) > 0 {
		p.printf("\n  BY STATUS\n")
		statuses := make([]string, 0, len(s.CountsByStatus))
		for st := range s.CountsByStatus {
			statuses = append(statuses, st)
		}
		sort.Strings(statuses)
		for _, st := range statuses {
			p.printf("  %-24s %d\n", st, s.CountsByStatus[st])
		}
	}

	if len(s.TopSuppliers) > 0 {
		p.printf("\n  TOP SUPPLIERS\n")
		for _, sup := range s.TopSuppliers {
			p.printf("  %-36s %s\n", truncate(sup.Name, 36), sup.SpendFormatted)
		}
	}

	p.printf("%s\n", rule)
	p.list(recs)
	return nil
}

func (p *printer) recommendations(recs []string) error {
	if p.format == "json" {
		return p.json(map[string]any{"recommendations": recs})
	}
	if p.format == "markdown" {
		p.printf("### Recommendations\n\n")
	}
	p.list(recs)
	return nil
}

// =============================================================================
// EXPLANATIONS
// =============================================================================

func (p *printer) explanation(e *explain.Explanation) error {
	switch p.format {
	case "json":
		return p.json(e)
	case "markdown":
		p.printf("## %s\n\n%s\n\n### Reasons\n\n", e.Title, e.Summary)
		for i, r := range e.Reasons {
			p.printf("%d. **%s**: %s\n", i+1, r.Recommendation, r.Evidence)
		}
		if len(e.NextActions) > 0 {
			p.printf("\n### Next Actions\n\n")
			p.list(e.NextActions)
		}
		return nil
	}
	p.printf("%s", explain.FormatText(e))
	return nil
}

// =============================================================================
// APPROVAL
// =============================================================================

func (p *printer) verdict(v *approval.Verdict, e *explain.Explanation) error {
	switch p.format {
	case "json":
		return p.json(map[string]any{"verdict": v, "explanation": e})
	case "markdown":
		p.printf("## Approval: %s\n\n", v.OrderID)
		p.printf("| Metric | Value |\n|--------|-------|\n")
		p.printf("| **Decision** | %s |\n", v.Decision)
		p.printf("| **Risk Score** | %d |\n", v.RiskScore)
		p.printf("| **Supplier Open Orders** | %d |\n", v.SupplierOpenOrders)
		p.printf("\n%s\n", v.Summary)
		p.printf("\n### Evidence\n\n| Item | Rate | Avg | Delta | History | Flag |\n|------|------|-----|-------|---------|------|\n")
		for _, row := range v.Evidence {
			avg, delta := evidenceColumns(row)
			p.printf("| %s | %s | %s | %s | %d | %s |\n", row.ItemCode, metrics.FormatAmount(row.CurrentRate), avg, delta, row.HistoricalCount, row.Flag)
		}
		p.printf("\n### Findings\n\n")
		p.list(v.Findings)
		p.printf("\n### Next Actions\n\n")
		p.list(v.NextActions)
		return nil
	}

	p.header(fmt.Sprintf("APPROVAL %s: %s", v.OrderID, decisionLabel(v.Decision)))
	p.printf("  %s\n", v.Summary)
	p.printf("  Risk score: %d   Supplier open orders: %d\n\n", v.RiskScore, v.SupplierOpenOrders)
	p.printf("  %-20s %12s %12s %10s %8s  %s\n", "ITEM", "RATE", "AVG", "DELTA", "HISTORY", "FLAG")
	for _, row := range v.Evidence {
		avg, delta := evidenceColumns(row)
		p.printf("  %-20s %12s %12s %10s %8d  %s\n", truncate(row.ItemCode, 20), metrics.FormatAmount(row.CurrentRate), avg, delta, row.HistoricalCount, row.Flag)
	}
	p.printf("%s\n", rule)
	p.list(v.Findings)
	if len(v.NextActions) > 0 {
		p.printf("\nNext actions:\n")
		p.list(v.NextActions)
	}
	if e != nil && len(e.Reasons) > 0 {
		p.printf("\n%s", explain.FormatText(e))
	}
	return nil
}

func evidenceColumns(row approval.EvidenceRow) (avg, delta string) {
	if row.HistoricalAverageRate == nil || row.DeltaPercent == nil {
		return "-", "-"
	}
	return metrics.FormatAmount(*row.HistoricalAverageRate), fmt.Sprintf("%+.1f%%", *row.DeltaPercent)
}

func decisionLabel(d approval.Decision) string {
	switch d {
	case approval.Approve:
		return "✅ APPROVE"
	case approval.Review:
		return "⚠️  REVIEW"
	case approval.DoNotApprove:
		return "❌ DO NOT APPROVE"
	}
	return string(d)
}

// =============================================================================
// ANOMALIES / DELAYS / RATES
// =============================================================================

func (p *printer) anomalies(r anomaly.Report) error {
	if p.format == "json" {
		return p.json(r)
	}
	if p.format == "markdown" {
		p.printf("## Price Anomalies (threshold %.0f%%)\n\n", r.ThresholdPercent)
		p.printf("| Item | Order | Supplier | Price | Average | Change | Severity |\n|------|-------|----------|-------|---------|--------|----------|\n")
		for _, a := range r.Anomalies {
			p.printf("| %s | %s | %s | %s | %s | %s | %s |\n", a.ItemCode, a.OrderID, a.Supplier, a.PriceFormatted, a.AverageFormatted, a.PercentageFormatted, a.Severity)
		}
		p.printf("\n")
		p.list(r.Recommendations)
		return nil
	}

	p.header(fmt.Sprintf("PRICE ANOMALIES: %d across %d of %d items", r.Summary.AnomalyCount, r.Summary.ItemsWithAnomalies, r.Summary.TotalItemsAnalyzed))
	for _, a := range r.Anomalies {
		p.printf("  %-8s %-16s %-12s %-20s %12s vs %-12s %s\n",
			a.Severity, truncate(a.ItemCode, 16), a.OrderID, truncate(a.Supplier, 20), a.PriceFormatted, a.AverageFormatted, a.PercentageFormatted)
	}
	p.printf("%s\n", rule)
	p.list(r.Recommendations)
	return nil
}

func (p *printer) delays(r delay.Report) error {
	if p.format == "json" {
		return p.json(r)
	}
	if p.format == "markdown" {
		p.printf("## Delayed Orders as of %s\n\n", r.AsOf)
		p.printf("| Order | Supplier | Due | Days Overdue | Amount | Severity |\n|-------|----------|-----|--------------|--------|----------|\n")
		for _, d := range r.DelayedOrders {
			p.printf("| %s | %s | %s | %d | %s | %s |\n", d.OrderID, d.Supplier, d.ScheduleDate, d.DaysOverdue, d.AmountFormatted, d.Severity)
		}
		p.printf("\n### Supplier Performance\n\n| Supplier | On Time | Avg Delay | Rating |\n|----------|---------|-----------|--------|\n")
		for _, sp := range r.SupplierPerformance {
			p.printf("| %s | %.1f%% | %.1f days | %s |\n", sp.Supplier, sp.OnTimePercentage, sp.AverageDelayDays, sp.Rating)
		}
		p.printf("\n")
		p.list(r.Recommendations)
		return nil
	}

	p.header(fmt.Sprintf("DELAYED ORDERS as of %s: %d of %d (%.1f%% on time)",
		r.AsOf, r.Summary.DelayedCount, r.Summary.TotalOrders, r.Summary.OnTimePercentage))
	for _, d := range r.DelayedOrders {
		p.printf("  %-8s %-14s %-20s due %s  %4d days  %s\n",
			d.Severity, d.OrderID, truncate(d.Supplier, 20), d.ScheduleDate, d.DaysOverdue, d.AmountFormatted)
	}
	p.printf("%s\n", rule)
	p.list(r.Recommendations)
	return nil
}

func (p *printer) rates(stats []clickhouse.ItemRateStats) error {
	if p.format == "json" {
		type rateJSON struct {
			ItemCode  string  `json:"item_code"`
			Purchases int     `json:"purchases"`
			AvgRate   float64 `json:"average_rate"`
			MinRate   float64 `json:"min_rate"`
			MaxRate   float64 `json:"max_rate"`
		}
		out := make([]rateJSON, len(stats))
		for i, st := range stats {
			out[i] = rateJSON{
				ItemCode:  st.ItemCode,
				Purchases: st.Purchases,
				AvgRate:   st.AvgRate.Round(2).InexactFloat64(),
				MinRate:   st.MinRate.InexactFloat64(),
				MaxRate:   st.MaxRate.InexactFloat64(),
			}
		}
		return p.json(out)
	}

	if p.format == "markdown" {
		p.printf("| Item | Purchases | Avg | Min | Max |\n|------|-----------|-----|-----|-----|\n")
		for _, st := range stats {
			p.printf("| %s | %d | %s | %s | %s |\n", st.ItemCode, st.Purchases, st.AvgRate.StringFixed(2), st.MinRate.StringFixed(2), st.MaxRate.StringFixed(2))
		}
		return nil
	}

	p.header("ITEM RATE HISTORY")
	for _, st := range stats {
		p.printf("  %-24s %6d  avg %12s  min %12s  max %12s\n",
			truncate(st.ItemCode, 24), st.Purchases, st.AvgRate.StringFixed(2), st.MinRate.StringFixed(2), st.MaxRate.StringFixed(2))
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
