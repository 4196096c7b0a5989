// Package anomaly detects line-item prices that stand out against the
// average rate paid for the same item across a batch of purchase orders.
package anomaly

import (
	"fmt"
	"sort"
	"strings"

	"procurement-insight/decision/metrics"
	"procurement-insight/decision/order"
)

// Severity classifies how far a price sits above the item average
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Classify maps a percentage above average to a severity.
func Classify(pct float64) Severity {
	switch {
	case pct >= 50:
		return SeverityCritical
	case pct >= 30:
		return SeverityHigh
	case pct >= 20:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Config holds detector thresholds
type Config struct {
	ThresholdPercent   float64
	MaxRecommendations int
}

// DefaultConfig returns the standard 20% threshold
func DefaultConfig() Config {
	return Config{
		ThresholdPercent:   20,
		MaxRecommendations: 4,
	}
}

// Anomaly is one line priced above the item average
type Anomaly struct {
	ItemCode            string   `json:"item_code"`
	OrderID             string   `json:"order_id"`
	Supplier            string   `json:"supplier"`
	Price               float64  `json:"price"`
	PriceFormatted      string   `json:"price_formatted"`
	AveragePrice        float64  `json:"average_price"`
	AverageFormatted    string   `json:"average_price_formatted"`
	Difference          float64  `json:"difference"`
	DifferenceFormatted string   `json:"difference_formatted"`
	Percentage          float64  `json:"percentage"`
	PercentageFormatted string   `json:"percentage_formatted"`
	Severity            Severity `json:"severity"`
}

// ItemStats summarises the rates paid for one item
type ItemStats struct {
	ItemCode      string  `json:"item_code"`
	AverageRate   float64 `json:"average_rate"`
	MinRate       float64 `json:"min_rate"`
	MaxRate       float64 `json:"max_rate"`
	SupplierCount int     `json:"supplier_count"`
	PurchaseCount int     `json:"purchase_count"`
	IsAnomalous   bool    `json:"is_anomaly"`
}

// Summary counts the detector output
type Summary struct {
	TotalItemsAnalyzed int `json:"total_items_analyzed"`
	ItemsWithAnomalies int `json:"items_with_anomalies"`
	AnomalyCount       int `json:"anomaly_count"`
}

// Report is the detector result
type Report struct {
	ThresholdPercent float64     `json:"threshold_percent"`
	Anomalies        []Anomaly   `json:"anomalies"`
	Items            []ItemStats `json:"items"`
	Summary          Summary     `json:"summary"`
	Recommendations  []string    `json:"recommendations"`
}

// AnomalousItems returns item codes with at least one anomaly, in item order.
func (r Report) AnomalousItems() []string {
	var out []string
	for _, it := range r.Items {
		if it.IsAnomalous {
			out = append(out, it.ItemCode)
		}
	}
	return out
}

type purchase struct {
	orderID  string
	supplier string
	rate     float64
}

type itemGroup struct {
	code      string
	purchases []purchase
}

// Detect scans every line item in orders. Lines without a positive rate are ignored.
func Detect(orders []order.Order, cfg Config) Report {
	report := Report{
		ThresholdPercent: cfg.ThresholdPercent,
		Anomalies:        make([]Anomaly, 0),
		Items:            make([]ItemStats, 0),
		Recommendations:  make([]string, 0),
	}
	if len(orders) == 0 {
		report.Recommendations = append(report.Recommendations, "No purchase orders to analyze.")
		return report
	}

	groups := groupByItem(orders)
	for _, g := range groups {
		stats, anomalies := analyzeItem(g, cfg.ThresholdPercent)
		report.Items = append(report.Items, stats)
		report.Anomalies = append(report.Anomalies, anomalies...)
	}

	sort.SliceStable(report.Anomalies, func(i, j int) bool {
		return report.Anomalies[i].Percentage > report.Anomalies[j].Percentage
	})

	report.Summary = Summary{
		TotalItemsAnalyzed: len(report.Items),
		ItemsWithAnomalies: len(report.AnomalousItems()),
		AnomalyCount:       len(report.Anomalies),
	}
	report.Recommendations = recommend(report, groups, cfg.MaxRecommendations)
	return report
}

// groupByItem keeps items and purchases in first-seen order.
func groupByItem(orders []order.Order) []*itemGroup {
	index := make(map[string]*itemGroup)
	var groups []*itemGroup
	for _, o := range orders {
		for _, it := range o.Items {
			rate := it.Rate.Float64()
			if rate <= 0 {
				continue
			}
			key := it.Key()
			g, ok := index[key]
			if !ok {
				g = &itemGroup{code: key}
				index[key] = g
				groups = append(groups, g)
			}
			g.purchases = append(g.purchases, purchase{orderID: o.ID, supplier: o.SupplierKey(), rate: rate})
		}
	}
	return groups
}

func analyzeItem(g *itemGroup, threshold float64) (ItemStats, []Anomaly) {
	rates := make([]float64, len(g.purchases))
	suppliers := make(map[string]struct{})
	stats := ItemStats{ItemCode: g.code, PurchaseCount: len(g.purchases)}
	for i, p := range g.purchases {
		rates[i] = p.rate
		suppliers[p.supplier] = struct{}{}
		if i == 0 || p.rate < stats.MinRate {
			stats.MinRate = p.rate
		}
		if p.rate > stats.MaxRate {
			stats.MaxRate = p.rate
		}
	}
	stats.SupplierCount = len(suppliers)
	avg, _ := metrics.MeanDecimal(rates)
	stats.AverageRate = avg.InexactFloat64()

	var anomalies []Anomaly
	for _, p := range g.purchases {
		pct := metrics.PercentChangeFrom(p.rate, avg)
		if pct < threshold {
			continue
		}
		diff := p.rate - stats.AverageRate
		anomalies = append(anomalies, Anomaly{
			ItemCode:            g.code,
			OrderID:             p.orderID,
			Supplier:            p.supplier,
			Price:               p.rate,
			PriceFormatted:      metrics.FormatCurrency(p.rate),
			AveragePrice:        stats.AverageRate,
			AverageFormatted:    metrics.FormatCurrency(stats.AverageRate),
			Difference:          diff,
			DifferenceFormatted: metrics.FormatCurrency(diff),
			Percentage:          pct,
			PercentageFormatted: metrics.FormatPercent(pct),
			Severity:            Classify(pct),
		})
	}
	stats.IsAnomalous = len(anomalies) > 0
	return stats, anomalies
}

func recommend(r Report, groups []*itemGroup, limit int) []string {
	if len(r.Anomalies) == 0 {
		return []string{"No significant price anomalies were detected."}
	}

	var recs []string
	critical := filter(r.Anomalies, SeverityCritical)
	high := filter(r.Anomalies, SeverityHigh)

	if len(critical) > 0 {
		suppliers := distinct(critical, func(a Anomaly) string { return a.Supplier })
		if len(suppliers) > 2 {
			suppliers = suppliers[:2]
		}
		items := distinct(critical, func(a Anomaly) string { return a.ItemCode })
		recs = append(recs, fmt.Sprintf("CRITICAL: %d severe price anomalies. Negotiate with %s for %d items.",
			len(critical), strings.Join(suppliers, ", "), len(items)))
	}

	if len(high) > 0 {
		suppliers := distinct(high, func(a Anomaly) string { return a.Supplier })
		recs = append(recs, fmt.Sprintf("Review pricing from %d suppliers with prices %s above average.",
			len(suppliers), high[0].PercentageFormatted))
	}

	if name, n := mostFrequent(r.Anomalies); n > 1 {
		recs = append(recs, fmt.Sprintf("Supplier '%s' has %d price anomalies. Request quotes from competitors.", name, n))
	}

	if name, n := cheapestSupplier(groups); n > 0 {
		recs = append(recs, fmt.Sprintf("'%s' offers competitive pricing on %d items.", name, n))
	}

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func filter(anomalies []Anomaly, sev Severity) []Anomaly {
	var out []Anomaly
	for _, a := range anomalies {
		if a.Severity == sev {
			out = append(out, a)
		}
	}
	return out
}

func distinct(anomalies []Anomaly, key func(Anomaly) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range anomalies {
		k := key(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// mostFrequent returns the supplier with the most anomalies; ties go to the first seen.
func mostFrequent(anomalies []Anomaly) (string, int) {
	counts := make(map[string]int)
	var best string
	for _, name := range distinct(anomalies, func(a Anomaly) string { return a.Supplier }) {
		for _, a := range anomalies {
			if a.Supplier == name {
				counts[name]++
			}
		}
		if counts[name] > counts[best] {
			best = name
		}
	}
	return best, counts[best]
}

// cheapestSupplier returns the supplier offering the lowest rate on the most items.
func cheapestSupplier(groups []*itemGroup) (string, int) {
	wins := make(map[string]int)
	var seen []string
	for _, g := range groups {
		cheapest := g.purchases[0]
		for _, p := range g.purchases[1:] {
			if p.rate < cheapest.rate {
				cheapest = p
			}
		}
		if _, ok := wins[cheapest.supplier]; !ok {
			seen = append(seen, cheapest.supplier)
		}
		wins[cheapest.supplier]++
	}

	var best string
	for _, name := range seen {
		if wins[name] > wins[best] {
			best = name
		}
	}
	return best, wins[best]
}
