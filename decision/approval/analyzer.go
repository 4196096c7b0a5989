// Package approval provides the Approval Analyzer.
//
// A target purchase order is judged against the rest of the order history:
// line-item rates are compared with historical averages, the supplier's open
// order load is counted, and the findings are combined into an
// APPROVE / REVIEW / DO_NOT_APPROVE verdict with supporting evidence rows.
package approval

import (
	"fmt"
	"strings"

	"procurement-insight/decision/metrics"
	"procurement-insight/decision/order"
	"procurement-insight/pkg/errors"
)

// Decision is the approval outcome
type Decision string

const (
	Approve      Decision = "APPROVE"
	Review       Decision = "REVIEW"
	DoNotApprove Decision = "DO_NOT_APPROVE"
)

// Flag marks an evidence row
type Flag string

const (
	FlagAnomaly   Flag = "ANOMALY"
	FlagOK        Flag = "OK"
	FlagNoHistory Flag = "NO_HISTORY"
)

// Trigger names a condition that produced a finding
type Trigger string

const (
	TriggerPriceAnomaly      Trigger = "price_anomaly"
	TriggerMissingHistory    Trigger = "missing_history"
	TriggerSupplierRisk      Trigger = "supplier_risk"
	TriggerNonStandardStatus Trigger = "non_standard_status"
)

// EvidenceRow compares one target line item with its history.
// HistoricalAverageRate and DeltaPercent are nil when the item has no history.
type EvidenceRow struct {
	ItemCode              string   `json:"item_code"`
	ItemName              string   `json:"item_name,omitempty"`
	CurrentRate           float64  `json:"current_rate"`
	HistoricalAverageRate *float64 `json:"historical_average_rate"`
	DeltaPercent          *float64 `json:"delta_percent"`
	HistoricalCount       int      `json:"historical_count"`
	Flag                  Flag     `json:"flag"`
}

// Verdict is the analyzer result
type Verdict struct {
	OrderID            string        `json:"order_id"`
	Decision           Decision      `json:"decision"`
	Summary            string        `json:"summary"`
	Findings           []string      `json:"findings"`
	Triggers           []Trigger     `json:"triggers"`
	Evidence           []EvidenceRow `json:"evidence"`
	NextActions        []string      `json:"next_actions"`
	RiskScore          int           `json:"risk_score"`
	SupplierOpenOrders int           `json:"supplier_open_orders"`
}

// Triggered reports whether the given condition fired.
func (v *Verdict) Triggered(t Trigger) bool {
	for _, got := range v.Triggers {
		if got == t {
			return true
		}
	}
	return false
}

// AnomalyCount returns the number of evidence rows flagged ANOMALY.
func (v *Verdict) AnomalyCount() int {
	return v.countFlag(FlagAnomaly)
}

// MissingHistoryCount returns the number of evidence rows flagged NO_HISTORY.
func (v *Verdict) MissingHistoryCount() int {
	return v.countFlag(FlagNoHistory)
}

func (v *Verdict) countFlag(f Flag) int {
	n := 0
	for _, row := range v.Evidence {
		if row.Flag == f {
			n++
		}
	}
	return n
}

// Analyzer evaluates purchase orders under a fixed Config
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Config returns the policy the analyzer applies
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze judges targetID against every other order in orders.
// It returns an error matching errors.ErrOrderNotFound when targetID is absent.
func (a *Analyzer) Analyze(targetID string, orders []order.Order) (*Verdict, error) {
	target, ok := order.Find(orders, targetID)
	if !ok {
		return nil, errors.NewOrderNotFoundError(targetID)
	}

	history := historicalRates(targetID, orders)
	evidence := make([]EvidenceRow, 0, len(target.Items))
	anomalies, missing := 0, 0
	for _, it := range target.Items {
		row := a.evaluateItem(it, history[it.Key()])
		switch row.Flag {
		case FlagAnomaly:
			anomalies++
		case FlagNoHistory:
			missing++
		}
		evidence = append(evidence, row)
	}

	openOrders := supplierOpenOrders(target, orders)
	status := strings.TrimSpace(target.Status)

	var findings, actions []string
	var triggers []Trigger
	score := 0

	if anomalies > 0 {
		triggers = append(triggers, TriggerPriceAnomaly)
		findings = append(findings, fmt.Sprintf("Price anomalies detected: %d item(s) >= %g%% above average",
			anomalies, a.cfg.AnomalyThresholdPercent))
		actions = append(actions, fmt.Sprintf("Negotiate price on %d item(s) to match historical average", anomalies))
		score += a.cfg.AnomalyWeight * anomalies
	}
	if missing > 0 {
		triggers = append(triggers, TriggerMissingHistory)
		findings = append(findings, fmt.Sprintf("Insufficient historical data: %d item(s) have no past purchase records", missing))
		actions = append(actions, fmt.Sprintf("Request quote or market price check for %d item(s)", missing))
		if anomalies == 0 {
			score += a.cfg.MissingDataWeight
		}
	}
	if openOrders >= a.cfg.OpenOrderRiskCount {
		triggers = append(triggers, TriggerSupplierRisk)
		findings = append(findings, fmt.Sprintf("Supplier has %d open orders pending", openOrders))
		actions = append(actions, fmt.Sprintf("Confirm delivery dates on %d open orders before approving new orders", openOrders))
		score += a.cfg.SupplierRiskWeight
	}
	if !a.cfg.approvable(status) {
		triggers = append(triggers, TriggerNonStandardStatus)
		findings = append(findings, fmt.Sprintf("PO status is '%s' (not standard for approval)", target.StatusKey()))
		actions = append(actions, fmt.Sprintf("Verify that order status '%s' allows approval", target.StatusKey()))
	}
	if len(findings) == 0 {
		findings = append(findings, "No significant risks or anomalies detected")
	}
	if len(actions) == 0 {
		actions = append(actions, "Proceed with approval")
	}

	decision, reason := a.decide(anomalies, score, len(triggers))
	findings = append([]string{fmt.Sprintf("Decision: %s (%s)", decision, reason)}, findings...)

	return &Verdict{
		OrderID:            target.ID,
		Decision:           decision,
		Summary:            summarize(target),
		Findings:           findings,
		Triggers:           triggers,
		Evidence:           evidence,
		NextActions:        actions,
		RiskScore:          score,
		SupplierOpenOrders: openOrders,
	}, nil
}

// decide combines findings. Any trigger prevents APPROVE.
func (a *Analyzer) decide(anomalies, score, triggers int) (Decision, string) {
	switch {
	case anomalies > 0 && score >= a.cfg.SeverityThreshold:
		return DoNotApprove, "Price anomalies and/or high supplier risk"
	case triggers > 0:
		return Review, "Moderate risks or missing data require review"
	default:
		return Approve, "No significant risks detected"
	}
}

func (a *Analyzer) evaluateItem(it order.Item, rates []float64) EvidenceRow {
	row := EvidenceRow{
		ItemCode:        it.Key(),
		ItemName:        it.ItemName,
		CurrentRate:     it.Rate.Float64(),
		HistoricalCount: len(rates),
		Flag:            FlagNoHistory,
	}
	mean, ok := metrics.MeanDecimal(rates)
	if !ok {
		return row
	}
	avg := mean.InexactFloat64()
	delta := metrics.PercentChangeFrom(row.CurrentRate, mean)
	row.HistoricalAverageRate = &avg
	row.DeltaPercent = &delta
	row.Flag = FlagOK
	if delta >= a.cfg.AnomalyThresholdPercent {
		row.Flag = FlagAnomaly
	}
	return row
}

// historicalRates collects positive rates per item key from every order except the target.
func historicalRates(targetID string, orders []order.Order) map[string][]float64 {
	rates := make(map[string][]float64)
	for _, o := range orders {
		if o.ID == targetID {
			continue
		}
		for _, it := range o.Items {
			if r := it.Rate.Float64(); r > 0 {
				rates[it.Key()] = append(rates[it.Key()], r)
			}
		}
	}
	return rates
}

func supplierOpenOrders(target order.Order, orders []order.Order) int {
	supplier := target.SupplierKey()
	n := 0
	for _, o := range orders {
		if o.ID == target.ID || o.SupplierKey() != supplier {
			continue
		}
		if o.IsPending() {
			n++
		}
	}
	return n
}

func summarize(o order.Order) string {
	date := o.Date
	if date == "" {
		date = "N/A"
	}
	return fmt.Sprintf("Supplier: %s | Status: %s | Total: %s | Items: %d | Date: %s",
		o.SupplierKey(), o.StatusKey(), metrics.FormatCurrency(o.GrandTotal.Float64()), len(o.Items), date)
}
