// Package recommend provides the Recommendation Generator.
// Rules are evaluated in a fixed priority order against an aggregate snapshot;
// each rule that holds contributes one rendered recommendation.
package recommend

import (
	"fmt"

	"procurement-insight/decision/insights"
	"procurement-insight/decision/metrics"
	"procurement-insight/decision/order"
)

// MaxRecommendations caps the generated list
const MaxRecommendations = 6

// NoOrdersMessage is the only recommendation for an empty batch
const NoOrdersMessage = "No purchase orders found. Create your first purchase order to start tracking spend."

// RuleID identifies the rule that produced a recommendation
type RuleID string

const (
	RuleNoOrders              RuleID = "no_orders"
	RulePendingOrders         RuleID = "pending_orders"
	RuleReceivingBacklog      RuleID = "receiving_backlog"
	RuleBillingBacklog        RuleID = "billing_backlog"
	RuleSupplierConcentration RuleID = "supplier_concentration"
	RuleSupplierScarcity      RuleID = "supplier_scarcity"
	RuleSupplierSprawl        RuleID = "supplier_sprawl"
	RuleHighOrderValue        RuleID = "high_order_value"
)

// Rule is one recommendation check
type Rule struct {
	ID RuleID
	// Halt stops evaluation of lower-priority rules once this rule fires
	Halt     bool
	Evaluate func(s insights.Snapshot) (string, bool)
}

// SubStatusTaxonomy names the pending sub-statuses used by the backlog rules.
// Deployments without such statuses leave Policy.Taxonomy nil and the rules are skipped.
type SubStatusTaxonomy struct {
	ToReceive []string
	ToBill    []string
}

// ERPNextTaxonomy is the ERPNext purchase-order status taxonomy
func ERPNextTaxonomy() *SubStatusTaxonomy {
	return &SubStatusTaxonomy{
		ToReceive: []string{order.StatusToReceiveAndBill, order.StatusToReceive},
		ToBill:    []string{order.StatusToBill, order.StatusToReceiveAndBill},
	}
}

// Policy holds the thresholds of the rule set
type Policy struct {
	ReceivingBacklogCount   int
	ConcentrationShare      float64
	FewSuppliersCount       int
	ManySuppliersCount      int
	HighOrderValueThreshold float64
	Taxonomy                *SubStatusTaxonomy
}

// DefaultPolicy returns the standard thresholds with the ERPNext taxonomy
func DefaultPolicy() Policy {
	return Policy{
		ReceivingBacklogCount:   3,
		ConcentrationShare:      0.5,
		FewSuppliersCount:       2,
		ManySuppliersCount:      10,
		HighOrderValueThreshold: 10000,
		Taxonomy:                ERPNextTaxonomy(),
	}
}

// Rules builds the ordered rule set for a policy. Order is priority.
func Rules(p Policy) []Rule {
	rules := []Rule{
		{
			ID:   RuleNoOrders,
			Halt: true,
			Evaluate: func(s insights.Snapshot) (string, bool) {
				return NoOrdersMessage, s.TotalOrders == 0
			},
		},
		{
			ID: RulePendingOrders,
			Evaluate: func(s insights.Snapshot) (string, bool) {
				if s.PendingCount == 0 {
					return "", false
				}
				return fmt.Sprintf("%d orders (%s) are pending. Review receiving/billing status.",
					s.PendingCount, metrics.FormatPercentage(float64(s.PendingCount), float64(s.TotalOrders))), true
			},
		},
	}

	if p.Taxonomy != nil {
		tax := *p.Taxonomy
		rules = append(rules,
			Rule{
				ID: RuleReceivingBacklog,
				Evaluate: func(s insights.Snapshot) (string, bool) {
					n := s.StatusCount(tax.ToReceive...)
					if n <= p.ReceivingBacklogCount {
						return "", false
					}
					return fmt.Sprintf("Many orders (%d) await receipt. Coordinate with warehouse/receiving team.", n), true
				},
			},
			Rule{
				ID: RuleBillingBacklog,
				Evaluate: func(s insights.Snapshot) (string, bool) {
					n := s.StatusCount(tax.ToBill...)
					if n == 0 {
						return "", false
					}
					return fmt.Sprintf("%d orders need billing. Process invoices to keep accounts current.", n), true
				},
			},
		)
	}

	rules = append(rules,
		Rule{
			ID: RuleSupplierConcentration,
			Evaluate: func(s insights.Snapshot) (string, bool) {
				top, _, ok := s.TopSupplierShare()
				if !ok || top.Spend <= s.TotalSpend*p.ConcentrationShare {
					return "", false
				}
				return fmt.Sprintf("Supplier '%s' accounts for %s of spend. Consider diversifying to reduce dependency.",
					top.Name, metrics.FormatPercentage(top.Spend, s.TotalSpend)), true
			},
		},
		Rule{
			ID: RuleSupplierScarcity,
			Evaluate: func(s insights.Snapshot) (string, bool) {
				if s.SupplierCount == 0 || s.SupplierCount > p.FewSuppliersCount {
					return "", false
				}
				return "You work with very few suppliers. Consider diversifying for better negotiating power and resilience.", true
			},
		},
		Rule{
			ID: RuleSupplierSprawl,
			Evaluate: func(s insights.Snapshot) (string, bool) {
				if s.SupplierCount <= p.ManySuppliersCount {
					return "", false
				}
				return "You have many suppliers. Consolidating could improve margins and reduce complexity.", true
			},
		},
		Rule{
			ID: RuleHighOrderValue,
			Evaluate: func(s insights.Snapshot) (string, bool) {
				if s.AverageOrderValue <= p.HighOrderValueThreshold {
					return "", false
				}
				return fmt.Sprintf("Average order value is %s. Consider reviewing large orders for cost optimization.",
					s.AverageOrderValueFormatted), true
			},
		},
	)

	return rules
}

// DefaultRules is the full rule set including the sub-status backlog rules
func DefaultRules() []Rule {
	return Rules(DefaultPolicy())
}

// CoreRules is the rule set without taxonomy-dependent rules
func CoreRules() []Rule {
	p := DefaultPolicy()
	p.Taxonomy = nil
	return Rules(p)
}

// Generate evaluates the default rules against the snapshot
func Generate(s insights.Snapshot) []string {
	return GenerateWith(s, DefaultRules())
}

// GenerateWith evaluates rules in order, keeping at most MaxRecommendations.
func GenerateWith(s insights.Snapshot, rules []Rule) []string {
	recs := make([]string, 0, MaxRecommendations)
	for _, r := range rules {
		msg, ok := r.Evaluate(s)
		if !ok {
			continue
		}
		recs = append(recs, msg)
		if r.Halt || len(recs) == MaxRecommendations {
			break
		}
	}
	return recs
}
