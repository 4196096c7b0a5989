package explain

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procurement-insight/decision/anomaly"
	"procurement-insight/decision/approval"
	"procurement-insight/decision/delay"
	"procurement-insight/decision/insights"
	"procurement-insight/decision/order"
	"procurement-insight/decision/recommend"
	"procurement-insight/pkg/errors"
)

func sampleOrders() []order.Order {
	return []order.Order{
		{ID: "PO-1", Supplier: "Acme", GrandTotal: 1000, Status: "Completed", ScheduleDate: "2026-01-10",
			Items: []order.Item{{ItemCode: "CPU", Rate: 400}}},
		{ID: "PO-2", Supplier: "Acme", GrandTotal: 500, Status: "Completed",
			Items: []order.Item{{ItemCode: "CPU", Rate: 350}}},
		{ID: "PO-3", Supplier: "Globex", GrandTotal: 400, Status: "To Receive", ScheduleDate: "2026-02-01",
			Items: []order.Item{{ItemCode: "RAM", Rate: 50}}},
		{ID: "PO-4", Supplier: "Globex", GrandTotal: 300, Status: "Completed",
			Items: []order.Item{{ItemCode: "RAM", Rate: 50}}},
		{ID: "PO-5", Supplier: "Initech", GrandTotal: 150, Status: "Draft",
			Items: []order.Item{{ItemCode: "CPU", Rate: 450}}},
	}
}

func fullFacts(t *testing.T) Facts {
	orders := sampleOrders()
	snap := insights.ComputeAggregate(orders)
	anomalies := anomaly.Detect(orders, anomaly.DefaultConfig())
	delays := delay.Detect(orders, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	verdict, err := approval.NewAnalyzer(approval.DefaultConfig()).Analyze("PO-5", orders)
	require.NoError(t, err)

	return Facts{
		Snapshot:        &snap,
		Recommendations: recommend.Generate(snap),
		Anomalies:       &anomalies,
		Delays:          &delays,
		Entities: &EntitySet{Records: []Entity{
			{Name: "INV-1", Supplier: "Acme"}, {Name: "INV-2", Supplier: "Globex"}, {Name: "INV-3", Customer: "Umbrella"},
		}},
		Verdict: verdict,
	}
}

func TestEveryIntentHasTemplate(t *testing.T) {
	require.Len(t, Intents(), int(intentCount))
	for _, i := range Intents() {
		assert.NotNil(t, templates[i], i.String())
		assert.NotEqual(t, "", intentNames[i])

		parsed, ok := ParseIntent(i.String())
		assert.True(t, ok)
		assert.Equal(t, i, parsed)
	}
}

func TestParseIntent(t *testing.T) {
	i, ok := ParseIntent("  Total_Spend ")
	assert.True(t, ok)
	assert.Equal(t, TotalSpend, i)

	_, ok = ParseIntent("forecast_demand")
	assert.False(t, ok)

	_, err := Lookup("forecast_demand")
	assert.True(t, stderrors.Is(err, errors.ErrUnsupportedIntent))
	assert.Equal(t, "unknown", Intent(99).String())
}

func TestBuild_FailsSoft(t *testing.T) {
	assert.Nil(t, Build(Intent(99), fullFacts(t)))
	assert.Nil(t, Build(Intent(-1), Facts{}))
	for _, i := range Intents() {
		assert.Nil(t, Build(i, Facts{}), i.String())
	}
}

func TestBuild_ShapeForEveryIntent(t *testing.T) {
	facts := fullFacts(t)
	for _, i := range Intents() {
		e := Build(i, facts)
		require.NotNil(t, e, i.String())
		assert.Equal(t, Title, e.Title)
		assert.Equal(t, i, e.Intent)
		assert.NotEmpty(t, e.Summary, i.String())
		assert.GreaterOrEqual(t, len(e.Reasons), 2, i.String())
		assert.LessOrEqual(t, len(e.Reasons), 5, i.String())
		assert.GreaterOrEqual(t, len(e.NextActions), 1, i.String())
		assert.LessOrEqual(t, len(e.NextActions), 3, i.String())
	}
}

func TestBuild_TotalSpendEvidence(t *testing.T) {
	snap := insights.ComputeAggregate(sampleOrders())
	e := Build(TotalSpend, Facts{Snapshot: &snap})
	require.NotNil(t, e)

	assert.Equal(t, "Your organization has spent $2,350.00 across 5 purchase orders, with an average order value of $470.00.", e.Summary)
	assert.Equal(t, []Reason{
		{Recommendation: "Total spend across all purchase orders", Evidence: "$2,350.00 spent across 5 orders"},
		{Recommendation: "Order completion status: 3 of 5 orders completed", Evidence: "60.0% completion rate (3 completed, 2 pending)"},
		{Recommendation: "Average purchase order size indicates spending patterns", Evidence: "Average order value: $470.00 (2,350.00 ÷ 5 orders)"},
		{Recommendation: "Largest supplier by spend: Acme", Evidence: "$1,500.00 of $2,350.00 (63.8%)"},
	}, e.Reasons)
	assert.Equal(t, "Review pending orders (2) to track delivery and invoicing progress", e.NextActions[0])
}

func TestBuild_TotalSpendCapsReasons(t *testing.T) {
	facts := fullFacts(t)
	require.Len(t, facts.Recommendations, 2)

	e := Build(TotalSpend, facts)
	require.Len(t, e.Reasons, 5)
	assert.Equal(t, facts.Recommendations[0], e.Reasons[4].Recommendation)
	assert.Equal(t, "Derived from 5 orders totalling $2,350.00, 2 pending across 3 suppliers", e.Reasons[4].Evidence)
}

func TestBuild_ListPurchaseOrders(t *testing.T) {
	snap := insights.ComputeAggregate(sampleOrders())
	e := Build(ListPurchaseOrders, Facts{Snapshot: &snap})
	require.NotNil(t, e)

	assert.Equal(t, "3 Completed, 1 Draft, 1 To Receive", e.Reasons[1].Evidence)
	assert.Equal(t, "Orders placed with 3 different suppliers", e.Reasons[2].Evidence)
	assert.Equal(t, "Follow up on pending items in 2 orders", e.NextActions[2])
}

func TestBuild_ListEntities(t *testing.T) {
	e := Build(ListVendorBills, fullFacts(t))
	require.NotNil(t, e)

	assert.Equal(t, "You have 3 vendor bills in the system.", e.Summary)
	assert.Equal(t, "2 different suppliers involved", e.Reasons[1].Evidence)
	assert.Equal(t, "1 different customers involved", e.Reasons[2].Evidence)
}

func TestBuild_PriceAnomalies(t *testing.T) {
	e := Build(DetectPriceAnomalies, fullFacts(t))
	require.NotNil(t, e)

	// CPU rates 400, 350, 450 average 400; 450 is 12.5% above so nothing is flagged
	assert.Equal(t, "Price analysis of 2 item(s) found 0 item(s) priced 20% or more above their average rate.", e.Summary)
	assert.Equal(t, "No line priced 20% or more above its item average across 5 purchase(s)", e.Reasons[0].Evidence)
	assert.Equal(t, "Normal pricing confirmed for 2 item(s)", e.Reasons[1].Recommendation)
	assert.Equal(t, "Continue monitoring supplier pricing for consistency", e.NextActions[0])
}

func TestBuild_PriceAnomaliesFlagged(t *testing.T) {
	orders := append(sampleOrders(), order.Order{ID: "PO-6", Supplier: "Initech",
		Items: []order.Item{{ItemCode: "RAM", Rate: 110}}})
	report := anomaly.Detect(orders, anomaly.DefaultConfig())

	e := Build(DetectPriceAnomalies, Facts{Anomalies: &report})
	require.NotNil(t, e)

	assert.Equal(t, "Items priced 20% or higher above average: RAM", e.Reasons[0].Evidence)
	assert.Equal(t, "Largest deviation: RAM from Initech", e.Reasons[1].Recommendation)
	assert.Equal(t, "$110.00 vs average $70.00 (57.1% above, $40.00 rated Critical)", e.Reasons[1].Evidence)
	assert.Equal(t, "Normal pricing confirmed for 1 item(s)", e.Reasons[2].Recommendation)
}

func TestBuild_DelayedOrders(t *testing.T) {
	e := Build(DetectDelayedOrders, fullFacts(t))
	require.NotNil(t, e)

	assert.Equal(t, "1 of 5 orders are past their scheduled delivery date as of 2026-03-01.", e.Summary)
	assert.Equal(t, "Total 28 days overdue, averaging 28.0 days late per order (28 ÷ 1 orders)", e.Reasons[0].Evidence)
	assert.Equal(t, "80.0% on time (4 ÷ 5 orders)", e.Reasons[1].Evidence)
	assert.Equal(t, "Most overdue order: PO-3 from Globex", e.Reasons[2].Recommendation)
}

func TestBuild_NoDelays(t *testing.T) {
	report := delay.Detect(sampleOrders(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e := Build(DetectDelayedOrders, Facts{Delays: &report})
	require.NotNil(t, e)

	assert.Equal(t, "No delayed orders detected as of 2026-01-01; all 5 deliveries are on track.", e.Summary)
	assert.Equal(t, "5 of 5 orders on time", e.Reasons[0].Evidence)
	assert.Equal(t, "2 of 5 orders carry a schedule date, 0 past due as of 2026-01-01", e.Reasons[1].Evidence)
}

func TestBuild_EmptyInputsStillCiteTwoReasons(t *testing.T) {
	snap := insights.ComputeAggregate(nil)
	anomalies := anomaly.Detect(nil, anomaly.DefaultConfig())
	delays := delay.Detect(nil, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	facts := Facts{
		Snapshot:  &snap,
		Anomalies: &anomalies,
		Delays:    &delays,
		Entities:  &EntitySet{Records: []Entity{{Name: "Bolt"}, {Name: "Nut"}}},
	}

	for _, intent := range []Intent{ListPurchaseOrders, ListItems, ListSuppliers, DetectPriceAnomalies, DetectDelayedOrders} {
		t.Run(intent.String(), func(t *testing.T) {
			e := Build(intent, facts)
			require.NotNil(t, e)
			assert.GreaterOrEqual(t, len(e.Reasons), 2)
			for _, r := range e.Reasons {
				assert.NotEmpty(t, r.Evidence)
			}
		})
	}

	e := Build(ListPurchaseOrders, facts)
	assert.Equal(t, "0 pending, 0 suppliers", e.Reasons[1].Evidence)
	e = Build(ListItems, facts)
	assert.Equal(t, "0 of 2 items in catalog name a supplier or customer", e.Reasons[1].Evidence)
	e = Build(DetectPriceAnomalies, facts)
	assert.Equal(t, "0 item(s) analyzed, 0 anomaly record(s)", e.Reasons[1].Evidence)
}

func TestBuild_Approval(t *testing.T) {
	orders := append(sampleOrders(), order.Order{ID: "PO-T", Supplier: "Acme", Status: "Draft", GrandTotal: 900,
		Items: []order.Item{{ItemCode: "CPU", Rate: 480}, {ItemCode: "GPU", Rate: 900}}})
	v, err := approval.NewAnalyzer(approval.DefaultConfig()).Analyze("PO-T", orders)
	require.NoError(t, err)
	require.Equal(t, approval.DoNotApprove, v.Decision)

	e := Build(ApprovePurchaseOrder, Facts{Verdict: v})
	require.NotNil(t, e)

	assert.Contains(t, e.Summary, "Purchase order PO-T: DO_NOT_APPROVE.")
	assert.Equal(t, "CPU at $480.00 vs average $400.00 over 3 purchase(s) (+20.0%)", e.Reasons[0].Evidence)
	assert.Equal(t, "GPU at $900.00 has no purchase history", e.Reasons[1].Evidence)
	assert.Equal(t, "Risk score 30 from 2 finding(s)", e.Reasons[2].Evidence)
	assert.Equal(t, v.NextActions, e.NextActions)
}

func TestFormatText(t *testing.T) {
	e := &Explanation{
		Title:       Title,
		Summary:     "Spent $10.00.",
		Reasons:     []Reason{{Recommendation: "Spend", Evidence: "$10.00 across 1 orders"}},
		NextActions: []string{"Review spend"},
	}

	out := FormatText(e)
	assert.Contains(t, out, "Why these recommendations?\n"+"==================================================\n")
	assert.Contains(t, out, "Summary:\nSpent $10.00.\n")
	assert.Contains(t, out, "1. Spend\n   Evidence: $10.00 across 1 orders\n")
	assert.Contains(t, out, "Next Actions:\n- Review spend\n")
	assert.Equal(t, "", FormatText(nil))
}
