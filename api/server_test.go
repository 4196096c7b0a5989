package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procurement-insight/decision/approval"
	"procurement-insight/decision/explain"
	"procurement-insight/decision/order"
	"procurement-insight/source"
)

func testOrders() source.Static {
	return source.Static{
		{ID: "PO-1", Supplier: "Acme", GrandTotal: 400, Status: "Completed", Date: "2026-01-02",
			Items: []order.Item{{ItemCode: "CPU", Quantity: 1, Rate: 400}}},
		{ID: "PO-2", Supplier: "Acme", GrandTotal: 400, Status: "Completed", Date: "2026-01-09",
			Items: []order.Item{{ItemCode: "CPU", Quantity: 1, Rate: 400}}},
		{ID: "PO-3", Supplier: "Globex", GrandTotal: 200, Status: "To Receive", Date: "2026-01-15", ScheduleDate: "2026-02-01",
			Items: []order.Item{{ItemCode: "RAM", Quantity: 4, Rate: 50}}},
		{ID: "PO-T", Supplier: "Acme", GrandTotal: 600, Status: "Draft", Date: "2026-02-20",
			Items: []order.Item{{ItemCode: "CPU", Quantity: 1, Rate: 600}}},
	}
}

type failingSource struct{}

func (failingSource) ListOrders(context.Context) ([]order.Order, error) {
	return nil, stderrors.New("erp unreachable")
}

type fakeLister struct{ set *explain.EntitySet }

func (f fakeLister) ListEntities(context.Context, explain.Intent) (*explain.EntitySet, error) {
	return f.set, nil
}

type fakeRecorder struct{ saved []*approval.Verdict }

func (f *fakeRecorder) SaveVerdict(_ context.Context, v *approval.Verdict, _ time.Time) error {
	f.saved = append(f.saved, v)
	return nil
}

func (f *fakeRecorder) LatestVerdict(_ context.Context, orderID string) (*approval.Verdict, error) {
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].OrderID == orderID {
			return f.saved[i], nil
		}
	}
	return nil, nil
}

type brokenHistory struct{}

func (brokenHistory) LatestVerdict(context.Context, string) (*approval.Verdict, error) {
	return nil, stderrors.New("connection refused")
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(src source.OrderSource, cfg *Config) *Server {
	s := NewServer(src, cfg, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	h := newTestServer(testOrders(), nil).Handler()

	rec, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReady(t *testing.T) {
	rec, _ := get(t, newTestServer(testOrders(), nil).WithReadinessCheck(fakePinger{}).Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := get(t, newTestServer(testOrders(), nil).WithReadinessCheck(fakePinger{err: stderrors.New("down")}).Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database not ready", body["error"])
}

func TestInsights(t *testing.T) {
	rec, body := get(t, newTestServer(testOrders(), nil).Handler(), "/api/v1/insights")
	require.Equal(t, http.StatusOK, rec.Code)

	metrics := body["metrics"].(map[string]any)
	assert.Equal(t, float64(4), metrics["total_orders"])
	assert.Equal(t, float64(1600), metrics["total_spend"])
	assert.Equal(t, float64(2), metrics["supplier_count"])
	assert.NotEmpty(t, body["recommendations"])
	assert.NotContains(t, body, "explanation")
}

func TestInsights_UnsupportedIntentDoesNotAbort(t *testing.T) {
	rec, body := get(t, newTestServer(testOrders(), nil).Handler(), "/api/v1/insights?intent=weather")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "metrics")
	assert.NotContains(t, body, "explanation")

	rec, body = get(t, newTestServer(testOrders(), nil).Handler(), "/api/v1/insights?intent=total_spend")
	require.Equal(t, http.StatusOK, rec.Code)
	explanation := body["explanation"].(map[string]any)
	assert.Equal(t, "total_spend", explanation["intent"])
}

func TestInsights_EmptyBatch(t *testing.T) {
	rec, body := get(t, newTestServer(source.Static{}, nil).Handler(), "/api/v1/insights")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"No purchase orders found. Create your first purchase order to start tracking spend."}, body["recommendations"])
}

func TestSourceFailure(t *testing.T) {
	rec, body := get(t, newTestServer(failingSource{}, nil).Handler(), "/api/v1/insights")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "failed to load orders", body["error"])
}

func TestExplain(t *testing.T) {
	h := newTestServer(testOrders(), nil).Handler()

	rec, body := get(t, h, "/api/v1/explain/total_spend")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, explain.Title, body["title"])
	assert.NotEmpty(t, body["reasons"])

	rec, body = get(t, h, "/api/v1/explain/forecast_weather")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unsupported intent", body["error"])
}

func TestExplain_EntityIntents(t *testing.T) {
	rec, _ := get(t, newTestServer(testOrders(), nil).Handler(), "/api/v1/explain/list_suppliers")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	lister := fakeLister{set: &explain.EntitySet{Records: []explain.Entity{{Name: "Acme"}, {Name: "Globex"}}}}
	rec, body := get(t, newTestServer(testOrders(), nil).WithEntities(lister).Handler(), "/api/v1/explain/list_suppliers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You have 2 suppliers in the system.", body["summary"])
}

func TestExplain_Delays(t *testing.T) {
	h := newTestServer(testOrders(), nil).Handler()

	rec, body := get(t, h, "/api/v1/explain/detect_delayed_orders?as_of=2026-02-11")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "detect_delayed_orders", body["intent"])

	rec, _ = get(t, h, "/api/v1/explain/detect_delayed_orders?as_of=11/02/2026")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExplain_Approval(t *testing.T) {
	h := newTestServer(testOrders(), nil).Handler()

	rec, body := get(t, h, "/api/v1/explain/approve_purchase_order?order=PO-T")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approve_purchase_order", body["intent"])

	rec, _ = get(t, h, "/api/v1/explain/approve_purchase_order?order=PO-404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnomalies(t *testing.T) {
	rec, body := get(t, newTestServer(testOrders(), nil).Handler(), "/api/v1/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)

	anomalies := body["anomalies"].([]any)
	require.Len(t, anomalies, 1)
	first := anomalies[0].(map[string]any)
	assert.Equal(t, "PO-T", first["order_id"])
	assert.Equal(t, "CPU", first["item_code"])
}

func TestDelays(t *testing.T) {
	h := newTestServer(testOrders(), nil).Handler()

	rec, body := get(t, h, "/api/v1/delays?as_of=2026-02-11")
	require.Equal(t, http.StatusOK, rec.Code)
	delayed := body["delayed_orders"].([]any)
	require.Len(t, delayed, 1)
	assert.Equal(t, "PO-3", delayed[0].(map[string]any)["order_id"])
	assert.Equal(t, float64(10), delayed[0].(map[string]any)["days_overdue"])

	// defaults to the server clock
	rec, body = get(t, h, "/api/v1/delays")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(28), body["delayed_orders"].([]any)[0].(map[string]any)["days_overdue"])
}

func TestApproval(t *testing.T) {
	recorder := &fakeRecorder{}
	h := newTestServer(testOrders(), nil).WithVerdictRecorder(recorder).Handler()

	rec, body := get(t, h, "/api/v1/approval/PO-T")
	require.Equal(t, http.StatusOK, rec.Code)

	verdict := body["verdict"].(map[string]any)
	assert.Equal(t, "DO_NOT_APPROVE", verdict["decision"])
	assert.Equal(t, float64(30), verdict["risk_score"])
	assert.Contains(t, body, "explanation")
	require.Len(t, recorder.saved, 1)
	assert.Equal(t, "PO-T", recorder.saved[0].OrderID)
}

func TestApproval_NotFound(t *testing.T) {
	rec, body := get(t, newTestServer(testOrders(), nil).Handler(), "/api/v1/approval/PO-404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "ORDER_NOT_FOUND")
}

func TestAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "s3cret"
	h := newTestServer(testOrders(), cfg).Handler()

	rec, _ := get(t, h, "/api/v1/insights")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights", nil)
	req.Header.Set("X-API-Key", "s3cret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// health stays open
	rec, _ = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLatestVerdict(t *testing.T) {
	recorder := &fakeRecorder{}
	h := newTestServer(testOrders(), nil).WithVerdictRecorder(recorder).WithVerdictHistory(recorder).Handler()

	rec, _ := get(t, h, "/api/v1/approval/PO-T/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, h, "/api/v1/approval/PO-T")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := get(t, h, "/api/v1/approval/PO-T/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	verdict := body["verdict"].(map[string]any)
	assert.Equal(t, "PO-T", verdict["order_id"])
	assert.Equal(t, "DO_NOT_APPROVE", verdict["decision"])
	assert.Contains(t, body, "explanation")
	assert.Len(t, recorder.saved, 1)
}

func TestLatestVerdict_Unavailable(t *testing.T) {
	rec, body := get(t, newTestServer(testOrders(), nil).Handler(), "/api/v1/approval/PO-T/latest")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "verdict history not configured", body["error"])

	rec, body = get(t, newTestServer(testOrders(), nil).WithVerdictHistory(brokenHistory{}).Handler(), "/api/v1/approval/PO-T/latest")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "failed to read verdict history", body["error"])
}

func TestBasicAuth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIUser = "buyer"
	cfg.APIPassword = "pw"
	h := newTestServer(testOrders(), cfg).Handler()

	rec, _ := get(t, h, "/api/v1/insights")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="Restricted"`, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights", nil)
	req.SetBasicAuth("buyer", "pw")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	rec, _ = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	// a half-configured credential pair fails closed
	cfg = DefaultConfig()
	cfg.APIUser = "buyer"
	rec, _ = get(t, newTestServer(testOrders(), cfg).Handler(), "/api/v1/insights")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
