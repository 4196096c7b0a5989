// Package api exposes the procurement decision engines over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"procurement-insight/decision/anomaly"
	"procurement-insight/decision/approval"
	"procurement-insight/decision/delay"
	"procurement-insight/decision/explain"
	"procurement-insight/decision/insights"
	"procurement-insight/decision/order"
	"procurement-insight/decision/recommend"
	"procurement-insight/pkg/errors"
	"procurement-insight/pkg/platform"
	"procurement-insight/source"
)

const version = "1.0.0"

// EntityLister backs the list intents that are not purchase orders
type EntityLister interface {
	ListEntities(ctx context.Context, intent explain.Intent) (*explain.EntitySet, error)
}

// VerdictRecorder persists approval verdicts
type VerdictRecorder interface {
	SaveVerdict(ctx context.Context, v *approval.Verdict, decidedAt time.Time) error
}

// VerdictHistory reads recorded approval verdicts
type VerdictHistory interface {
	LatestVerdict(ctx context.Context, orderID string) (*approval.Verdict, error)
}

// Pinger is a dependency checked by /health/ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	APIKey         string
	// APIUser and APIPassword enable basic auth on /api/v1 when either is set
	APIUser     string
	APIPassword string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	orders     source.OrderSource
	entities   EntityLister
	verdicts   VerdictRecorder
	history    VerdictHistory
	ready      []Pinger
	analyzer   *approval.Analyzer
	anomalyCfg anomaly.Config
	rules      []recommend.Rule
	config     *Config
	logger     zerolog.Logger
	now        func() time.Time
}

// NewServer creates a server reading orders from src
func NewServer(src source.OrderSource, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		orders:     src,
		analyzer:   approval.NewAnalyzer(approval.DefaultConfig()),
		anomalyCfg: anomaly.DefaultConfig(),
		rules:      recommend.DefaultRules(),
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Server) WithEntities(l EntityLister) *Server {
	s.entities = l
	return s
}

func (s *Server) WithVerdictRecorder(r VerdictRecorder) *Server {
	s.verdicts = r
	return s
}

func (s *Server) WithVerdictHistory(h VerdictHistory) *Server {
	s.history = h
	return s
}

func (s *Server) WithReadinessCheck(p Pinger) *Server {
	s.ready = append(s.ready, p)
	return s
}

func (s *Server) WithAnalyzer(a *approval.Analyzer) *Server {
	s.analyzer = a
	return s
}

func (s *Server) WithAnomalyConfig(cfg anomaly.Config) *Server {
	s.anomalyCfg = cfg
	return s
}

func (s *Server) WithRules(rules []recommend.Rule) *Server {
	s.rules = rules
	return s
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))
		if s.config.APIUser != "" || s.config.APIPassword != "" {
			r.Use(platform.BasicAuthMiddleware(s.config.APIUser, s.config.APIPassword))
		}
		r.Get("/insights", s.handleInsights)
		r.Get("/explain/{intent}", s.handleExplain)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/delays", s.handleDelays)
		r.Get("/approval/{orderID}", s.handleApproval)
		r.Get("/approval/{orderID}/latest", s.handleLatestVerdict)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().Int("port", s.config.Port).Str("version", version).Msg("Starting procurement insight API")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info().Msg("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// INSIGHT ENDPOINTS
// =============================================================================

// InsightsResponse carries the aggregate and its recommendations. Explanation is
// present only when an intent query parameter resolves to one.
type InsightsResponse struct {
	Metrics         insights.Snapshot    `json:"metrics"`
	Recommendations []string             `json:"recommendations"`
	Explanation     *explain.Explanation `json:"explanation,omitempty"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	orders, ok := s.loadOrders(w, r)
	if !ok {
		return
	}

	snapshot := insights.ComputeAggregate(orders)
	resp := InsightsResponse{
		Metrics:         snapshot,
		Recommendations: recommend.GenerateWith(snapshot, s.rules),
	}

	if name := r.URL.Query().Get("intent"); name != "" {
		intent, ok := explain.ParseIntent(name)
		if !ok {
			s.logger.Warn().Str("intent", name).Msg("unsupported intent")
		} else {
			resp.Explanation = explain.Build(intent, explain.Facts{Snapshot: &snapshot, Recommendations: resp.Recommendations})
		}
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "intent")
	intent, ok := explain.ParseIntent(name)
	if !ok {
		s.logger.Warn().Str("intent", name).Msg("unsupported intent")
		s.jsonError(w, http.StatusNotFound, "unsupported intent")
		return
	}

	orders, ok := s.loadOrders(w, r)
	if !ok {
		return
	}

	snapshot := insights.ComputeAggregate(orders)
	facts := explain.Facts{
		Snapshot:        &snapshot,
		Recommendations: recommend.GenerateWith(snapshot, s.rules),
	}

	switch intent {
	case explain.DetectPriceAnomalies:
		report := anomaly.Detect(orders, s.anomalyCfg)
		facts.Anomalies = &report
	case explain.DetectDelayedOrders:
		asOf, ok := s.asOf(w, r)
		if !ok {
			return
		}
		report := delay.Detect(orders, asOf)
		facts.Delays = &report
	case explain.ApprovePurchaseOrder:
		verdict, ok := s.analyze(w, r, r.URL.Query().Get("order"), orders)
		if !ok {
			return
		}
		facts.Verdict = verdict
	case explain.TotalSpend, explain.ListPurchaseOrders:
	default:
		if s.entities != nil {
			set, err := s.entities.ListEntities(r.Context(), intent)
			if err != nil {
				s.logger.Warn().Err(err).Str("intent", intent.String()).Msg("entity list unavailable")
			} else {
				facts.Entities = set
			}
		}
	}

	e := explain.Build(intent, facts)
	if e == nil {
		s.logger.Warn().Str("intent", intent.String()).Msg("no explanation available")
		s.jsonError(w, http.StatusNotFound, "unsupported intent")
		return
	}
	s.jsonResponse(w, http.StatusOK, e)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	orders, ok := s.loadOrders(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, anomaly.Detect(orders, s.anomalyCfg))
}

func (s *Server) handleDelays(w http.ResponseWriter, r *http.Request) {
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	orders, ok := s.loadOrders(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, delay.Detect(orders, asOf))
}

// ApprovalResponse is the verdict with its rendered explanation
type ApprovalResponse struct {
	Verdict     *approval.Verdict    `json:"verdict"`
	Explanation *explain.Explanation `json:"explanation,omitempty"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	orders, ok := s.loadOrders(w, r)
	if !ok {
		return
	}

	verdict, ok := s.analyze(w, r, chi.URLParam(r, "orderID"), orders)
	if !ok {
		return
	}

	if s.verdicts != nil {
		if err := s.verdicts.SaveVerdict(r.Context(), verdict, s.now()); err != nil {
			s.logger.Error().Err(err).Str("order_id", verdict.OrderID).Msg("failed to record verdict")
		}
	}

	s.jsonResponse(w, http.StatusOK, ApprovalResponse{
		Verdict:     verdict,
		Explanation: explain.Build(explain.ApprovePurchaseOrder, explain.Facts{Verdict: verdict}),
	})
}

// handleLatestVerdict serves the last recorded verdict without re-running the analysis
func (s *Server) handleLatestVerdict(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, http.StatusNotImplemented, "verdict history not configured")
		return
	}

	id := chi.URLParam(r, "orderID")
	verdict, err := s.history.LatestVerdict(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id).Msg("failed to read verdict history")
		s.jsonError(w, http.StatusBadGateway, "failed to read verdict history")
		return
	}
	if verdict == nil {
		s.jsonError(w, http.StatusNotFound, fmt.Sprintf("no recorded verdict for %s", id))
		return
	}

	s.jsonResponse(w, http.StatusOK, ApprovalResponse{
		Verdict:     verdict,
		Explanation: explain.Build(explain.ApprovePurchaseOrder, explain.Facts{Verdict: verdict}),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) loadOrders(w http.ResponseWriter, r *http.Request) ([]order.Order, bool) {
	orders, err := s.orders.ListOrders(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load orders")
		s.jsonError(w, http.StatusBadGateway, "failed to load orders")
		return nil, false
	}
	return orders, true
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, id string, orders []order.Order) (*approval.Verdict, bool) {
	verdict, err := s.analyzer.Analyze(id, orders)
	if errors.IsNotFound(err) {
		s.jsonError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("approval failed: %v", err))
		return nil, false
	}
	return verdict, true
}

func (s *Server) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return s.now(), true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
