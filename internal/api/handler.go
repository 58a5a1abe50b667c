package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/cases"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/reference"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/simulate"
	"github.com/opensource-finance/kestrel/internal/stream"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

const (
	// DefaultGenerateCount is the batch size when a generate request omits count.
	DefaultGenerateCount = 10

	// MaxGenerateCount bounds one generate request.
	MaxGenerateCount = 1000

	// exportLimit caps the rows of one audit export.
	exportLimit = 10000
)

// Dependencies are the components the handlers use. Repo, Cache, Bus,
// Velocity, Stream and Cases may be nil; the routes that need them answer
// 503 Service Unavailable.
type Dependencies struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *scoring.Engine
	Processor *decision.Processor
	Generator *simulate.Generator
	Analyzer  *graph.Analyzer
	Stream    *stream.Session
	Cases     *cases.Manager
	Velocity  *velocity.Service
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *scoring.Engine
	processor *decision.Processor
	generator *simulate.Generator
	analyzer  *graph.Analyzer
	stream    *stream.Session
	cases     *cases.Manager
	velocity  *velocity.Service
	version   string
	now       func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string) *Handler {
	analyzer := deps.Analyzer
	if analyzer == nil && deps.Generator != nil {
		analyzer = deps.Generator.Analyzer()
	}
	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		engine:    deps.Engine,
		processor: deps.Processor,
		generator: deps.Generator,
		analyzer:  analyzer,
		stream:    deps.Stream,
		cases:     deps.Cases,
		velocity:  deps.Velocity,
		version:   version,
		now:       time.Now,
	}
}

// ============================================================================
// HEALTH
// ============================================================================

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			components[name] = "unavailable"
			status = "degraded"
			return
		}
		components[name] = "ok"
	}

	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("event_bus", h.bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

// ScoreRequest is the request body for POST /transactions/score.
// Omitted velocity is derived from the customer's recent activity;
// omitted merchant risk comes from the merchant table.
type ScoreRequest struct {
	ID               string         `json:"tx_id"`
	Timestamp        time.Time      `json:"timestamp"`
	Amount           float64        `json:"amount"`
	Merchant         string         `json:"merchant"`
	MerchantCategory string         `json:"merchant_category"`
	Channel          domain.Channel `json:"channel"`
	Country          string         `json:"country"`
	State            string         `json:"state"`
	CustomerID       string         `json:"customer_id"`
	DeviceID         string         `json:"device_id"`
	Velocity10Min    *int           `json:"velocity_10min"`
	AvgAmount30d     float64        `json:"avg_amount_30d"`
	DeviceChangeFlag bool           `json:"device_change_flag"`
	GeoDistanceKm    float64        `json:"geo_distance_km"`
	MerchantRisk     *float64       `json:"merchant_risk"`
}

// ScoreTransaction handles POST /transactions/score.
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if h.processor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "scoring not available",
		})
		return
	}

	draft, err := h.draft(ctx, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.processor.Process(ctx, draft)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishScored(ctx, tx)
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) draft(ctx context.Context, req *ScoreRequest) (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:               req.ID,
		Timestamp:        req.Timestamp,
		Amount:           req.Amount,
		Merchant:         req.Merchant,
		MerchantCategory: req.MerchantCategory,
		Channel:          req.Channel,
		Country:          req.Country,
		State:            req.State,
		CustomerID:       req.CustomerID,
		DeviceID:         req.DeviceID,
		AvgAmount30d:     req.AvgAmount30d,
		DeviceChangeFlag: req.DeviceChangeFlag,
		GeoDistanceKm:    req.GeoDistanceKm,
	}
	if tx.ID == "" {
		tx.ID = "TX-" + strings.ToUpper(uuid.NewString()[:8])
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = h.now().UTC()
	}

	merchant, known := reference.MerchantByName(req.Merchant)
	switch {
	case req.MerchantRisk != nil:
		tx.MerchantRisk = *req.MerchantRisk
	case known:
		tx.MerchantRisk = merchant.Risk
	}
	if tx.MerchantCategory == "" && known {
		tx.MerchantCategory = merchant.Category
	}

	// Reject bad input before it counts towards the customer's velocity.
	if _, err := tx.Features(false).Normalize(); err != nil {
		return nil, err
	}

	switch {
	case req.Velocity10Min != nil:
		tx.Velocity10Min = *req.Velocity10Min
	case h.velocity != nil && tx.CustomerID != "":
		v, err := h.velocity.Observe(ctx, tx.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to derive velocity: %w", err)
		}
		tx.Velocity10Min = v
	}
	return tx, nil
}

// GenerateRequest is the request body for POST /transactions/generate.
type GenerateRequest struct {
	Count      int  `json:"count"`
	AttackMode bool `json:"attackMode"`
}

// GenerateTransactions handles POST /transactions/generate.
func (h *Handler) GenerateTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req GenerateRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if h.generator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "generator not available",
		})
		return
	}

	if req.Count == 0 {
		req.Count = DefaultGenerateCount
	}
	if req.Count < 0 || req.Count > MaxGenerateCount {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("count must be between 1 and %d", MaxGenerateCount),
		})
		return
	}

	batch, err := h.generator.GenerateBatch(ctx, req.Count, req.AttackMode)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, tx := range batch {
		h.publishScored(ctx, tx)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(batch),
		"attackMode":   req.AttackMode,
		"transactions": batch,
	})
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := domain.TransactionFilter{
		CustomerID: q.Get("customer_id"),
		Decision:   domain.Decision(q.Get("decision")),
		Limit:      limit,
	}
	if filter.Decision != "" && !filter.Decision.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown decision %q", filter.Decision),
		})
		return
	}
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC 3339 timestamp",
			})
			return
		}
		filter.Since = ts
	}

	txs, err := h.repo.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(txs),
		"transactions": txs,
	})
}

// GetTransaction retrieves a scored transaction, checking the cache before
// the repository.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if h.cache != nil {
		tx, err := h.cache.GetTransaction(ctx, txID)
		if err != nil {
			slog.Warn("cache lookup failed", "tx_id", txID, "error", err)
		}
		if tx != nil {
			writeJSON(w, http.StatusOK, tx)
			return
		}
	}

	if !h.requireRepo(w) {
		return
	}
	tx, err := h.repo.GetTransaction(ctx, txID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ============================================================================
// SCORING
// ============================================================================

// ListFactors returns the live scoring factors and decision bands.
func (h *Handler) ListFactors(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil || h.processor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "scoring not available",
		})
		return
	}

	th := h.processor.Thresholds()
	writeJSON(w, http.StatusOK, map[string]any{
		"factors": h.engine.Factors(),
		"thresholds": map[string]int{
			"challengeAt": th.ChallengeAt,
			"declineAt":   th.DeclineAt,
		},
	})
}

// ListReasons returns the reason code vocabulary.
func (h *Handler) ListReasons(w http.ResponseWriter, r *http.Request) {
	type reason struct {
		Code        domain.ReasonCode `json:"code"`
		Description string            `json:"description"`
	}
	vocab := domain.ReasonVocabulary()
	out := make([]reason, 0, len(vocab))
	for _, code := range vocab {
		out = append(out, reason{Code: code, Description: code.Description()})
	}
	writeJSON(w, http.StatusOK, out)
}

// ============================================================================
// CLUSTERS
// ============================================================================

// GenerateClusterRequest is the request body for POST /clusters/generate.
type GenerateClusterRequest struct {
	Typology string `json:"typology"`
}

// GenerateCluster handles POST /clusters/generate.
func (h *Handler) GenerateCluster(w http.ResponseWriter, r *http.Request) {
	var req GenerateClusterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if h.generator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "generator not available",
		})
		return
	}

	typology, err := domain.ParseTypology(req.Typology)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %q", err, req.Typology))
		return
	}

	cluster, err := h.generator.GenerateMuleCluster(typology)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), domain.TopicClusterDetected, cluster)
	writeJSON(w, http.StatusCreated, cluster)
}

// AnalyzeClusterRequest is the request body for POST /clusters/analyze.
type AnalyzeClusterRequest struct {
	ClusterID string            `json:"cluster_id"`
	Typology  string            `json:"typology"`
	Transfers []domain.Transfer `json:"transfers"`
}

// AnalyzeCluster handles POST /clusters/analyze for caller-supplied transfers.
func (h *Handler) AnalyzeCluster(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeClusterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "analyzer not available",
		})
		return
	}

	typology, err := domain.ParseTypology(req.Typology)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %q", err, req.Typology))
		return
	}

	cluster, err := h.analyzer.Analyze(graph.Input{
		ClusterID: req.ClusterID,
		Typology:  typology,
		Transfers: req.Transfers,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), domain.TopicClusterDetected, cluster)
	writeJSON(w, http.StatusCreated, cluster)
}

// ListClusters handles GET /clusters.
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	clusters, err := h.repo.ListClusters(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(clusters),
		"clusters": clusters,
	})
}

// GetCluster handles GET /clusters/{id}.
func (h *Handler) GetCluster(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	cluster, err := h.repo.GetCluster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cluster)
}

// ClusterSAR renders the SAR-ready summary of a cluster as plain text.
func (h *Handler) ClusterSAR(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	cluster, err := h.repo.GetCluster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, report.SARSummary(cluster, h.now()))
}

// ============================================================================
// STREAM
// ============================================================================

// StreamRequest is the request body for POST /stream/start.
type StreamRequest struct {
	Rate       float64 `json:"rate"`
	AttackMode *bool   `json:"attackMode"`
}

// StreamStatus returns the session counters and the buffered transactions.
func (h *Handler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireStream(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":        h.stream.Stats(),
		"transactions": h.stream.Snapshot(),
	})
}

// StartStream handles POST /stream/start.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if !h.requireStream(w) {
		return
	}

	if req.Rate != 0 {
		if err := h.stream.SetRate(req.Rate); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.AttackMode != nil {
		h.stream.SetAttackMode(*req.AttackMode)
	}

	// The session outlives the request.
	if err := h.stream.Start(context.Background()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.stream.Stats())
}

// StopStream handles POST /stream/stop.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	if !h.requireStream(w) {
		return
	}
	h.stream.Stop()
	writeJSON(w, http.StatusOK, h.stream.Stats())
}

// ResetStream clears the session buffer and counters.
func (h *Handler) ResetStream(w http.ResponseWriter, r *http.Request) {
	if !h.requireStream(w) {
		return
	}
	h.stream.Reset()
	writeJSON(w, http.StatusOK, h.stream.Stats())
}

// ============================================================================
// CASES
// ============================================================================

// OpenCaseRequest is the request body for POST /cases.
type OpenCaseRequest struct {
	ClusterID string `json:"cluster_id"`
	Reviewer  string `json:"reviewer"`
}

// TransitionRequest is the request body for POST /cases/{id}/transition.
type TransitionRequest struct {
	Status domain.CaseStatus `json:"status"`
	Actor  string            `json:"actor"`
}

// EvidenceRequest is the request body for POST /cases/{id}/evidence.
type EvidenceRequest struct {
	Item  string `json:"item"`
	Actor string `json:"actor"`
}

// NoteRequest is the request body for POST /cases/{id}/notes.
type NoteRequest struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// OpenCase handles POST /cases.
func (h *Handler) OpenCase(w http.ResponseWriter, r *http.Request) {
	var req OpenCaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireCases(w) {
		return
	}
	if req.ClusterID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cluster_id is required",
		})
		return
	}

	c, err := h.cases.Open(r.Context(), req.ClusterID, req.Reviewer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListCases handles GET /cases.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	if !h.requireCases(w) {
		return
	}

	q := r.URL.Query()
	filter := domain.CaseFilter{
		ClusterID: q.Get("cluster_id"),
		Status:    domain.CaseStatus(q.Get("status")),
		Priority:  domain.Priority(q.Get("priority")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown case status %q", filter.Status),
		})
		return
	}

	list, err := h.cases.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(list),
		"cases": list,
	})
}

// GetCase handles GET /cases/{id}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	if !h.requireCases(w) {
		return
	}
	c, err := h.cases.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// TransitionCase handles POST /cases/{id}/transition.
func (h *Handler) TransitionCase(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireCases(w) {
		return
	}

	c, err := h.cases.Transition(r.Context(), chi.URLParam(r, "id"), req.Status, actorOr(req.Actor))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CompleteEvidence handles POST /cases/{id}/evidence.
func (h *Handler) CompleteEvidence(w http.ResponseWriter, r *http.Request) {
	var req EvidenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireCases(w) {
		return
	}

	c, err := h.cases.CompleteEvidence(r.Context(), chi.URLParam(r, "id"), req.Item, actorOr(req.Actor))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AddNote handles POST /cases/{id}/notes.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.requireCases(w) {
		return
	}

	c, err := h.cases.AddNote(r.Context(), chi.URLParam(r, "id"), req.Text, req.Author)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func actorOr(actor string) string {
	if actor == "" {
		return cases.UnassignedReview
	}
	return actor
}

// ============================================================================
// AUDIT
// ============================================================================

// ListAudit handles GET /audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	entries, err := h.repo.ListAuditEntries(r.Context(), auditFilter(r, limit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// ExportAudit streams the audit trail as a CSV attachment.
func (h *Handler) ExportAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	entries, err := h.repo.ListAuditEntries(r.Context(), auditFilter(r, exportLimit))
	if err != nil {
		writeError(w, err)
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.csv", h.now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := report.WriteAuditCSV(w, entries); err != nil {
		slog.Error("failed to write audit export", "error", err)
	}
}

func auditFilter(r *http.Request, limit int) domain.AuditFilter {
	q := r.URL.Query()
	return domain.AuditFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Limit:      limit,
	}
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) publishScored(ctx context.Context, tx *domain.Transaction) {
	h.publish(ctx, domain.TopicTransactionScored, tx)
	if decision.ShouldAlert(tx) {
		h.publish(ctx, domain.TopicAlert, tx)
	}
}

// publish sends v on the bus. Failures are logged; the caller's response
// does not depend on delivery.
func (h *Handler) publish(ctx context.Context, topic string, v any) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return false
	}
	return true
}

func (h *Handler) requireStream(w http.ResponseWriter) bool {
	if h.stream == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stream not available",
		})
		return false
	}
	return true
}

func (h *Handler) requireCases(w http.ResponseWriter) bool {
	if h.cases == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "case management not available",
		})
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body as all defaults.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decodeBody(w, r, v)
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "limit must be a non-negative integer",
		})
		return 0, false
	}
	return limit, true
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownTypology),
		errors.Is(err, domain.ErrEmptyTransfers):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStreamStopped):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status != http.StatusInternalServerError {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	// Details stay in the log; the client gets the trace ID to quote.
	traceID := w.Header().Get(TraceIDHeader)
	slog.Error("request failed", "error", err, "trace_id", traceID)
	writeJSON(w, status, map[string]string{
		"error":    "internal server error",
		"trace_id": traceID,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
