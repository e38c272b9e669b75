package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openrisk-labs/kestrel/internal/detection"
	"github.com/openrisk-labs/kestrel/internal/domain"
	"github.com/openrisk-labs/kestrel/internal/pipeline"
	"github.com/openrisk-labs/kestrel/internal/repository"
	"github.com/openrisk-labs/kestrel/internal/rules"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	engine  *rules.Engine
	runner  *pipeline.Runner
	cfg     *domain.Config
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, engine *rules.Engine, runner *pipeline.Runner, cfg *domain.Config, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		engine:  engine,
		runner:  runner,
		cfg:     cfg,
		version: version,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health returns service health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	if err := h.repo.Ping(ctx); err != nil {
		status = "degraded"
		checks["repository"] = err.Error()
	} else {
		checks["repository"] = "ok"
	}

	if err := h.cache.Ping(ctx); err != nil {
		status = "degraded"
		checks["cache"] = err.Error()
	} else {
		checks["cache"] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns readiness status.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "repository not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Summary returns per-level counts and amount aggregates for the latest run.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cached, err := h.cache.Get(ctx, domain.CacheKeySummary); err == nil && cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	summaries, err := h.repo.LevelSummaries(ctx)
	if err != nil {
		slog.Error("failed to query level summaries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query summaries")
		return
	}

	total, err := h.repo.CountTransactions(ctx)
	if err != nil {
		slog.Error("failed to count transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count transactions")
		return
	}

	payload := map[string]any{
		"total_transactions": total,
		"levels":             summaries,
	}

	h.cacheSet(ctx, domain.CacheKeySummary, payload)
	writeJSON(w, http.StatusOK, payload)
}

// Detection returns precision/recall/F1 against the known_fraud labels.
func (h *Handler) Detection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cached, err := h.cache.Get(ctx, domain.CacheKeyDetection); err == nil && cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	counts, err := h.repo.DetectionCounts(ctx)
	if err != nil {
		slog.Error("failed to query detection counts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query detection counts")
		return
	}

	report := detection.Evaluate(*counts)

	h.cacheSet(ctx, domain.CacheKeyDetection, report)
	writeJSON(w, http.StatusOK, report)
}

// GetTransaction returns a single stored transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		slog.Error("failed to get transaction", "tx_id", txID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get transaction")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// HighRisk returns the highest-scoring transactions of the latest run.
func (h *Handler) HighRisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := h.cfg.Pipeline.TopN
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	// Only the default page is cached; explicit limits go to the store.
	useCache := r.URL.Query().Get("limit") == ""
	if useCache {
		if cached, err := h.cache.Get(ctx, domain.CacheKeyTopRisk); err == nil && cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
	}

	top, err := h.repo.TopRisk(ctx, limit)
	if err != nil {
		slog.Error("failed to query top risk", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query top risk")
		return
	}

	payload := map[string]any{
		"count":        len(top),
		"transactions": top,
	}

	if useCache {
		h.cacheSet(ctx, domain.CacheKeyTopRisk, payload)
	}
	writeJSON(w, http.StatusOK, payload)
}

// ListAlerts returns recent alerts, newest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	alerts, err := h.repo.ListAlerts(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// ListRules returns the built-in rules plus stored custom rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	custom, err := h.repo.ListCustomRules(r.Context())
	if err != nil {
		slog.Error("failed to list custom rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list custom rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"builtin": h.engine.Rules(),
		"custom":  custom,
	})
}

// CreateRule validates, stores, and loads a custom rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.CustomRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.Custom().Validate(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
		return
	}

	if err := h.repo.SaveCustomRule(r.Context(), &rule); err != nil {
		slog.Error("failed to save custom rule", "rule_id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	if rule.Enabled {
		if err := h.engine.Custom().Load(&rule); err != nil {
			slog.Error("failed to load custom rule", "rule_id", rule.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "rule saved but not loaded")
			return
		}
	}

	slog.Info("custom rule created", "rule_id", rule.ID, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadRules replaces the active custom rule set from the store.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	n, err := h.runner.LoadCustomRules(r.Context())
	if err != nil {
		slog.Error("failed to reload custom rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"loaded": n})
}

// RunPipeline triggers a pipeline run for the requested steps.
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps string `json:"steps"`
	}
	if r.Body != nil {
		// Empty body means all steps.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if s := r.URL.Query().Get("steps"); s != "" {
		req.Steps = s
	}

	steps, err := pipeline.ParseSteps(req.Steps)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	if err := h.runner.Run(r.Context(), steps); err != nil {
		slog.Error("pipeline run failed", "steps", steps, "error", err)
		writeError(w, http.StatusInternalServerError, "pipeline run failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"steps":       steps,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (h *Handler) cacheSet(ctx context.Context, key string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, raw, h.cfg.Cache.LocalTTL); err != nil {
		slog.Debug("cache set failed", "key", key, "error", err)
	}
}
