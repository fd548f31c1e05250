package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/maltedev/amazon-review-scraper/internal/batch"
	"github.com/maltedev/amazon-review-scraper/internal/export"
	"github.com/maltedev/amazon-review-scraper/internal/input"
	"github.com/maltedev/amazon-review-scraper/internal/models"
	"github.com/maltedev/amazon-review-scraper/internal/proxy"
	"github.com/maltedev/amazon-review-scraper/internal/scraper"
)

const (
	maxBodyBytes    = 1 << 20
	DefaultMaxBatch = 100
)

// ProxyStats is satisfied by *proxy.Pool.
type ProxyStats interface {
	Stats() []proxy.EndpointStats
}

type Handlers struct {
	scraper  scraper.Scraper
	batch    *batch.Orchestrator
	proxies  ProxyStats
	loader   *input.Loader
	maxBatch int
	logger   *slog.Logger
}

func NewHandlers(s scraper.Scraper, o *batch.Orchestrator, proxies ProxyStats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		scraper:  s,
		batch:    o,
		proxies:  proxies,
		loader:   input.NewLoader(logger),
		maxBatch: DefaultMaxBatch,
		logger:   logger.With("component", "api"),
	}
}

// GetReviews runs one job and answers with its result record. The HTTP status
// is 200 whenever the job ran; the outcome is in statusCode/statusMessage.
func (h *Handlers) GetReviews(w http.ResponseWriter, r *http.Request) {
	var job models.JobConfig
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&job); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if job.ASIN == "" {
		h.respondError(w, http.StatusBadRequest, "asin is required")
		return
	}

	record := h.scraper.Run(r.Context(), job)
	h.respondJSON(w, http.StatusOK, record)
}

// GetReviewsBatch accepts a job file body and streams one NDJSON line per job
// as results become available.
func (h *Handlers) GetReviewsBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobs, err := h.loader.Parse(body, input.Overrides{})
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(jobs) > h.maxBatch {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d jobs", h.maxBatch))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := export.NewNDJSONEncoder(w)

	for record := range h.batch.Run(r.Context(), jobs) {
		if err := enc.Encode(record); err != nil {
			h.logger.Error("failed to stream result", "asin", record.ASIN, "error", err)
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *Handlers) GetProxies(w http.ResponseWriter, r *http.Request) {
	stats := h.proxies.Stats()
	available := 0
	for _, s := range stats {
		if s.Available {
			available++
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":     len(stats),
		"available": available,
		"endpoints": stats,
	})
}

// Health reports degraded when every proxy endpoint is cooling down.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	available := 0
	stats := h.proxies.Stats()
	for _, s := range stats {
		if s.Available {
			available++
		}
	}
	health["proxies"] = map[string]int{"total": len(stats), "available": available}
	if len(stats) > 0 && available == 0 {
		health["status"] = "degraded"
		health["message"] = "all proxy endpoints are cooling down"
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
