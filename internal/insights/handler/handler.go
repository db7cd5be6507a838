// Package handler exposes dashboard figures over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tollgate/internal/insights"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/httputil"
)

// Handler wires insight endpoints to the aggregator.
type Handler struct {
	aggregator *insights.Aggregator
	logger     *slog.Logger
}

// New constructs an insights handler.
func New(aggregator *insights.Aggregator, logger *slog.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// Register mounts insight endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/insights/summary", h.HandleSummary)
	r.Get("/insights/traffic", h.HandleTraffic)
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.aggregator.Summarize(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleTraffic(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	bucket := time.Minute

	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "window must be a positive duration"))
			return
		}
		window = parsed
	}
	if raw := r.URL.Query().Get("bucket"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "bucket must be a positive duration"))
			return
		}
		bucket = parsed
	}

	series, err := h.aggregator.Traffic(r.Context(), window, bucket)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"series": series})
}
