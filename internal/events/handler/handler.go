// Package handler exposes the request-event log over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tollgate/internal/events"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/httputil"
)

const defaultLimit = 100

// Handler wires event endpoints to the event publisher.
type Handler struct {
	publisher *events.Publisher
	logger    *slog.Logger
}

// New constructs an events handler.
func New(publisher *events.Publisher, logger *slog.Logger) *Handler {
	return &Handler{publisher: publisher, logger: logger}
}

// Register mounts event endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/events", h.HandleList)
}

type eventResponse struct {
	ID             string `json:"id"`
	Timestamp      int64  `json:"timestamp"`
	IdentitySignal string `json:"identitySignal"`
	Path           string `json:"path"`
	Status         string `json:"status"`
	ProofToken     string `json:"proofToken,omitempty"`
	Amount         string `json:"amount,omitempty"`
	TokenAddress   string `json:"tokenAddress,omitempty"`
	ChainID        int64  `json:"chainId,omitempty"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := events.Filter{Limit: defaultLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = events.Status(raw)
	}

	list, err := h.publisher.Query(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]eventResponse, 0, len(list))
	for _, e := range list {
		out = append(out, eventResponse{
			ID:             e.ID,
			Timestamp:      e.UnixMilli(),
			IdentitySignal: e.IdentitySignal,
			Path:           e.Path,
			Status:         string(e.Status),
			ProofToken:     e.ProofToken,
			Amount:         e.Amount,
			TokenAddress:   e.TokenAddress,
			ChainID:        e.ChainID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}
