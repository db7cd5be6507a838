// Package handler exposes the publisher settings over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tollgate/internal/settings"
	dErrors "tollgate/pkg/domain-errors"
	"tollgate/pkg/httputil"
	"tollgate/pkg/requestcontext"
)

// Handler wires settings endpoints to the settings store.
type Handler struct {
	store  settings.Store
	logger *slog.Logger
}

// New constructs a settings handler.
func New(store settings.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts settings endpoints on the router. The write route is
// expected to sit behind the publisher auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/settings", h.HandleRead)
	r.Put("/settings", h.HandleWrite)
}

func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	current, err := h.store.Read(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, current)
}

func (h *Handler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	next, err := httputil.Decode[settings.Settings](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.store.Write(ctx, next); err != nil {
		h.logger.ErrorContext(ctx, "settings update rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		// Invariant violations in a submitted body are client errors, not
		// server misconfiguration.
		if dErrors.Is(err, dErrors.CodeConfiguration) {
			var de *dErrors.Error
			errors.As(err, &de)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, de.Description))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "settings updated",
		"request_id", requestcontext.RequestID(ctx),
		"chain_id", next.ChainID,
		"protection_enabled", next.ProtectionEnabled,
	)
	httputil.WriteJSON(w, http.StatusOK, next.Normalized())
}
