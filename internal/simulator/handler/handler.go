// Package handler exposes the bot simulator over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tollgate/internal/simulator"
	"tollgate/pkg/httputil"
	"tollgate/pkg/requestcontext"
)

// Handler wires the simulate endpoint to the simulator.
type Handler struct {
	sim    *simulator.Simulator
	logger *slog.Logger
}

// New constructs a simulator handler.
func New(sim *simulator.Simulator, logger *slog.Logger) *Handler {
	return &Handler{sim: sim, logger: logger}
}

// Register mounts simulator endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/simulate", h.HandleSimulate)
	r.Get("/simulate/presets", h.HandlePresets)
}

type simulateRequest struct {
	Preset string `json:"preset"`
	Path   string `json:"path,omitempty"`
	Count  int    `json:"count,omitempty"`
}

func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[simulateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	results, err := h.sim.Burst(ctx, req.Preset, req.Path, req.Count)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "simulation complete",
		"request_id", requestcontext.RequestID(ctx),
		"preset", req.Preset,
		"count", len(results),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	presets := make([]map[string]string, 0, len(simulator.Presets))
	for _, name := range simulator.PresetNames() {
		presets = append(presets, map[string]string{
			"name":           name,
			"identitySignal": simulator.Presets[name],
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"presets": presets})
}
