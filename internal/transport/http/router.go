// Package httptransport assembles the public HTTP surface. Handlers live
// with their domains; this package only mounts them and the platform
// endpoints.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tollgate/internal/platform/middleware"
	"tollgate/pkg/httputil"
)

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// Deps collects the pieces the router mounts.
type Deps struct {
	Access    Registrar
	Settings  Registrar
	Events    Registrar
	Insights  Registrar
	Simulator Registrar

	// JWTSigningKey guards publisher-mutating routes when non-empty.
	JWTSigningKey []byte
	Logger        *slog.Logger
}

// NewRouter wires all public endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		deps.Access.Register(r)
		deps.Events.Register(r)
		deps.Insights.Register(r)
		deps.Simulator.Register(r)
	})

	// Publisher surface: reads are open, writes sit behind the JWT guard.
	r.Group(func(r chi.Router) {
		r.Use(methodGuard(http.MethodPut, middleware.RequireJWT(deps.JWTSigningKey, deps.Logger)))
		deps.Settings.Register(r)
	})

	return r
}

// methodGuard applies mw only to requests with the given method, leaving
// reads on the same routes open.
func methodGuard(method string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == method {
				guarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
