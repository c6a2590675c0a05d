// Package router assembles the HTTP surface: the provider dispatch
// middleware in front, the account-manage endpoints, health and metrics.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/authbridge/internal/dispatcher"
	"github.com/dropDatabas3/authbridge/internal/http/middlewares"
	"github.com/dropDatabas3/authbridge/internal/manage"
	"github.com/dropDatabas3/authbridge/internal/store/core"
)

// Deps carries everything the router mounts.
type Deps struct {
	Dispatcher *dispatcher.Dispatcher
	Manage     *manage.Handler
	Repo       core.Repository

	CORSAllowedOrigins []string
	CSRF               middlewares.CSRFConfig
	CSRFEnabled        bool
}

// New builds the full handler. The dispatcher wraps the host router, so
// provider routes are intercepted first and everything else (including
// unregistered provider names) falls through to the mux.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz(deps.Repo))

	account := http.Handler(deps.Manage.Routes())
	if deps.CSRFEnabled {
		account = middlewares.WithCSRF(deps.CSRF)(account)
	}
	r.Mount("/account", account)

	h := deps.Dispatcher.Handler(r)
	return middlewares.Chain(h,
		middlewares.WithRecover(),
		middlewares.WithRequestID(),
		middlewares.WithCORS(deps.CORSAllowedOrigins),
		middlewares.WithLogging(),
	)
}

func healthz(repo core.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := repo.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
