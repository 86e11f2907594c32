// Package gateway wires the HTTP surface: provider callbacks, the operator
// launch route, health and metrics.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/provgate/gateway/internal/auth"
	"github.com/provgate/gateway/internal/provider"
)

// Deps are the collaborators of the gateway router.
type Deps struct {
	DB          Pinger
	Metrics     http.Handler
	Recorder    HTTPRecorder
	Engines     map[string]Provisioner
	Tokens      TokenIssuer
	Limiter     Limiter
	OperatorKey string
	Sbo         *provider.SboAdapter
	CQ9         *provider.CQ9Adapter
	Logger      *slog.Logger
}

// NewRouter builds the gateway chi.Router.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(d.Logger, d.Recorder))
	r.Use(Recovery(d.Logger))

	r.Get("/health", HealthHandler(d.DB))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/operator", func(r chi.Router) {
		r.Use(auth.RequireOperatorKey(d.OperatorKey))
		r.Post("/launch", LaunchHandler(d.Engines, d.Tokens, d.Limiter, d.Logger))
	})

	if d.Sbo != nil {
		r.Route("/sbo", func(r chi.Router) {
			r.Post("/GetBalance", d.Sbo.GetBalance)
			r.Post("/Deduct", d.Sbo.Deduct)
			r.Post("/Settle", d.Sbo.Settle)
			r.Post("/Rollback", d.Sbo.Rollback)
			r.Post("/Cancel", d.Sbo.Cancel)
		})
	}

	if d.CQ9 != nil {
		r.Route("/cq9", func(r chi.Router) {
			r.Post("/authenticate", d.CQ9.Authenticate)
			r.Post("/balance", d.CQ9.Balance)
			r.Post("/bet", d.CQ9.Bet)
			r.Post("/endround", d.CQ9.EndRound)
			r.Post("/refund", d.CQ9.Refund)
		})
	}

	return r
}
