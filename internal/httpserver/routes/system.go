package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/mw"
)

func init() { Register(registerSystem) }

func registerSystem(r chi.Router, d deps.Deps) {
	r.Get("/", handlers.Root(d))
	r.Get("/health", handlers.Healthz(d))
	r.Get("/healthz", handlers.Healthz(d))

	probes := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	probes.Get("/readyz", handlers.Readyz(d))
	probes.Get("/infra", handlers.Infra(d))
}
