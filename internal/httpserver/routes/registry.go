package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/mw"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg       Registrar
	mws       []Middleware
	streaming bool
}

var registry []entry

// Register a registrar with optional per-route middlewares. Its routes
// run under the request timeout.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// RegisterStream registers long-lived routes (websockets) that must not
// be cut by the request timeout.
func RegisterStream(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws, streaming: true})
}

// Called once from server.New()
func RegisterAll(r chi.Router, d deps.Deps) {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		mount(r, d, false)
	})
	mount(r, d, true)
}

func mount(r chi.Router, d deps.Deps, streaming bool) {
	for _, e := range registry {
		if e.streaming != streaming {
			continue
		}
		if len(e.mws) == 0 {
			e.reg(r, d)
			continue
		}
		e.reg(r.With(e.mws...), d) // apply per-route middlewares
	}
}

// admin restricts a route to the configured CIDRs and hosts
func admin(r chi.Router, d deps.Deps) chi.Router {
	return r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	)
}
