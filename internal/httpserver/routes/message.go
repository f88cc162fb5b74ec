package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/mw"
)

func init() { Register(registerMessage) }

func registerMessage(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.SendBurst,
		RefillPerIPPerMin: d.SendRatePerMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
		Now:               d.TimeNow,
	})
	admin(r, d).With(limit).Post("/message/sendText/{name}", handlers.SendText(d))
}
