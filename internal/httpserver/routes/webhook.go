package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/handlers"
)

func init() { Register(registerWebhook) }

func registerWebhook(r chi.Router, d deps.Deps) {
	if !d.WebhookEnabled {
		return
	}
	admin(r, d).Post("/webhook/{name}", handlers.Webhook(d))
}
