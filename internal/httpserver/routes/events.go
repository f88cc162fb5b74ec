package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/handlers"
)

func init() {
	Register(registerRecentEvents)
	RegisterStream(registerEventStream)
}

func registerRecentEvents(r chi.Router, d deps.Deps) {
	admin(r, d).Get("/events/recent", handlers.RecentEvents(d))
}

func registerEventStream(r chi.Router, d deps.Deps) {
	admin(r, d).Get("/events", handlers.EventsStream(d))
}
