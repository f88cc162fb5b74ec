package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/handlers"
)

func init() { Register(registerReload) }

func registerReload(r chi.Router, d deps.Deps) {
	admin(r, d).Post("/seed/reload", handlers.ReloadSeed(d))
}
