package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/handlers"
)

func init() { Register(registerInstance) }

func registerInstance(r chi.Router, d deps.Deps) {
	a := admin(r, d)
	a.Post("/instance/create", handlers.CreateInstance(d))
	a.Get("/instance/fetchInstances", handlers.FetchInstances(d))
	a.Get("/manager/fetchInstances", handlers.FetchInstances(d))
	a.Get("/instance/connect/{name}", handlers.Connect(d))
	a.Get("/instance/qrcode/{name}", handlers.Connect(d))
	a.Get("/instance/connectionState/{name}", handlers.ConnectionState(d))
	a.Delete("/instance/logout/{name}", handlers.Logout(d))
	a.Delete("/instance/delete/{name}", handlers.DeleteInstance(d))
}
