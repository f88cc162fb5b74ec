package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
)

type rootResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Version   string `json:"version"`
	Transport string `json:"transport"`
}

// Root is the service banner
func Root(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rootResponse{
			Status:    http.StatusOK,
			Message:   "Welcome to wagate, it is working!",
			Version:   d.Version,
			Transport: d.Gateway.TransportName(),
		})
	}
}
