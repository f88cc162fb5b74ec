package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

type reloadResponse struct {
	Status string `json:"status"`
}

// ReloadSeed triggers a manual reload of the seed file
func ReloadSeed(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.SeedReloadTrigger == nil {
			writeJSON(w, http.StatusNotFound, reloadResponse{Status: "seed file not configured"})
			return
		}

		select {
		case d.SeedReloadTrigger <- struct{}{}:
			d.Logger.Info("manual seed reload triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, reloadResponse{Status: "reload triggered"})
		default:
			d.Logger.Warn("seed reload already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, reloadResponse{Status: "reload already in progress"})
		}
	}
}
