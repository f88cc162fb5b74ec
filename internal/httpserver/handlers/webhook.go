package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/wagate/internal/gateway"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

// Webhook applies an externally reported connection event
func Webhook(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := instanceName(r)
		var in gateway.Injection
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if err := d.Gateway.Inject(name, in); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		d.Logger.Info("webhook event applied",
			logger.String("instance", name),
			logger.String("event", in.Event))

		inst, err := d.Gateway.Status(name)
		if err != nil {
			// removed by the event itself (logout policy)
			writeJSON(w, http.StatusOK, actionResponse{Status: "removed", Instance: name})
			return
		}
		writeJSON(w, http.StatusOK, instanceResponse{Instance: inst})
	}
}
