package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
)

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText sends a text message through a connected instance
func SendText(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendTextRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		receipt, err := d.Gateway.SendText(r.Context(), instanceName(r), req.Number, req.Text)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}
