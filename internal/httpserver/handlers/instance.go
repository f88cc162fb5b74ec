package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

type createRequest struct {
	InstanceName string `json:"instanceName"`
}

type instanceResponse struct {
	Instance domain.Instance `json:"instance"`
}

type actionResponse struct {
	Status   string `json:"status"`
	Instance string `json:"instanceName"`
}

// instanceName extracts the {name} path parameter
func instanceName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

// CreateInstance registers a new instance
func CreateInstance(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		inst, err := d.Gateway.Create(req.InstanceName)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, instanceResponse{Instance: inst})
	}
}

// FetchInstances lists every instance sorted by name
func FetchInstances(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Gateway.List())
	}
}

// ConnectionState returns the full view of one instance
func ConnectionState(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := d.Gateway.Status(instanceName(r))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, instanceResponse{Instance: inst})
	}
}

// Connect returns a QR code to pair the instance. ?format=png returns the
// image itself.
func Connect(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := instanceName(r)
		code, err := d.Gateway.Connect(r.Context(), name)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		if r.URL.Query().Get("format") == "png" {
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(code.PNG); err != nil {
				d.Logger.Debug("failed to write qr image", logger.String("instance", name), logger.Error(err))
			}
			return
		}
		writeJSON(w, http.StatusOK, code)
	}
}

// Logout ends the session of a connected instance
func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := instanceName(r)
		if err := d.Gateway.Logout(r.Context(), name); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, actionResponse{Status: "logged_out", Instance: name})
	}
}

// DeleteInstance removes the instance whatever its state
func DeleteInstance(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := instanceName(r)
		if err := d.Gateway.Delete(name); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, actionResponse{Status: "deleted", Instance: name})
	}
}
