package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Instance string       `json:"instanceName,omitempty"`
	State    domain.State `json:"state,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error code onto an HTTP status
func statusFor(code string) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeAlreadyExists, domain.CodeAlreadyConnected, domain.CodeNotConnected, domain.CodeInvalidTransition:
		return http.StatusConflict
	case domain.CodeExpired:
		return http.StatusGone
	case domain.CodeTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Uncoded errors are logged and hidden.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	de := domain.AsError(err)
	if de == nil {
		log.Error("unhandled error", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
			Code:    "internal",
			Message: "internal error",
		}})
		return
	}

	status := statusFor(de.Code)
	if status >= http.StatusInternalServerError {
		log.Warn("request failed",
			logger.String("code", string(de.Code)),
			logger.String("instance", de.Instance),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:     de.Code,
		Message:  de.Message,
		Instance: de.Instance,
		State:    de.State,
	}})
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.InvalidArgument("request body is required")
		case errors.As(err, &tooLarge):
			return domain.InvalidArgument("request body is too large")
		default:
			return domain.InvalidArgument(fmt.Sprintf("invalid JSON body: %v", err))
		}
	}
	return nil
}
