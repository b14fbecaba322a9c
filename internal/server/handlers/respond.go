// internal/server/handlers/respond.go

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"regionalert/internal/adapter/lock"
	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError writes an error body. Client errors carry the error text as
// details; server errors are logged and the details withheld.
func respondWithError(w http.ResponseWriter, logger *zap.Logger, code int, message string, err error) {
	body := errorResponse{Error: message}

	if err != nil {
		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.Int("status", code),
				zap.String("message", message),
				zap.Error(err),
			)
		} else {
			body.Details = err.Error()
		}
	}

	respondWithJSON(w, code, body)
}

// respondWithDomainError picks the status for err from the domain sentinels.
func respondWithDomainError(w http.ResponseWriter, logger *zap.Logger, message string, err error) {
	respondWithError(w, logger, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case eris.Is(err, errBadRequest),
		eris.Is(err, alert.ErrInvalidAlert),
		eris.Is(err, alert.ErrInvalidResponse),
		eris.Is(err, alert.ErrInvalidTopicID),
		eris.Is(err, location.ErrInvalidLocation),
		eris.Is(err, geo.ErrInvalidCoordinate):
		return http.StatusBadRequest
	case eris.Is(err, alert.ErrNotFound),
		eris.Is(err, location.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, alert.ErrInvalidTransition):
		return http.StatusConflict
	case eris.Is(err, lock.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
