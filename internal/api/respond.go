package api

import (
	"encoding/json"
	"net/http"

	"github.com/wellpulse/server/internal/log"
	"github.com/wellpulse/server/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// writeError is the single place service failures become HTTP
// statuses. Anything that is not a ServiceError is an internal error
// whose details stay in the log.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := http.StatusText(http.StatusInternalServerError)
	if se, ok := services.AsServiceError(err); ok {
		status = statusForCode(se.Code)
		message = se.Message
	}
	if status == http.StatusInternalServerError {
		log.Errorf("internal error: %v", err)
		message = http.StatusText(http.StatusInternalServerError)
	}
	writeJSON(w, status, errorBody{Success: false, StatusCode: status, Message: message})
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return services.NewInvalidError("invalid request body")
	}
	return nil
}
