package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"finsession/internal/api"
	"finsession/internal/core"
	"finsession/internal/finance"
)

const maxBodySize = 1 << 20

// envelope mirrors the upstream API's response shape so a UI can unwrap
// both the same way.
type envelope struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message,omitempty"`
	Result     any               `json:"result,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeResult(w http.ResponseWriter, status int, result any) {
	writeJSON(w, status, envelope{StatusCode: status, Result: result})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{StatusCode: status, Message: msg})
}

// writeFailure maps a provider or API error to a response.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "Validation failed",
			Fields:     verr.Fields,
		})
		return
	}
	if errors.Is(err, errBadBody) || errors.Is(err, api.ErrMissingID) ||
		errors.Is(err, api.ErrInvalidArgs) || errors.Is(err, finance.ErrNoUser) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		writeError(w, status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, api.Message(err))
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
