// Package httputil translates coded domain errors into the JSON error
// envelope used by every HTTP surface.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "civica/pkg/domain-errors"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Details     any    `json:"details,omitempty"`
}

// WriteError renders err as the JSON error envelope. Unknown errors and
// internal codes hide their message so storage details never leak to clients;
// everything else carries its message and any structured details.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := ""
	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
	}

	body := errorBody{Error: wireCode(code)}
	if code != dErrors.CodeInternal {
		body.Description = message
		body.Details = dErrors.Details(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON renders v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wireCode(code dErrors.Code) string {
	if code == dErrors.CodeInternal {
		return "internal_error"
	}
	return string(code)
}
