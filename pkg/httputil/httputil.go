// Package httputil holds small JSON helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "tollgate/pkg/domain-errors"
)

// WriteJSON serializes v with the given status. Encoding failures are
// swallowed; by the time they occur the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError maps a coded domain error to an HTTP response. Internal errors
// omit the description so implementation detail does not leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	var de *dErrors.Error
	if errors.As(err, &de) && code != dErrors.CodeInternal {
		body.ErrorDescription = de.Description
	}

	WriteJSON(w, statusFor(code), body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeVerificationFailed:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeCollaboratorUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeConfiguration, dErrors.CodeUnexpectedState, dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Decode parses a JSON request body into T, returning a bad_request error on
// malformed input.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, dErrors.Wrap(dErrors.CodeBadRequest, "invalid request body", err)
	}
	return v, nil
}
