package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/crew"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

var (
	// ErrUnauthorized is returned when a request carries no valid session
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the profile may not perform the request
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest is returned for malformed paths or bodies
	ErrBadRequest = errors.New("bad request")

	// ErrUpstream marks failures of a collaborator the caller cannot fix
	ErrUpstream = errors.New("upstream error")
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps an error to its HTTP status. Anything unrecognized is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, store.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden),
		errors.Is(err, tool.ErrToolNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, tool.ErrUnknownTool),
		errors.Is(err, crew.ErrCrewNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, tool.ErrMissingArgument),
		errors.Is(err, tool.ErrInvalidArgument),
		errors.Is(err, crew.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, tool.ErrExecution):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) int {
	code := statusFor(err)
	detail := err.Error()
	if code == http.StatusInternalServerError {
		detail = "Execution error: " + detail
	}
	writeJSON(w, code, errorResponse{Detail: detail})
	return code
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
