package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
)

// httpJSON writes v as a JSON body with status, mirroring the teacher's
// httpJSON helper in cmd/bd/web_server.go.
func httpJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the wire shape spec §6 mandates: {error:{code,message,details}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps an apierr.Kind to an HTTP status (spec §7) and writes the
// error envelope. Internal errors are logged with full context before being
// flattened to the generic code in the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal("unexpected error", err)
	}
	status := statusForKind(apiErr.Kind)
	if status == http.StatusInternalServerError {
		telemetry.L(r.Context()).Error().Err(apiErr).Str("path", r.URL.Path).Msg("httpapi: internal error")
	}
	httpJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    string(apiErr.Code),
		Message: apiErr.Message,
		Details: apiErr.Details,
	}})
}

func statusForKind(k apierr.Kind) int {
	switch k {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindNotFound, apierr.KindOwnership:
		return http.StatusNotFound
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindDependency:
		return http.StatusServiceUnavailable
	case apierr.KindTransient, apierr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
