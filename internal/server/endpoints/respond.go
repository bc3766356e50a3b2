package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/2018wzh/llm-doc-parser/internal/apperr"
	"github.com/2018wzh/llm-doc-parser/internal/svcctx"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

// writeError maps err to its code and status. Errors without a kind are
// reported as INTERNAL_ERROR with a generic message; details stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := svcctx.LoggerFrom(r.Context())

	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindInternal {
		logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code:    apperr.KindInternal.Code(),
			Message: "internal server error",
		})
		return
	}

	logger.Warn("request rejected", "path", r.URL.Path, "code", appErr.Code(), "error", err)
	writeJSON(w, appErr.HTTPStatus(), ErrorResponse{
		Code:    appErr.Code(),
		Message: appErr.Message,
	})
}
