package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/metadata"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps ledger failure kinds onto HTTP statuses.
func statusFor(err error) int {
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindState:
		return http.StatusConflict
	case ledger.KindResourceLimit:
		return http.StatusUnprocessableEntity
	case ledger.KindTransfer:
		return http.StatusBadGateway
	}
	if errors.Is(err, metadata.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	if k := ledger.KindOf(err); k != 0 {
		body.Kind = strings.ReplaceAll(k.String(), " ", "_")
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "validation"})
}
