package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"escala/internal/blob"
	"escala/internal/core"
	"escala/pkg/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeKindError(w http.ResponseWriter, status int, kind domain.ErrorKind, message string) {
	writeJSON(w, status, map[string]any{"error": message, "kind": kind})
}

// statusForKind maps a rejected command to its HTTP status.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidSlot:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicate, domain.KindClosed, domain.KindSlotOccupied,
		domain.KindAlreadyAssigned, domain.KindRuleViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail reports err to the client. Persist failures mean the command took
// effect in memory but was not saved, so they get their own status.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrPersist):
		a.log.Error("snapshot write failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeKindError(w, http.StatusServiceUnavailable, domain.KindInternal, "change applied but not saved")
		return
	case errors.Is(err, core.ErrAvatarStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, blob.ErrNotFound):
		writeKindError(w, http.StatusNotFound, domain.KindNotFound, "not found")
		return
	}
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeKindError(w, status, kind, "internal error")
		return
	}
	writeKindError(w, status, kind, err.Error())
}

type warning struct {
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

func warningsOf(res core.Result) []warning {
	out := make([]warning, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, warning{Rule: v.Rule, Message: v.Message, Entity: string(v.Entity), EntityID: v.EntityID})
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
