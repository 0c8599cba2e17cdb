package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

type identifyRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

func (a *API) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid identify payload")
		return
	}
	vol, res, err := a.svc.Identify(r.Context(), req.Name, req.PhoneNumber)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.sessions.save(w, vol.ID); err != nil {
		a.log.Error("encode session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volunteer": vol, "warnings": warningsOf(res)})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	vol, ok := volunteerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "identify first")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volunteer": vol})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	a.sessions.clear(w)
	if err := a.svc.SignOut(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
