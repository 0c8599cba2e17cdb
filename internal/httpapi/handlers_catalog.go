package httpapi

import "net/http"

func (a *API) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"slots": a.svc.Catalog()})
}

func (a *API) handleAddGlobalSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot payload")
		return
	}
	report, res, err := a.svc.AddGlobalSlot(r.Context(), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"report": report, "warnings": warningsOf(res)})
}

func (a *API) handleRenameGlobalSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot payload")
		return
	}
	report, res, err := a.svc.RenameGlobalSlot(r.Context(), pathParam(r, "slot"), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report, "warnings": warningsOf(res)})
}

func (a *API) handleRemoveGlobalSlot(w http.ResponseWriter, r *http.Request) {
	report, res, err := a.svc.RemoveGlobalSlot(r.Context(), pathParam(r, "slot"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report, "warnings": warningsOf(res)})
}
