package httpapi

import (
	"net/http"

	"escala/internal/core"
	"escala/pkg/domain"
)

func (a *API) handleListServices(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.svc.ServiceSummaries(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": summaries})
}

func (a *API) handleGetService(w http.ResponseWriter, r *http.Request) {
	summary, err := a.svc.ServiceSummary(r.Context(), pathParam(r, "serviceID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": summary})
}

func (a *API) handleStandardTimes(w http.ResponseWriter, r *http.Request) {
	times, err := a.svc.StandardTimes(r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"times": times})
}

func (a *API) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var in core.ServiceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid service payload")
		return
	}
	svc, res, err := a.svc.CreateService(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"service": svc, "warnings": warningsOf(res)})
}

func (a *API) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	var patch core.ServicePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid service payload")
		return
	}
	svc, res, err := a.svc.UpdateService(r.Context(), pathParam(r, "serviceID"), patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": svc, "warnings": warningsOf(res)})
}

func (a *API) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if _, err := a.svc.DeleteService(r.Context(), pathParam(r, "serviceID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type openRequest struct {
	Open bool `json:"open"`
}

func (a *API) handleSetOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid open payload")
		return
	}
	svc, res, err := a.svc.SetServiceOpen(r.Context(), pathParam(r, "serviceID"), req.Open)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": svc, "warnings": warningsOf(res)})
}

type slotRequest struct {
	Name string `json:"name"`
}

func (a *API) handleAddServiceSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot payload")
		return
	}
	svc, res, err := a.svc.AddServiceSlot(r.Context(), pathParam(r, "serviceID"), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": svc, "warnings": warningsOf(res)})
}

func (a *API) handleRemoveServiceSlot(w http.ResponseWriter, r *http.Request) {
	svc, res, err := a.svc.RemoveServiceSlot(r.Context(), pathParam(r, "serviceID"), pathParam(r, "slot"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": svc, "warnings": warningsOf(res)})
}

type registerRequest struct {
	SlotName    string `json:"slot_name"`
	VolunteerID string `json:"volunteer_id,omitempty"`
}

// handleRegister books the caller into a slot. Admins may book someone else.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid registration payload")
		return
	}
	caller, _ := volunteerFrom(r.Context())
	volunteerID := caller.ID
	if req.VolunteerID != "" && req.VolunteerID != caller.ID {
		if !caller.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		volunteerID = req.VolunteerID
	}
	assignment, res, err := a.svc.RegisterVolunteer(r.Context(), pathParam(r, "serviceID"), volunteerID, req.SlotName)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"assignment": assignment, "warnings": warningsOf(res)})
}

// findAssignment resolves an assignment within the service named in the URL.
func (a *API) findAssignment(w http.ResponseWriter, r *http.Request) (core.Assignment, bool) {
	serviceID := pathParam(r, "serviceID")
	assignmentID := pathParam(r, "assignmentID")
	assignments, err := a.svc.ServiceAssignments(r.Context(), serviceID)
	if err != nil {
		a.fail(w, r, err)
		return core.Assignment{}, false
	}
	for _, as := range assignments {
		if as.ID == assignmentID {
			return as, true
		}
	}
	a.fail(w, r, domain.NotFoundError{Entity: domain.EntityAssignment, ID: assignmentID})
	return core.Assignment{}, false
}

// handleUnregister frees a slot. Volunteers may only free their own.
func (a *API) handleUnregister(w http.ResponseWriter, r *http.Request) {
	assignment, ok := a.findAssignment(w, r)
	if !ok {
		return
	}
	caller, _ := volunteerFrom(r.Context())
	if assignment.VolunteerID != caller.ID && !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}
	if _, err := a.svc.Unregister(r.Context(), assignment.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reassignRequest struct {
	SlotName string `json:"slot_name"`
}

func (a *API) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid reassign payload")
		return
	}
	assignment, ok := a.findAssignment(w, r)
	if !ok {
		return
	}
	updated, res, err := a.svc.ReassignSlot(r.Context(), assignment.ID, req.SlotName)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": updated, "warnings": warningsOf(res)})
}
