package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"escala/internal/core"
	"escala/pkg/domain"
)

func (a *API) handleListVolunteers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"volunteers": a.svc.ListVolunteers()})
}

func (a *API) handleGetVolunteer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "volunteerID")
	vol, ok := a.svc.GetVolunteer(id)
	if !ok {
		a.fail(w, r, domain.NotFoundError{Entity: domain.EntityVolunteer, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volunteer": vol})
}

func (a *API) handleCreateVolunteer(w http.ResponseWriter, r *http.Request) {
	var in core.VolunteerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid volunteer payload")
		return
	}
	vol, res, err := a.svc.CreateVolunteer(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"volunteer": vol, "warnings": warningsOf(res)})
}

type volunteerPatch struct {
	Name        *string `json:"name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Role        *string `json:"role,omitempty"`
}

// handleUpdateVolunteer applies each present field as its own command, in
// name, phone, role order, stopping at the first rejection.
func (a *API) handleUpdateVolunteer(w http.ResponseWriter, r *http.Request) {
	var patch volunteerPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid volunteer payload")
		return
	}
	id := pathParam(r, "volunteerID")
	vol, ok := a.svc.GetVolunteer(id)
	if !ok {
		a.fail(w, r, domain.NotFoundError{Entity: domain.EntityVolunteer, ID: id})
		return
	}
	var warnings []warning
	var res core.Result
	var err error
	if patch.Name != nil {
		if vol, res, err = a.svc.RenameVolunteer(r.Context(), id, *patch.Name); err != nil {
			a.fail(w, r, err)
			return
		}
		warnings = append(warnings, warningsOf(res)...)
	}
	if patch.PhoneNumber != nil {
		if vol, res, err = a.svc.UpdateVolunteerPhone(r.Context(), id, *patch.PhoneNumber); err != nil {
			a.fail(w, r, err)
			return
		}
		warnings = append(warnings, warningsOf(res)...)
	}
	if patch.Role != nil {
		if vol, res, err = a.svc.SetVolunteerRole(r.Context(), id, core.Role(*patch.Role)); err != nil {
			a.fail(w, r, err)
			return
		}
		warnings = append(warnings, warningsOf(res)...)
	}
	if warnings == nil {
		warnings = []warning{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"volunteer": vol, "warnings": warnings})
}

func (a *API) handleDeleteVolunteer(w http.ResponseWriter, r *http.Request) {
	if _, err := a.svc.DeleteVolunteer(r.Context(), pathParam(r, "volunteerID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// canEditAvatar allows volunteers to manage their own picture and admins to
// manage anyone's.
func canEditAvatar(r *http.Request, volunteerID string) bool {
	caller, ok := volunteerFrom(r.Context())
	return ok && (caller.ID == volunteerID || caller.IsAdmin())
}

func (a *API) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	info, rc, err := a.svc.Avatar(r.Context(), pathParam(r, "volunteerID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer rc.Close()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		w.Header().Set("ETag", strconv.Quote(info.ETag))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (a *API) handleSetAvatar(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "volunteerID")
	if !canEditAvatar(r, id) {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, core.MaxAvatarBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "avatar too large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read avatar")
		return
	}
	vol, res, err := a.svc.SetVolunteerAvatar(r.Context(), id, data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volunteer": vol, "warnings": warningsOf(res)})
}

func (a *API) handleRemoveAvatar(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "volunteerID")
	if !canEditAvatar(r, id) {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}
	vol, res, err := a.svc.RemoveVolunteerAvatar(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volunteer": vol, "warnings": warningsOf(res)})
}
