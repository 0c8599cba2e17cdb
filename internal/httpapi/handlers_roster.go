package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"escala/internal/adapters/roster"
	"escala/internal/core"
)

func writeCSV(w http.ResponseWriter, table core.RosterTable) error {
	payload, err := roster.EncodeCSV(table)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", roster.CSVContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": table.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(payload)
	return err
}

func (a *API) handleServiceRoster(w http.ResponseWriter, r *http.Request) {
	table, err := a.svc.ServiceRoster(r.Context(), pathParam(r, "serviceID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := writeCSV(w, table); err != nil {
		a.log.Warn("write roster csv", zap.Error(err))
	}
}

func (a *API) handleFullRoster(w http.ResponseWriter, r *http.Request) {
	table, err := a.svc.FullRoster(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := writeCSV(w, table); err != nil {
		a.log.Warn("write roster csv", zap.Error(err))
	}
}

func (a *API) handleShare(w http.ResponseWriter, r *http.Request) {
	share, err := roster.BuildShare(r.Context(), a.svc, pathParam(r, "serviceID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"share": share})
}

func (a *API) handleShareSlack(w http.ResponseWriter, r *http.Request) {
	if !a.slack.Enabled() {
		writeError(w, http.StatusNotFound, "slack not configured")
		return
	}
	share, err := roster.BuildShare(r.Context(), a.svc, pathParam(r, "serviceID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.slack.Post(r.Context(), share); err != nil {
		a.log.Warn("slack share failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "slack rejected the message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"share": share})
}

type exportRequest struct {
	ServiceID string `json:"service_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (a *API) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if a.exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export payload")
		return
	}
	caller, _ := volunteerFrom(r.Context())
	record, err := a.exports.EnqueueExport(r.Context(), roster.ExportInput{
		ServiceID:   req.ServiceID,
		RequestedBy: caller.ID,
		Reason:      req.Reason,
	})
	if err != nil {
		if errors.Is(err, roster.ErrQueueFull) {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (a *API) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if a.exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	record, ok := a.exports.GetExport(pathParam(r, "exportID"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (a *API) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	if a.exports == nil {
		writeError(w, http.StatusNotFound, "exports not configured")
		return
	}
	artifact, body, err := a.exports.OpenArtifact(r.Context(), pathParam(r, "exportID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Filename}))
	http.ServeContent(w, r, artifact.Filename, artifact.CreatedAt, body)
}
