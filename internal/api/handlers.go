package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/schedule-dispatch/internal/auditlog"
	"github.com/LeventeLantos/schedule-dispatch/internal/client"
	"github.com/LeventeLantos/schedule-dispatch/internal/dispatch"
	"github.com/LeventeLantos/schedule-dispatch/internal/model"
	"github.com/LeventeLantos/schedule-dispatch/internal/scheduler"
	"github.com/LeventeLantos/schedule-dispatch/internal/store"
)

type Handler struct {
	sched   *scheduler.Scheduler
	engine  *dispatch.Engine
	store   store.ScheduleStore
	audit   auditlog.AuditLog
	gateway dispatch.Deliverer
}

func NewHandler(s *scheduler.Scheduler, e *dispatch.Engine, st store.ScheduleStore, a auditlog.AuditLog, gw dispatch.Deliverer) *Handler {
	return &Handler{sched: s, engine: e, store: st, audit: a, gateway: gw}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []model.ScheduleJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	var job model.ScheduleJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
		return
	}

	created := job.ID == ""
	if created {
		job.ID = uuid.New().String()
		job.Created = time.Now().UTC()
	}

	if err := job.Validate(); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "field": ve.Field})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	if err := h.store.Save(r.Context(), &job); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, job)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DispatchRun is the manual "dispatch all now" trigger. Without an explicit
// confirm flag it only reports how many jobs and recipients would be
// touched, so the operator sees the blast radius before committing.
func (h *Handler) DispatchRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if !req.Confirm {
		jobs, recipients, err := h.engine.PendingRecipients(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"confirmRequired": true,
			"jobs":            jobs,
			"recipients":      recipients,
		})
		return
	}

	res, err := h.engine.RunAll(r.Context())
	if errors.Is(err, dispatch.ErrDispatchInProgress) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sendRequest struct {
	To       string `json:"to"`
	Body     string `json:"body"`
	Base64   string `json:"base64,omitempty"`
	Filename string `json:"filename,omitempty"`
	Type     string `json:"type,omitempty"`
}

// SendSingle delivers one ad-hoc message immediately, outside any schedule,
// and records it in the audit log like every other send.
func (h *Handler) SendSingle(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "to is required"})
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		req.Body = " "
	}

	if req.Base64 != "" && strings.TrimSpace(req.Filename) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "filename is required when base64 is set"})
		return
	}

	var att *client.Attachment
	if req.Base64 != "" {
		attType := req.Type
		if attType == "" {
			attType = "application/octet-stream"
		}
		att = &client.Attachment{Filename: req.Filename, Type: attType, Base64: req.Base64}
	}

	out, err := h.gateway.Deliver(r.Context(), req.To, req.Body, att)

	entry := model.LogEntry{
		Time:     time.Now().UTC(),
		To:       req.To,
		Filename: req.Filename,
		Message:  req.Body,
		Status:   model.Sent,
		Response: out.RawResponse,
	}
	if err != nil {
		entry.Status = model.Failed
		entry.Response = err.Error()
	} else if !out.Success {
		entry.Status = model.Failed
	}
	_ = h.audit.Record(r.Context(), entry)

	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   entry.Status,
		"response": out.RawResponse,
	})
}

func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.audit.Clear(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ExportLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="dispatch_logs.csv"`)
	if err := auditlog.WriteCSV(w, entries); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
