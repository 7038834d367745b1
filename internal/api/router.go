package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("GET /v1/schedules", h.ListSchedules)
	mux.HandleFunc("POST /v1/schedules", h.SaveSchedule)
	mux.HandleFunc("DELETE /v1/schedules/{id}", h.DeleteSchedule)

	mux.HandleFunc("POST /v1/dispatch/run", h.DispatchRun)
	mux.HandleFunc("POST /v1/send", h.SendSingle)

	mux.HandleFunc("GET /v1/logs", h.ListLogs)
	mux.HandleFunc("DELETE /v1/logs", h.ClearLogs)
	mux.HandleFunc("GET /v1/logs/export", h.ExportLogs)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("schedule-dispatch"))
	})

	return mux
}
