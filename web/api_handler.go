package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/RezaEskandarii/hostfire/client"
	"github.com/go-chi/chi/v5"
)

// maxScheduleDelay bounds delay_seconds well below the time.Duration range.
const maxScheduleDelay = 10 * 365 * 24 * time.Hour

type createJobRequest struct {
	Job          string `json:"job"`
	Queue        string `json:"queue"`
	Args         []any  `json:"args"`
	DelaySeconds int    `json:"delay_seconds"`
}

type recurringJobRequest struct {
	Job      string `json:"job"`
	Cron     string `json:"cron"`
	TimeZone string `json:"time_zone"`
	Queue    string `json:"queue"`
	Args     []any  `json:"args"`
}

func (handler *HttpRouteHandler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Job) == "" {
		writeError(w, http.StatusBadRequest, "job is required")
		return
	}
	if req.DelaySeconds < 0 {
		writeError(w, http.StatusBadRequest, "delay_seconds must not be negative")
		return
	}
	if req.DelaySeconds > int(maxScheduleDelay/time.Second) {
		writeError(w, http.StatusBadRequest, "delay_seconds must not exceed ten years")
		return
	}

	at := time.Now().Add(time.Duration(req.DelaySeconds) * time.Second)
	id, err := handler.jobManager.ScheduleToQueue(r.Context(), req.Queue, req.Job, at, req.Args...)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (handler *HttpRouteHandler) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, err := handler.jobManager.FindEnqueue(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (handler *HttpRouteHandler) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	if err := handler.jobManager.RemoveEnqueue(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *HttpRouteHandler) requeueJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	if err := handler.jobManager.Requeue(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "job requeued"})
}

func (handler *HttpRouteHandler) listRecurring(w http.ResponseWriter, r *http.Request) {
	jobs, err := handler.recurringJobStore.GetAll(r.Context(), getPageNumber(r), PageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (handler *HttpRouteHandler) putRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Job) == "" || strings.TrimSpace(req.Cron) == "" {
		writeError(w, http.StatusBadRequest, "job and cron are required")
		return
	}

	id := chi.URLParam(r, "id")
	opts := client.RecurringJobOptions{TimeZone: req.TimeZone, Queue: req.Queue}
	if err := handler.jobManager.AddOrUpdate(r.Context(), id, req.Job, req.Cron, opts, req.Args...); err != nil {
		writeStoreError(w, err)
		return
	}

	job, err := handler.recurringJobStore.Find(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (handler *HttpRouteHandler) deleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := handler.jobManager.RemoveIfExists(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *HttpRouteHandler) triggerRecurring(w http.ResponseWriter, r *http.Request) {
	jobID, err := handler.jobManager.Trigger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": jobID})
}
