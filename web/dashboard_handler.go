package web

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/state"
	"github.com/RezaEskandarii/hostfire/types"
	"github.com/go-chi/chi/v5"
)

func (handler *HttpRouteHandler) login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := handler.userStore.Find(r.Context(), username, password)
	if err != nil {
		slog.Error("login failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    generateAuthToken(username, handler.SecretKey, time.Now().Add(authTokenTTL)),
		Path:     "/",
		MaxAge:   int(authTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"username": user.Username})
}

func (handler *HttpRouteHandler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   authCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (handler *HttpRouteHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enqueuedJobs, err := handler.enqueuedJobStore.CountAllJobsGroupedByStatus(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	recurringJobs, err := handler.recurringJobStore.Count(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	servers, err := handler.serverStore.List(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enqueued_jobs":  enqueuedJobs,
		"recurring_jobs": recurringJobs,
		"servers":        len(servers),
	})
}

func (handler *HttpRouteHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	var status state.JobStatus
	if statusParam := strings.TrimSpace(r.URL.Query().Get("status")); statusParam != "" {
		parsed, ok := state.Parse(statusParam)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status "+statusParam)
			return
		}
		status = parsed
	}

	jobs, err := handler.enqueuedJobStore.GetAll(r.Context(), getPageNumber(r), PageSize, status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (handler *HttpRouteHandler) activateRecurring(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := handler.jobManager.ActivateSchedule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("recurring job activated", "recurring_job", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job activated successfully!"})
}

func (handler *HttpRouteHandler) deactivateRecurring(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := handler.jobManager.DeActivateSchedule(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("recurring job deactivated", "recurring_job", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job deactivated successfully!"})
}

func (handler *HttpRouteHandler) listServers(w http.ResponseWriter, r *http.Request) {
	servers, err := handler.serverStore.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if servers == nil {
		servers = []types.Server{}
	}
	writeJSON(w, http.StatusOK, servers)
}
