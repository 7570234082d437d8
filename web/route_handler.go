package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/RezaEskandarii/hostfire/client"
	"github.com/RezaEskandarii/hostfire/internal/metrics"
	"github.com/RezaEskandarii/hostfire/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	PageSize = 15

	shutdownTimeout = 10 * time.Second
)

type HttpRouteHandler struct {
	jobManager        *client.JobManager
	enqueuedJobStore  store.EnqueuedJobStore
	recurringJobStore store.RecurringJobStore
	serverStore       store.ServerStore
	userStore         store.UserStore
	SecretKey         string
	UseAuth           bool
}

func NewRouteHandler(
	jobManager *client.JobManager,
	serverStore store.ServerStore,
	userStore store.UserStore,
	secretKey string,
	useAuth bool,
) *HttpRouteHandler {
	return &HttpRouteHandler{
		jobManager:        jobManager,
		enqueuedJobStore:  jobManager.EnqueuedJobStore,
		recurringJobStore: jobManager.RecurringJobStore,
		serverStore:       serverStore,
		userStore:         userStore,
		SecretKey:         secretKey,
		UseAuth:           useAuth,
	}
}

// Routes builds the router: health and metrics, the job REST API under
// /api and the dashboard API under /hangfire.
func (handler *HttpRouteHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", handler.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", handler.createJob)
		r.Get("/jobs/{id}", handler.getJob)
		r.Delete("/jobs/{id}", handler.deleteJob)
		r.Post("/jobs/{id}/requeue", handler.requeueJob)

		r.Get("/recurring", handler.listRecurring)
		r.Put("/recurring/{id}", handler.putRecurring)
		r.Delete("/recurring/{id}", handler.deleteRecurring)
		r.Post("/recurring/{id}/trigger", handler.triggerRecurring)
	})

	r.Route("/hangfire", func(r chi.Router) {
		r.Post("/login", handler.login)
		r.Post("/logout", handler.logout)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Get("/stats", handler.stats)
			r.Get("/jobs", handler.listJobs)
			r.Delete("/jobs/{id}", handler.deleteJob)
			r.Post("/jobs/{id}/requeue", handler.requeueJob)
			r.Get("/recurring", handler.listRecurring)
			r.Post("/recurring/{id}/activate", handler.activateRecurring)
			r.Post("/recurring/{id}/deactivate", handler.deactivateRecurring)
			r.Post("/recurring/{id}/trigger", handler.triggerRecurring)
			r.Get("/servers", handler.listServers)
		})
	})

	return r
}

// Serve listens on port until ctx is cancelled, then shuts the server down
// gracefully.
func (handler *HttpRouteHandler) Serve(ctx context.Context, port uint) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		printBanner(addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down http server", "addr", addr)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (handler *HttpRouteHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}
