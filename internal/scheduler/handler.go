package scheduler

import (
	"errors"
	"net/http"

	"github.com/bissquit/incident-sla/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrJobNotFound, Status: http.StatusNotFound, Message: "job not found"},
	{Error: ErrJobAlreadyRunning, Status: http.StatusConflict, Message: "job is already running"},
	{Error: ErrSchedulerStopped, Status: http.StatusServiceUnavailable, Message: "scheduler is shutting down"},
}

// Handler exposes job status and manual runs to admins.
type Handler struct {
	scheduler *Scheduler
}

// NewHandler creates a new scheduler handler.
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// RegisterRoutes registers admin job routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Get("/{name}", h.GetJob)
		r.Post("/{name}/run", h.RunJob)
	})
}

// ListJobs handles GET /admin/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.scheduler.Status())
}

// GetJob handles GET /admin/jobs/{name}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.scheduler.JobStatus(chi.URLParam(r, "name"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, status)
}

// RunJob handles POST /admin/jobs/{name}/run.
// The run itself may fail; that outcome is reported in the returned status.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	// Handler errors are recorded in the job status and returned with it.
	if err := h.scheduler.RunNow(name); err != nil && isSchedulingError(err) {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	status, err := h.scheduler.JobStatus(name)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, status)
}

func isSchedulingError(err error) bool {
	for _, m := range errorMappings {
		if errors.Is(err, m.Error) {
			return true
		}
	}
	return false
}
