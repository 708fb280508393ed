package incidents

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/incident-sla/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: ErrStateConflict, Status: http.StatusConflict, Message: "incident was modified concurrently, retry"},
	{Error: ErrIncidentNotOpen, Status: http.StatusConflict, Message: "incident is not open"},
	{Error: ErrUnknownEvent, Status: http.StatusBadRequest},
	{Error: ErrInvalidPeriod, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Put("/{id}/classification", h.UpdateClassification)
		r.Post("/{id}/transitions", h.Transition)
	})
	r.Get("/reports/sla", h.SLAReport)
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Number  string `json:"number" validate:"omitempty,max=32"`
	Title   string `json:"title" validate:"required,min=1,max=500"`
	Impact  string `json:"impact" validate:"omitempty,max=32"`
	Urgency string `json:"urgency" validate:"omitempty,max=32"`
}

// UpdateClassificationRequest represents the request body for reclassifying an incident.
type UpdateClassificationRequest struct {
	Impact  string `json:"impact" validate:"required,max=32"`
	Urgency string `json:"urgency" validate:"required,max=32"`
}

// TransitionRequest represents the request body for a lifecycle event.
type TransitionRequest struct {
	Event string `json:"event" validate:"required,oneof=start hold resolve close reopen cancel"`
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	incident, err := h.service.GetIncident(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateClassification handles PUT /incidents/{id}/classification.
func (h *Handler) UpdateClassification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateClassificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.Reclassify(r.Context(), id, req.Impact, req.Urgency)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// Transition handles POST /incidents/{id}/transitions.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.TransitionIncident(r.Context(), id, Event(req.Event))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// SLAReport handles GET /reports/sla?period=30d.
func (h *Handler) SLAReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SLAReport(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, report)
}
