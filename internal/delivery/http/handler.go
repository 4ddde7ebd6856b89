package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carelinehq/hybrid-queue/config"
	"github.com/carelinehq/hybrid-queue/internal/models"
	"github.com/carelinehq/hybrid-queue/internal/service"
	"github.com/carelinehq/hybrid-queue/pkg/logger"
)

type Handler struct {
	ctrl      service.QueueController
	jwtCfg    config.JWTConfig
	logger    logger.Logger
	validator *validator.Validate
}

func NewHandler(ctrl service.QueueController, jwtCfg config.JWTConfig, l logger.Logger) *Handler {
	return &Handler{
		ctrl:      ctrl,
		jwtCfg:    jwtCfg,
		logger:    l,
		validator: validator.New(),
	}
}

// Routes mounts the queue API. Staff-only operations sit behind the role
// check; joining and reading the queue only need a valid token.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.HealthCheck)

	r.Route("/queue", func(r chi.Router) {
		r.Use(AuthMiddleware(h.jwtCfg))

		r.Post("/entries", h.Join)
		r.Get("/entries/{entryId}", h.GetEntry)
		r.Post("/entries/{entryId}/check-in", h.CheckIn)
		r.Post("/entries/{entryId}/cancel", h.Cancel)
		r.Get("/providers/{centerId}/{providerId}/snapshot", h.Snapshot)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleStaff))

			r.Post("/providers/{centerId}/{providerId}/call-next", h.CallNext)
			r.Post("/entries/{entryId}/start", h.StartService)
			r.Post("/entries/{entryId}/complete", h.Complete)
			r.Post("/entries/{entryId}/no-show", h.NoShow)
			r.Post("/entries/{entryId}/requeue", h.Requeue)
		})
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "hybrid-queue",
	})
}

type joinRequest struct {
	Kind          models.EntryKind `json:"kind" validate:"required,oneof=scheduled walk_in"`
	CenterID      string           `json:"center_id" validate:"required"`
	ProviderID    string           `json:"provider_id" validate:"required"`
	CustomerID    string           `json:"customer_id" validate:"required"`
	ServiceID     string           `json:"service_id" validate:"required"`
	ScheduledTime *time.Time       `json:"scheduled_time,omitempty"`
	PriorityBoost int              `json:"priority_boost" validate:"gte=0,lte=10"`
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	in := service.JoinInput{
		Kind:          req.Kind,
		CenterID:      req.CenterID,
		ProviderID:    req.ProviderID,
		CustomerID:    req.CustomerID,
		ServiceID:     req.ServiceID,
		PriorityBoost: req.PriorityBoost,
	}
	if req.ScheduledTime != nil {
		t := *req.ScheduledTime
		in.ScheduledTime = &t
	}

	entry, err := h.ctrl.Join(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, entry)
}

type versionRequest struct {
	Version int64 `json:"version" validate:"gte=1"`
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.entryTransition(w, r, h.ctrl.CheckIn)
}

func (h *Handler) StartService(w http.ResponseWriter, r *http.Request) {
	h.entryTransition(w, r, h.ctrl.StartService)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.entryTransition(w, r, h.ctrl.Complete)
}

func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.entryTransition(w, r, h.ctrl.NoShow)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.entryTransition(w, r, h.ctrl.Cancel)
}

func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	h.entryTransition(w, r, h.ctrl.Requeue)
}

func (h *Handler) CallNext(w http.ResponseWriter, r *http.Request) {
	centerID := chi.URLParam(r, "centerId")
	providerID := chi.URLParam(r, "providerId")

	entry, err := h.ctrl.CallNext(r.Context(), centerID, providerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")

	entry, err := h.ctrl.GetEntry(r.Context(), entryID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	centerID := chi.URLParam(r, "centerId")
	providerID := chi.URLParam(r, "providerId")

	snap, err := h.ctrl.GetQueueSnapshot(r.Context(), centerID, providerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, snap)
}

func (h *Handler) entryTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, entryID string, expectedVersion int64) (*models.QueueEntry, error)) {
	entryID := chi.URLParam(r, "entryId")

	var req versionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	entry, err := fn(r.Context(), entryID, req.Version)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrEntryNotFound), errors.Is(err, service.ErrProviderNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrVersionConflict):
		h.respondError(w, http.StatusConflict, "Entry was modified concurrently; re-fetch and retry")
	case errors.Is(err, service.ErrProviderBusy):
		h.respondError(w, http.StatusConflict, "Provider already serving an entry")
	case errors.Is(err, service.ErrInvalidTransition):
		h.respondError(w, http.StatusUnprocessableEntity, "Entry status does not permit this operation")
	case errors.Is(err, service.ErrEmptyQueue):
		h.respondError(w, http.StatusNotFound, "No waiting entries")
	case errors.Is(err, service.ErrQueueClosed), errors.Is(err, service.ErrWalkInsNotAccepted):
		h.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Errorf(r.Context(), "delivery.http.Handler: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf(context.Background(), "delivery.http.Handler.respondJSON: %v", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	resp := map[string]any{
		"error": message,
		"code":  statusCode,
	}

	h.respondJSON(w, statusCode, resp)
}
