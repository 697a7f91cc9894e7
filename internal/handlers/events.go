package handlers

import (
	"errors"
	"net/http"

	"github.com/eventdesk/apiserver/internal/rbac"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	dashboardPath = "/dashboard"

	formFieldTitle    = "title"
	formFieldDesc     = "description"
	formFieldDate     = "date"
	formFieldTime     = "time"
	formFieldLocation = "location"
	formFieldCategory = "category"
	formFieldImage    = "image"
)

// EventHandler provides HTTP handlers for events and RSVPs.
type EventHandler struct {
	eventService  *services.EventService
	maxImageBytes int64
	logger        *zap.Logger
}

// NewEventHandler constructs a handler with the provided service.
func NewEventHandler(eventService *services.EventService, maxImageBytes int64, logger *zap.Logger) *EventHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = 5 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		eventService:  eventService,
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
}

// EventRouter registers event routes. Every route requires authentication.
func EventRouter(r chi.Router, handler *EventHandler, guard *Guard) {
	r.Use(guard.RequireAuth)

	r.With(guard.Require(rbac.ViewEvents, "")).Get("/", handler.ListEvents)
	r.With(guard.Require(rbac.CreateEvent, dashboardPath)).Post("/", handler.CreateEvent)
	r.Route("/{eventID}", func(r chi.Router) {
		r.With(guard.RequireEvent(rbac.ViewEvents, "")).Get("/", handler.GetEvent)
		r.With(guard.RequireEvent(rbac.ViewEvents, "")).Get("/image", handler.GetEventImage)
		r.With(guard.RequireEvent(rbac.EditEvent, dashboardPath)).Put("/", handler.UpdateEvent)
		r.With(guard.RequireEvent(rbac.DeleteEvent, dashboardPath)).Delete("/", handler.DeleteEvent)
		r.With(guard.RequireEvent(rbac.RSVP, "")).Post("/rsvp", handler.RSVP)
	})
}

func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.eventService.Visible(r.Context(), user, services.ScopeAll, offset, limit)
	if err != nil {
		h.logger.Error("list events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.Event]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, _ := eventFromContext(r.Context())
	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) GetEventImage(w http.ResponseWriter, r *http.Request) {
	event, _ := eventFromContext(r.Context())
	rc, contentType, err := h.eventService.OpenImage(r.Context(), event)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		h.logger.Error("open event image", zap.Int("event_id", event.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch image")
		return
	}
	streamImage(w, rc, contentType)
}

func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	in, image, err := h.parseEventForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.eventService.Create(r.Context(), user, in, image)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		h.logger.Error("create event", zap.Int("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	existing, _ := eventFromContext(r.Context())
	in, image, err := h.parseEventForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.eventService.Update(r.Context(), existing, in, image)
	if err != nil {
		if writeValidation(w, err) {
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("update event", zap.Int("event_id", existing.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	event, _ := eventFromContext(r.Context())
	if err := h.eventService.Delete(r.Context(), event); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("delete event", zap.Int("event_id", event.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EventHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	event, _ := eventFromContext(r.Context())

	added, err := h.eventService.RSVP(r.Context(), user, event)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("rsvp", zap.Int("event_id", event.ID), zap.Int("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to rsvp")
		return
	}
	if !added {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "You have already RSVP'd to this event.", AlreadyRSVPd: true})
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "RSVP successful!"})
}

func (h *EventHandler) parseEventForm(w http.ResponseWriter, r *http.Request) (services.EventInput, *services.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+maxMultipartMemory)
	if err := parseForm(r); err != nil {
		return services.EventInput{}, nil, err
	}

	image, err := formFile(r, formFieldImage, h.maxImageBytes)
	if err != nil {
		return services.EventInput{}, nil, err
	}

	return services.EventInput{
		Title:       r.FormValue(formFieldTitle),
		Description: r.FormValue(formFieldDesc),
		Date:        r.FormValue(formFieldDate),
		Time:        r.FormValue(formFieldTime),
		Location:    r.FormValue(formFieldLocation),
		Category:    r.FormValue(formFieldCategory),
	}, image, nil
}
