// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/memberhub/admission/internal/admission"
	"github.com/memberhub/admission/internal/model"
	"github.com/memberhub/admission/internal/repository"
	"github.com/memberhub/admission/internal/service"
)

// EventAPI is the read/CRUD surface the handlers need.
type EventAPI interface {
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
	Waitlist(ctx context.Context, eventID string) ([]model.Registration, error)
	WaitlistPositionOf(ctx context.Context, eventID, userID string) (int, error)
}

// AdmissionAPI is the state-changing surface the handlers need.
type AdmissionAPI interface {
	Register(ctx context.Context, eventID, userID string) (*service.Outcome, error)
	Cancel(ctx context.Context, eventID, userID string) error
	AdminPromote(ctx context.Context, eventID, userID string) error
}

// EventHandler holds all HTTP handlers for the admission API.
type EventHandler struct {
	events     EventAPI
	admissions AdmissionAPI
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events EventAPI, admissions AdmissionAPI) *EventHandler {
	return &EventHandler{events: events, admissions: admissions}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// Register handles POST /events/{id}/register
// Runs the full admission decision: seat, swap, or waitlist.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out, err := h.admissions.Register(r.Context(), id, req.UserID)
	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	resp := model.RegisterResponse{
		Status:       string(out.Kind),
		Position:     out.Position,
		Registration: out.Registration,
	}
	switch out.Kind {
	case service.OutcomeRegistered:
		writeJSON(w, http.StatusCreated, resp)
	case service.OutcomeWaitlisted:
		writeJSON(w, http.StatusAccepted, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// Cancel handles POST /events/{id}/cancel
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.admissions.Cancel(r.Context(), id, req.UserID); err != nil {
		writeAdmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Promote handles POST /events/{id}/registrations/{userID}/promote
// Admin-only explicit move from the waitlist into a seat.
func (h *EventHandler) Promote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	if err := h.admissions.AdminPromote(r.Context(), id, userID); err != nil {
		writeAdmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	regs, err := h.events.ListRegistrations(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// GetWaitlist handles GET /events/{id}/waitlist
func (h *EventHandler) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	regs, err := h.events.Waitlist(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list waitlist")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// GetWaitlistPosition handles GET /events/{id}/registrations/{userID}/position
// Callers are expected to know the user is waitlisted; asking for anyone
// else is a caller bug and surfaces as a 500, not an empty default.
func (h *EventHandler) GetWaitlistPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	pos, err := h.events.WaitlistPositionOf(r.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEventNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, admission.ErrNotWaitlisted):
			writeError(w, http.StatusInternalServerError, "user is not on the waitlist")
		default:
			writeError(w, http.StatusInternalServerError, "failed to resolve waitlist position")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"position": pos})
}

func writeAdmissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, repository.ErrRegistrationNotFound):
		writeError(w, http.StatusNotFound, "registration not found")
	case errors.Is(err, service.ErrEventFull):
		writeError(w, http.StatusConflict, "event is fully booked")
	case errors.Is(err, service.ErrNotEligible):
		writeError(w, http.StatusForbidden, "event is restricted to prioritized members")
	case errors.Is(err, service.ErrNotCancellable):
		writeError(w, http.StatusConflict, "registration can no longer be cancelled")
	case errors.Is(err, service.ErrNotOnWaitlist):
		writeError(w, http.StatusConflict, "registration is not on the waitlist")
	case repository.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "temporarily unable to process the request, retry shortly")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
