// Package service implements the admission state machine and the
// event-level business operations between HTTP handlers and the
// repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memberhub/admission/internal/admission"
	"github.com/memberhub/admission/internal/model"
	"github.com/memberhub/admission/internal/repository"
)

// EventService handles event CRUD and read-side registration queries.
type EventService struct {
	events *repository.EventRepository
	store  *repository.Store
	log    *slog.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events *repository.EventRepository, store *repository.Store, log *slog.Logger) *EventService {
	return &EventService{events: events, store: store, log: log}
}

// CreateEvent validates the request and delegates to the repository.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive integer")
	}
	if req.Capacity > 100_000 {
		return nil, fmt.Errorf("capacity cannot exceed 100,000")
	}
	for _, groupIDs := range req.Pools {
		for _, id := range groupIDs {
			if strings.TrimSpace(id) == "" {
				return nil, fmt.Errorf("pool group ids must be non-empty")
			}
		}
	}
	return s.events.Create(ctx, req)
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, repository.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListRegistrations returns all registrations for an event.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, repository.ErrEventNotFound
	}
	return s.store.Registrations(ctx, eventID)
}

// Waitlist returns the event's waitlist in position order.
func (s *EventService) Waitlist(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, repository.ErrEventNotFound
	}
	return s.store.Waitlist(ctx, eventID)
}

// WaitlistPositionOf returns a user's stored waitlist position. Asking for
// a user with no waitlisted row is a caller bug, not a normal outcome: it
// is logged loudly and surfaced as admission.ErrNotWaitlisted, never
// defaulted.
func (s *EventService) WaitlistPositionOf(ctx context.Context, eventID, userID string) (int, error) {
	waitlist, err := s.Waitlist(ctx, eventID)
	if err != nil {
		return 0, err
	}
	for _, reg := range waitlist {
		if reg.UserID == userID && reg.WaitlistPosition != nil {
			return *reg.WaitlistPosition, nil
		}
	}
	s.log.Error("waitlist position queried for a user with no waitlisted registration",
		"event_id", eventID, "user_id", userID)
	return 0, admission.ErrNotWaitlisted
}
