// Package model defines the core domain types for event admission control.
package model

import "time"

// RegistrationStatus enumerates the lifecycle states of a registration.
type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "registered"
	StatusWaitlisted RegistrationStatus = "waitlisted"
	StatusCancelled  RegistrationStatus = "cancelled"
	StatusAttended   RegistrationStatus = "attended"
	StatusNoShow     RegistrationStatus = "no_show"
)

// Event represents a capacity-limited event with optional priority pools.
type Event struct {
	ID                      string         `json:"id"`
	Name                    string         `json:"name"`
	Capacity                int            `json:"capacity"`
	AllowWaitlist           bool           `json:"allow_waitlist"`
	OnlyAllowPrioritized    bool           `json:"only_allow_prioritized"`
	EnforcesPreviousStrikes bool           `json:"enforces_previous_strikes"`
	Pools                   []PriorityPool `json:"pools,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
}

// PriorityPool is a set of group identifiers. A user matches the pool only
// when they belong to every group in it. A pool with zero groups matches
// nobody.
type PriorityPool struct {
	ID       string   `json:"id"`
	EventID  string   `json:"event_id"`
	GroupIDs []string `json:"group_ids"`
}

// Registration represents one user's attempt to attend one event.
// WaitlistPosition is meaningful only while Status is waitlisted.
type Registration struct {
	ID               string             `json:"id"`
	EventID          string             `json:"event_id"`
	UserID           string             `json:"user_id"`
	Status           RegistrationStatus `json:"status"`
	WaitlistPosition *int               `json:"waitlist_position,omitempty"`
	AttendedAt       *time.Time         `json:"attended_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// HoldsSeat reports whether the registration counts against event capacity.
func (r *Registration) HoldsSeat() bool {
	return r.Status == StatusRegistered
}

// Active reports whether the registration blocks a new attempt by the same
// user. Cancelled rows never do; a re-registration after cancellation is a
// fresh attempt with a fresh arrival time.
func (r *Registration) Active() bool {
	return r.Status != StatusCancelled
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name                    string     `json:"name"`
	Capacity                int        `json:"capacity"`
	AllowWaitlist           bool       `json:"allow_waitlist"`
	OnlyAllowPrioritized    bool       `json:"only_allow_prioritized"`
	EnforcesPreviousStrikes bool       `json:"enforces_previous_strikes"`
	Pools                   [][]string `json:"pools,omitempty"`
}

// RegisterRequest is the payload for registering a user for an event.
type RegisterRequest struct {
	UserID string `json:"user_id"`
}

// CancelRequest is the payload for cancelling a registration.
type CancelRequest struct {
	UserID string `json:"user_id"`
}

// RegisterResponse summarises the outcome of a registration attempt.
type RegisterResponse struct {
	Status       string        `json:"status"`
	Position     int           `json:"position,omitempty"`
	Registration *Registration `json:"registration"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
