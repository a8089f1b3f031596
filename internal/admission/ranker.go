package admission

import (
	"errors"
	"sort"

	"github.com/memberhub/admission/internal/model"
)

// ErrNotWaitlisted is returned by PositionOf when the user has no waitlisted
// registration for the event. Callers treat this as a contract violation,
// not a normal outcome.
var ErrNotWaitlisted = errors.New("user has no waitlisted registration for this event")

// Rank produces the canonical waitlist order: prioritized registrations
// first, then the rest, each class ordered by arrival time ascending. The
// returned slice is a copy with 1-based WaitlistPosition values assigned
// densely; the input is not modified.
func Rank(waitlisted []model.Registration, prioritized map[string]bool) []model.Registration {
	ranked := make([]model.Registration, len(waitlisted))
	copy(ranked, waitlisted)

	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := prioritized[ranked[i].UserID], prioritized[ranked[j].UserID]
		if pi != pj {
			return pi
		}
		return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
	})

	for i := range ranked {
		pos := i + 1
		ranked[i].WaitlistPosition = &pos
	}
	return ranked
}

// PositionOf returns the 1-based rank one user would hold in the canonical
// order, or ErrNotWaitlisted if no waitlisted registration exists for them.
func PositionOf(userID string, waitlisted []model.Registration, prioritized map[string]bool) (int, error) {
	for _, reg := range Rank(waitlisted, prioritized) {
		if reg.UserID == userID {
			return *reg.WaitlistPosition, nil
		}
	}
	return 0, ErrNotWaitlisted
}
