package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/memberhub/admission/internal/admission"
	"github.com/memberhub/admission/internal/model"
	"github.com/memberhub/admission/internal/notify"
	"github.com/memberhub/admission/internal/repository"
)

// ErrEventFull is returned when an event is at capacity and has no waitlist.
var ErrEventFull = errors.New("event is fully booked")

// ErrNotEligible is returned when an event admits prioritized members only.
var ErrNotEligible = errors.New("event is restricted to prioritized members")

// ErrNotCancellable is returned when a registration is in a terminal state.
var ErrNotCancellable = errors.New("registration can no longer be cancelled")

// ErrNotOnWaitlist is returned by the admin move when the registration is
// not waitlisted.
var ErrNotOnWaitlist = errors.New("registration is not on the waitlist")

// Store is the transactional unit of work an admission operation runs in.
// Implemented by repository.Store.
type Store interface {
	InEventTx(ctx context.Context, eventID string, fn func(ctx context.Context, tx repository.EventTx) error) error
}

// MembershipOracle resolves a user's group memberships.
type MembershipOracle interface {
	GroupsOf(ctx context.Context, userID string) (admission.GroupSet, error)
}

// StrikeOracle resolves a user's current disciplinary strike count.
type StrikeOracle interface {
	StrikeCountOf(ctx context.Context, userID string) (int, error)
}

// Notifier enqueues best-effort notification intents.
type Notifier interface {
	Enqueue(ctx context.Context, intent notify.Intent) error
}

// OutcomeKind enumerates the observable results of a Register call.
type OutcomeKind string

const (
	OutcomeRegistered        OutcomeKind = "registered"
	OutcomeWaitlisted        OutcomeKind = "waitlisted"
	OutcomeAlreadyRegistered OutcomeKind = "already_registered"
)

// Outcome is the result of one registration attempt. Position is set for
// waitlisted outcomes.
type Outcome struct {
	Kind         OutcomeKind
	Registration *model.Registration
	Position     int
}

// AdmissionService owns the registration state machine. Every operation
// runs as one event-locked transaction; transient storage failures are
// retried a bounded number of times with every input re-read fresh.
type AdmissionService struct {
	store    Store
	members  MembershipOracle
	strikes  StrikeOracle
	notifier Notifier
	log      *slog.Logger

	maxAttempts int
	backoff     time.Duration
}

// NewAdmissionService constructs an AdmissionService. notifier may be nil.
func NewAdmissionService(store Store, members MembershipOracle, strikes StrikeOracle, notifier Notifier, log *slog.Logger) *AdmissionService {
	return &AdmissionService{
		store:       store,
		members:     members,
		strikes:     strikes,
		notifier:    notifier,
		log:         log,
		maxAttempts: 3,
		backoff:     50 * time.Millisecond,
	}
}

// Register attempts to admit a user to an event.
//
// Seat free: the user is registered. Event full and the user prioritized:
// the most recently admitted non-prioritized occupant is swapped onto the
// waitlist and the arriver takes the seat. Otherwise the user joins the
// waitlist if the event allows one, or the attempt fails with ErrEventFull.
// A repeated Register with an active registration returns the existing row
// unchanged.
func (s *AdmissionService) Register(ctx context.Context, eventID, userID string) (*Outcome, error) {
	if eventID == "" || userID == "" {
		return nil, fmt.Errorf("event id and user id are required")
	}

	var out Outcome
	var intents []notify.Intent
	err := s.withRetry(ctx, func() error {
		intents = intents[:0]
		return s.store.InEventTx(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
			ev := tx.Event()

			existing, err := tx.ActiveRegistration(ctx, userID)
			if err != nil && !errors.Is(err, repository.ErrRegistrationNotFound) {
				return err
			}
			if existing != nil {
				out = Outcome{Kind: OutcomeAlreadyRegistered, Registration: existing}
				if existing.WaitlistPosition != nil {
					out.Position = *existing.WaitlistPosition
				}
				return nil
			}

			if ev.OnlyAllowPrioritized {
				prio, err := s.isPrioritized(ctx, ev, userID)
				if err != nil {
					return err
				}
				if !prio {
					return ErrNotEligible
				}
			}

			count, err := tx.CountRegistered(ctx)
			if err != nil {
				return err
			}

			arrival := newRegistration(ev.ID, userID)

			if count < ev.Capacity {
				arrival.Status = model.StatusRegistered
				if err := tx.Insert(ctx, arrival); err != nil {
					return err
				}
				out = Outcome{Kind: OutcomeRegistered, Registration: arrival}
				intents = append(intents, notify.Intent{
					Kind: notify.TypeRegistrationConfirmed, UserID: userID, EventID: ev.ID,
				})
				return nil
			}

			arriverPrio, err := s.isPrioritized(ctx, ev, userID)
			if err != nil {
				return err
			}

			if arriverPrio {
				done, err := s.trySwap(ctx, tx, arrival, &out, &intents)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
			}

			if !ev.AllowWaitlist {
				return ErrEventFull
			}

			waitlisted, err := tx.RegistrationsByStatus(ctx, model.StatusWaitlisted)
			if err != nil {
				return err
			}
			prio, err := s.prioritizedMap(ctx, ev, waitlisted)
			if err != nil {
				return err
			}
			prio[userID] = arriverPrio

			arrival.Status = model.StatusWaitlisted
			ranked := admission.Rank(append(waitlisted, *arrival), prio)
			pos := positionIn(ranked, userID)
			arrival.WaitlistPosition = &pos

			if err := tx.Insert(ctx, arrival); err != nil {
				return err
			}
			if err := tx.UpdatePositions(ctx, ranked); err != nil {
				return err
			}

			out = Outcome{Kind: OutcomeWaitlisted, Registration: arrival, Position: pos}
			intents = append(intents, notify.Intent{
				Kind: notify.TypeWaitlistJoined, UserID: userID, EventID: ev.ID, Position: pos,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, intents)
	return &out, nil
}

// trySwap seats a prioritized arriver by displacing the most recently
// admitted non-prioritized occupant. Returns false when every occupant is
// prioritized; the caller falls through to normal waitlisting.
func (s *AdmissionService) trySwap(ctx context.Context, tx repository.EventTx, arrival *model.Registration, out *Outcome, intents *[]notify.Intent) (bool, error) {
	ev := tx.Event()

	registered, err := tx.RegistrationsByStatus(ctx, model.StatusRegistered)
	if err != nil {
		return false, err
	}
	seatPrio, err := s.prioritizedMap(ctx, ev, registered)
	if err != nil {
		return false, err
	}

	target := admission.FindSwapTarget(registered, seatPrio)
	if target == nil {
		return false, nil
	}

	waitlisted, err := tx.RegistrationsByStatus(ctx, model.StatusWaitlisted)
	if err != nil {
		return false, err
	}
	prio, err := s.prioritizedMap(ctx, ev, waitlisted)
	if err != nil {
		return false, err
	}
	// The swap target was selected precisely because it is not prioritized.
	prio[target.UserID] = false

	moved := *target
	moved.Status = model.StatusWaitlisted
	ranked := admission.Rank(append(waitlisted, moved), prio)
	targetPos := positionIn(ranked, target.UserID)

	if err := tx.SetStatus(ctx, target.ID, model.StatusWaitlisted, &targetPos); err != nil {
		return false, err
	}
	if err := tx.UpdatePositions(ctx, ranked); err != nil {
		return false, err
	}

	arrival.Status = model.StatusRegistered
	if err := tx.Insert(ctx, arrival); err != nil {
		return false, err
	}

	*out = Outcome{Kind: OutcomeRegistered, Registration: arrival}
	*intents = append(*intents,
		notify.Intent{Kind: notify.TypeSwappedToWaitlist, UserID: target.UserID, EventID: ev.ID, Position: targetPos},
		notify.Intent{Kind: notify.TypeRegistrationConfirmed, UserID: arrival.UserID, EventID: ev.ID},
	)
	return true, nil
}

// Cancel withdraws a user's registration. Cancelling a seated registration
// promotes the top-ranked waitlisted user into the freed seat; in both the
// seated and waitlisted cases the remaining waitlist is renumbered densely
// within the same transaction.
func (s *AdmissionService) Cancel(ctx context.Context, eventID, userID string) error {
	if eventID == "" || userID == "" {
		return fmt.Errorf("event id and user id are required")
	}

	var intents []notify.Intent
	err := s.withRetry(ctx, func() error {
		intents = intents[:0]
		return s.store.InEventTx(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
			reg, err := tx.ActiveRegistration(ctx, userID)
			if err != nil {
				return err
			}

			switch reg.Status {
			case model.StatusRegistered:
				if err := tx.SetStatus(ctx, reg.ID, model.StatusCancelled, nil); err != nil {
					return err
				}
				return s.promoteTop(ctx, tx, &intents)

			case model.StatusWaitlisted:
				if err := tx.SetStatus(ctx, reg.ID, model.StatusCancelled, nil); err != nil {
					return err
				}
				return s.renumberWaitlist(ctx, tx)

			default:
				return ErrNotCancellable
			}
		})
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, intents)
	return nil
}

// AdminPromote moves a waitlisted registration straight into a seat,
// bypassing rank order by operator choice. The capacity check still
// applies, and the remaining waitlist is renumbered.
func (s *AdmissionService) AdminPromote(ctx context.Context, eventID, userID string) error {
	if eventID == "" || userID == "" {
		return fmt.Errorf("event id and user id are required")
	}

	var intents []notify.Intent
	err := s.withRetry(ctx, func() error {
		intents = intents[:0]
		return s.store.InEventTx(ctx, eventID, func(ctx context.Context, tx repository.EventTx) error {
			ev := tx.Event()

			reg, err := tx.ActiveRegistration(ctx, userID)
			if err != nil {
				return err
			}
			if reg.Status != model.StatusWaitlisted {
				return ErrNotOnWaitlist
			}

			count, err := tx.CountRegistered(ctx)
			if err != nil {
				return err
			}
			if count >= ev.Capacity {
				return ErrEventFull
			}

			if err := tx.SetStatus(ctx, reg.ID, model.StatusRegistered, nil); err != nil {
				return err
			}
			if err := s.renumberWaitlist(ctx, tx); err != nil {
				return err
			}

			intents = append(intents, notify.Intent{
				Kind: notify.TypeWaitlistPromoted, UserID: userID, EventID: ev.ID,
			})
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, intents)
	return nil
}

// promoteTop fills one freed seat with the top of the waitlist, if any, and
// renumbers the rest.
func (s *AdmissionService) promoteTop(ctx context.Context, tx repository.EventTx, intents *[]notify.Intent) error {
	ev := tx.Event()

	count, err := tx.CountRegistered(ctx)
	if err != nil {
		return err
	}
	if count >= ev.Capacity {
		return nil
	}

	waitlisted, err := tx.RegistrationsByStatus(ctx, model.StatusWaitlisted)
	if err != nil {
		return err
	}
	if len(waitlisted) == 0 {
		return nil
	}

	prio, err := s.prioritizedMap(ctx, ev, waitlisted)
	if err != nil {
		return err
	}
	ranked := admission.Rank(waitlisted, prio)
	top := ranked[0]

	if err := tx.SetStatus(ctx, top.ID, model.StatusRegistered, nil); err != nil {
		return err
	}
	if err := tx.UpdatePositions(ctx, admission.Rank(ranked[1:], prio)); err != nil {
		return err
	}

	*intents = append(*intents, notify.Intent{
		Kind: notify.TypeWaitlistPromoted, UserID: top.UserID, EventID: ev.ID,
	})
	return nil
}

// renumberWaitlist closes any gap in waitlist positions after a row left
// the waitlist.
func (s *AdmissionService) renumberWaitlist(ctx context.Context, tx repository.EventTx) error {
	ev := tx.Event()

	remaining, err := tx.RegistrationsByStatus(ctx, model.StatusWaitlisted)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}

	prio, err := s.prioritizedMap(ctx, ev, remaining)
	if err != nil {
		return err
	}
	return tx.UpdatePositions(ctx, admission.Rank(remaining, prio))
}

// isPrioritized resolves one user's oracle inputs and classifies them for
// the event. Oracle failures propagate; the decision is never defaulted.
func (s *AdmissionService) isPrioritized(ctx context.Context, ev *model.Event, userID string) (bool, error) {
	groups, err := s.members.GroupsOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("resolve groups for %s: %w", userID, err)
	}

	strikes := 0
	if ev.EnforcesPreviousStrikes {
		strikes, err = s.strikes.StrikeCountOf(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("resolve strikes for %s: %w", userID, err)
		}
	}
	return admission.IsPrioritized(groups, ev.Pools, strikes, ev.EnforcesPreviousStrikes), nil
}

// prioritizedMap classifies every user appearing in regs.
func (s *AdmissionService) prioritizedMap(ctx context.Context, ev *model.Event, regs []model.Registration) (map[string]bool, error) {
	m := make(map[string]bool, len(regs))
	for _, reg := range regs {
		if _, ok := m[reg.UserID]; ok {
			continue
		}
		prio, err := s.isPrioritized(ctx, ev, reg.UserID)
		if err != nil {
			return nil, err
		}
		m[reg.UserID] = prio
	}
	return m, nil
}

// withRetry re-runs op on transient storage failures, up to maxAttempts.
func (s *AdmissionService) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = op()
		if err == nil || !repository.IsTransient(err) {
			return err
		}
		s.log.Warn("transient storage failure, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return err
}

// dispatch enqueues intents after commit. Failures are logged and
// swallowed: notifications never affect a committed registration.
func (s *AdmissionService) dispatch(ctx context.Context, intents []notify.Intent) {
	if s.notifier == nil {
		return
	}
	for _, intent := range intents {
		if err := s.notifier.Enqueue(ctx, intent); err != nil {
			s.log.Warn("notification enqueue failed",
				"kind", intent.Kind, "user_id", intent.UserID, "event_id", intent.EventID, "err", err)
		}
	}
}

func newRegistration(eventID, userID string) *model.Registration {
	now := time.Now().UTC()
	return &model.Registration{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func positionIn(ranked []model.Registration, userID string) int {
	for _, reg := range ranked {
		if reg.UserID == userID {
			return *reg.WaitlistPosition
		}
	}
	return 0
}
