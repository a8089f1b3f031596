package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/memberhub/admission/internal/model"
)

// EventTx is the handle an admission transaction works through. All reads
// and writes go against the same transaction snapshot; the event row stays
// locked until the surrounding InEventTx call commits or rolls back.
type EventTx interface {
	// Event returns the locked event, pools included.
	Event() *model.Event
	// ActiveRegistration returns the user's non-cancelled registration for
	// the event, or ErrRegistrationNotFound.
	ActiveRegistration(ctx context.Context, userID string) (*model.Registration, error)
	// CountRegistered counts rows holding a seat.
	CountRegistered(ctx context.Context) (int, error)
	// RegistrationsByStatus lists the event's registrations with the given
	// status, ordered by arrival time ascending.
	RegistrationsByStatus(ctx context.Context, status model.RegistrationStatus) ([]model.Registration, error)
	// Insert persists a new registration row.
	Insert(ctx context.Context, reg *model.Registration) error
	// SetStatus updates one registration's status and waitlist position.
	SetStatus(ctx context.Context, regID string, status model.RegistrationStatus, position *int) error
	// UpdatePositions rewrites waitlist positions for the given rows.
	UpdatePositions(ctx context.Context, ranked []model.Registration) error
}

// Store owns the event-scoped transactional unit of work.
type Store struct {
	db *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// InEventTx runs fn inside a transaction holding an exclusive row-level
// lock on the event.
//
// The SELECT ... FOR UPDATE on the event row is what makes concurrent
// admission safe: two Register calls for the same event serialise on the
// lock, so they can never both observe "one seat left" and both take it.
// Locking is per event; operations on different events proceed in parallel.
//
// fn returning nil commits; any error rolls back. Lock waits are bounded by
// the server's lock_timeout and surface as a transient error (IsTransient).
func (s *Store) InEventTx(ctx context.Context, eventID string, fn func(ctx context.Context, tx EventTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var e model.Event
	err = tx.QueryRow(ctx,
		`SELECT id, name, capacity, allow_waitlist, only_allow_prioritized, enforces_previous_strikes, created_at
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&e.ID, &e.Name, &e.Capacity, &e.AllowWaitlist,
		&e.OnlyAllowPrioritized, &e.EnforcesPreviousStrikes, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrEventNotFound
			return err
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	e.Pools, err = loadPools(ctx, tx, eventID)
	if err != nil {
		return err
	}

	if err = fn(ctx, &eventTx{tx: tx, event: &e}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Registrations returns all of an event's registrations, arrival order.
func (s *Store) Registrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_id, user_id, status, waitlist_position, attended_at, created_at, updated_at
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return scanRegistrations(rows)
}

// Waitlist returns an event's waitlisted registrations in position order.
func (s *Store) Waitlist(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_id, user_id, status, waitlist_position, attended_at, created_at, updated_at
		 FROM registrations
		 WHERE event_id = $1 AND status = $2
		 ORDER BY waitlist_position ASC`,
		eventID, model.StatusWaitlisted,
	)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return scanRegistrations(rows)
}

// eventTx implements EventTx over an open pgx transaction.
type eventTx struct {
	tx    pgx.Tx
	event *model.Event
}

func (t *eventTx) Event() *model.Event {
	return t.event
}

func (t *eventTx) ActiveRegistration(ctx context.Context, userID string) (*model.Registration, error) {
	var reg model.Registration
	err := t.tx.QueryRow(ctx,
		`SELECT id, event_id, user_id, status, waitlist_position, attended_at, created_at, updated_at
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status <> $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		t.event.ID, userID, model.StatusCancelled,
	).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status,
		&reg.WaitlistPosition, &reg.AttendedAt, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get active registration: %w", err)
	}
	return &reg, nil
}

func (t *eventTx) CountRegistered(ctx context.Context) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2`,
		t.event.ID, model.StatusRegistered,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count registered: %w", err)
	}
	return count, nil
}

func (t *eventTx) RegistrationsByStatus(ctx context.Context, status model.RegistrationStatus) ([]model.Registration, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, event_id, user_id, status, waitlist_position, attended_at, created_at, updated_at
		 FROM registrations
		 WHERE event_id = $1 AND status = $2
		 ORDER BY created_at ASC`,
		t.event.ID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by status: %w", err)
	}
	return scanRegistrations(rows)
}

func (t *eventTx) Insert(ctx context.Context, reg *model.Registration) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registrations (id, event_id, user_id, status, waitlist_position, attended_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status,
		reg.WaitlistPosition, reg.AttendedAt, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (t *eventTx) SetStatus(ctx context.Context, regID string, status model.RegistrationStatus, position *int) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE registrations SET status = $2, waitlist_position = $3, updated_at = $4 WHERE id = $1`,
		regID, status, position, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	return nil
}

func (t *eventTx) UpdatePositions(ctx context.Context, ranked []model.Registration) error {
	now := time.Now().UTC()
	for _, reg := range ranked {
		_, err := t.tx.Exec(ctx,
			`UPDATE registrations SET waitlist_position = $2, updated_at = $3 WHERE id = $1`,
			reg.ID, reg.WaitlistPosition, now,
		)
		if err != nil {
			return fmt.Errorf("update waitlist position: %w", err)
		}
	}
	return nil
}

func scanRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status,
			&reg.WaitlistPosition, &reg.AttendedAt, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}
