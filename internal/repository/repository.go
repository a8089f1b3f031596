// Package repository implements all database access for the admission
// system. It uses pgx directly (no ORM); every state-changing admission
// operation runs through Store.InEventTx, which serialises work per event
// with a row-level lock.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/memberhub/admission/internal/model"
)

// ErrEventNotFound is returned when the requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrRegistrationNotFound is returned when no active registration exists
// for the requested (event, user) pair.
var ErrRegistrationNotFound = errors.New("registration not found")

// IsTransient reports whether err is a retryable storage failure:
// a serialization failure, deadlock, or lock-wait timeout. The whole
// event transaction is safe to retry because every input is re-read
// fresh on the next attempt.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

// EventRepository handles persistence for events and their priority pools.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event with its priority pools.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	event := &model.Event{
		ID:                      uuid.New().String(),
		Name:                    req.Name,
		Capacity:                req.Capacity,
		AllowWaitlist:           req.AllowWaitlist,
		OnlyAllowPrioritized:    req.OnlyAllowPrioritized,
		EnforcesPreviousStrikes: req.EnforcesPreviousStrikes,
		CreatedAt:               time.Now().UTC(),
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, name, capacity, allow_waitlist, only_allow_prioritized, enforces_previous_strikes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Name, event.Capacity, event.AllowWaitlist,
		event.OnlyAllowPrioritized, event.EnforcesPreviousStrikes, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	for _, groupIDs := range req.Pools {
		pool := model.PriorityPool{
			ID:       uuid.New().String(),
			EventID:  event.ID,
			GroupIDs: groupIDs,
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO priority_pools (id, event_id, group_ids) VALUES ($1, $2, $3)`,
			pool.ID, pool.EventID, pool.GroupIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("insert priority pool: %w", err)
		}
		event.Pools = append(event.Pools, pool)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return event, nil
}

// List returns all events ordered by creation time descending, without pools.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, capacity, allow_waitlist, only_allow_prioritized, enforces_previous_strikes, created_at
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Capacity, &e.AllowWaitlist,
			&e.OnlyAllowPrioritized, &e.EnforcesPreviousStrikes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetByID returns a single event with its pools, or ErrEventNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, name, capacity, allow_waitlist, only_allow_prioritized, enforces_previous_strikes, created_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.Capacity, &e.AllowWaitlist,
		&e.OnlyAllowPrioritized, &e.EnforcesPreviousStrikes, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	pools, err := loadPools(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	e.Pools = pools
	return &e, nil
}

// querier is the subset of pgx shared by the pool and open transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadPools(ctx context.Context, q querier, eventID string) ([]model.PriorityPool, error) {
	rows, err := q.Query(ctx,
		`SELECT id, event_id, group_ids FROM priority_pools WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("load priority pools: %w", err)
	}
	defer rows.Close()

	var pools []model.PriorityPool
	for rows.Next() {
		var p model.PriorityPool
		if err := rows.Scan(&p.ID, &p.EventID, &p.GroupIDs); err != nil {
			return nil, fmt.Errorf("scan priority pool: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}
