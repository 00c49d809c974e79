package postgres

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements storage.Repository interface with PostgreSQL backend
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	users  *UserRepository
	events *EventRepository
	rsvps  *RSVPRepository
}

// NewRepository creates a new PostgreSQL-backed repository
func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}

	return &Repository{
		pool:   pool,
		users:  &UserRepository{pool: pool},
		events: &EventRepository{pool: pool},
		rsvps:  &RSVPRepository{pool: pool},
	}, nil
}

func (r *Repository) Users() users.Repository {
	if r.tx != nil {
		return &UserRepository{pool: r.pool, tx: r.tx}
	}
	return r.users
}

func (r *Repository) Events() events.Repository {
	if r.tx != nil {
		return &EventRepository{pool: r.pool, tx: r.tx}
	}
	return r.events
}

func (r *Repository) RSVPs() rsvps.Repository {
	if r.tx != nil {
		return &RSVPRepository{pool: r.pool, tx: r.tx}
	}
	return r.rsvps
}

// Ping checks database connectivity; used by the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx executes a function within a database transaction
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &Repository{
		pool:   r.pool,
		tx:     tx,
		users:  &UserRepository{pool: r.pool, tx: tx},
		events: &EventRepository{pool: r.pool, tx: tx},
		rsvps:  &RSVPRepository{pool: r.pool, tx: tx},
	}

	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// txCommitter adapts pgx.Tx to the domain TxCommitter interfaces.
type txCommitter struct {
	tx pgx.Tx
}

func (c *txCommitter) Commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

func (c *txCommitter) Rollback(ctx context.Context) error {
	return c.tx.Rollback(ctx)
}
