package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rsvpColumns = `id, event_id, name, email, message, created_at`

type RSVPRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *RSVPRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// Create inserts the RSVP. Duplicate (event, email) pairs are rejected by the
// rsvps_event_email_key constraint, which is the only uniqueness check.
func (r *RSVPRepository) Create(ctx context.Context, params rsvps.CreateParams) (rsvp *rsvps.RSVP, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_rsvp", start, err) }()

	row := r.queryer().QueryRow(ctx, `
INSERT INTO rsvps (id, event_id, name, email, message)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+rsvpColumns,
		params.ID, params.EventID, params.Name, params.Email, nullIfEmpty(params.Message),
	)
	rsvp, err = scanRSVP(row)
	if err != nil {
		switch {
		case isUniqueViolation(err, "rsvps_event_email_key"):
			return nil, rsvps.ErrConflict
		case isForeignKeyViolation(err, "rsvps_event_id_fkey"):
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("create rsvp: %w", err)
	}
	return rsvp, nil
}

// ListByEvent returns the RSVPs of an event, newest first.
func (r *RSVPRepository) ListByEvent(ctx context.Context, eventID string) (list []rsvps.RSVP, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_rsvps", start, err) }()

	rows, err := r.queryer().Query(ctx, `
SELECT `+rsvpColumns+`
  FROM rsvps
 WHERE event_id = $1
 ORDER BY created_at DESC, id DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list rsvps: %w", err)
	}
	defer rows.Close()

	list = []rsvps.RSVP{}
	for rows.Next() {
		rsvp, err := scanRSVP(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rsvp: %w", err)
		}
		list = append(list, *rsvp)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list rsvps: %w", err)
	}
	return list, nil
}

func scanRSVP(row pgx.Row) (*rsvps.RSVP, error) {
	var rsvp rsvps.RSVP
	if err := row.Scan(&rsvp.ID, &rsvp.EventID, &rsvp.Name, &rsvp.Email, &rsvp.Message, &rsvp.CreatedAt); err != nil {
		return nil, err
	}
	return &rsvp, nil
}
