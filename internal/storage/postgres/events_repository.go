package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// eventSelect joins the creator and counts RSVPs on read, so the count can
// never drift from the rsvps table.
const eventSelect = `
SELECT e.id, e.title, e.description, e.location, e.date_time, e.public_url,
       e.is_active, e.created_by, u.name, u.email,
       (SELECT COUNT(*) FROM rsvps r WHERE r.event_id = e.id) AS rsvp_count,
       e.created_at, e.updated_at
  FROM events e
  JOIN users u ON u.id = e.created_by`

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *EventRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (event *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("insert_event", start, err) }()

	q := r.queryer()
	_, err = q.Exec(ctx, `
INSERT INTO events (id, title, description, location, date_time, public_url, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		params.ID, params.Title, nullIfEmpty(params.Description), nullIfEmpty(params.Location),
		params.DateTime.UTC(), params.PublicURL, params.CreatedBy,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "events_public_url_key"):
			return nil, events.ErrPublicURLTaken
		case isForeignKeyViolation(err, ""):
			return nil, fmt.Errorf("create event: unknown creator %q: %w", params.CreatedBy, err)
		}
		return nil, fmt.Errorf("create event: %w", err)
	}

	event, err = scanEvent(q.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, params.ID))
	if err != nil {
		return nil, fmt.Errorf("load created event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (event *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_event", start, err) }()

	event, err = scanEvent(r.queryer().QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) GetByPublicURL(ctx context.Context, publicURL string) (event *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_event_by_public_url", start, err) }()

	event, err = scanEvent(r.queryer().QueryRow(ctx, eventSelect+` WHERE e.public_url = $1`, publicURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event by public url: %w", err)
	}
	return event, nil
}

func (r *EventRepository) LockOwner(ctx context.Context, id string) (owner string, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("lock_event", start, err) }()

	err = r.queryer().QueryRow(ctx, `SELECT created_by FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", events.ErrNotFound
		}
		return "", fmt.Errorf("lock event: %w", err)
	}
	return owner, nil
}

// Update applies the non-nil fields of params. An empty Description or
// Location is stored as NULL.
func (r *EventRepository) Update(ctx context.Context, id string, params events.UpdateParams) (event *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("update_event", start, err) }()

	var dateTime *time.Time
	if params.DateTime != nil {
		utc := params.DateTime.UTC()
		dateTime = &utc
	}

	q := r.queryer()
	tag, err := q.Exec(ctx, `
UPDATE events
   SET title = COALESCE($2, title),
       description = CASE WHEN $3::text IS NULL THEN description ELSE NULLIF($3::text, '') END,
       location = CASE WHEN $4::text IS NULL THEN location ELSE NULLIF($4::text, '') END,
       date_time = COALESCE($5, date_time),
       updated_at = now()
 WHERE id = $1`,
		id, params.Title, params.Description, params.Location, dateTime,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrNotFound
	}

	event, err = scanEvent(q.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("load updated event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) SetActive(ctx context.Context, id string, active bool) (event *events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("set_event_active", start, err) }()

	q := r.queryer()
	tag, err := q.Exec(ctx, `UPDATE events SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return nil, fmt.Errorf("set event active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrNotFound
	}

	event, err = scanEvent(q.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("load updated event: %w", err)
	}
	return event, nil
}

// Delete removes the event. RSVPs are removed by the ON DELETE CASCADE
// foreign key in the same statement.
func (r *EventRepository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("delete_event", start, err) }()

	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) List(ctx context.Context, filter events.ListFilter) (list []events.Event, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("list_events", start, err) }()

	rows, err := r.queryer().Query(ctx, eventSelect+`
 WHERE ($1::text = '' OR e.created_by = $1::text)
 ORDER BY e.created_at DESC, e.id DESC`, filter.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	list = []events.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, *event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return list, nil
}

// BeginTx starts a transaction, or a savepoint when the repository is
// already bound to one.
func (r *EventRepository) BeginTx(ctx context.Context) (events.Repository, events.TxCommitter, error) {
	var (
		tx  pgx.Tx
		err error
	)
	if r.tx != nil {
		tx, err = r.tx.Begin(ctx)
	} else {
		tx, err = r.pool.Begin(ctx)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &EventRepository{pool: r.pool, tx: tx}, &txCommitter{tx: tx}, nil
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var (
		event     events.Event
		rsvpCount int64
	)
	err := row.Scan(
		&event.ID, &event.Title, &event.Description, &event.Location, &event.DateTime, &event.PublicURL,
		&event.IsActive, &event.CreatedBy, &event.Creator.Name, &event.Creator.Email,
		&rsvpCount,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Creator.ID = event.CreatedBy
	event.RSVPCount = int(rsvpCount)
	event.DateTime = event.DateTime.UTC()
	return &event, nil
}
