package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, name, role, created_at, updated_at`

// UserRepository stores the local mirror of externally authenticated users.
type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *UserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// Upsert inserts the user on first sign-in and refreshes email and name
// afterwards. The role of an existing user is never touched here.
func (r *UserRepository) Upsert(ctx context.Context, params users.UpsertParams) (user *users.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("upsert_user", start, err) }()

	role := params.InitialRole
	if role == "" {
		role = users.DefaultRole
	}

	row := r.queryer().QueryRow(ctx, `
INSERT INTO users (id, email, name, role)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
   SET email = EXCLUDED.email,
       name = EXCLUDED.name,
       updated_at = CASE
           WHEN users.email IS DISTINCT FROM EXCLUDED.email OR users.name IS DISTINCT FROM EXCLUDED.name THEN now()
           ELSE users.updated_at
       END
RETURNING `+userColumns, params.ID, params.Email, params.Name, string(role))

	user, err = scanUser(row)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (user *users.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_user_by_email", start, err) }()

	user, err = scanUser(r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role auth.Role) (user *users.User, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("update_user_role", start, err) }()

	row := r.queryer().QueryRow(ctx, `
UPDATE users
   SET role = $2,
       updated_at = now()
 WHERE id = $1
RETURNING `+userColumns, id, string(role))

	user, err = scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("update user role: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var (
		user users.User
		role string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Role = auth.NormalizeRole(role)
	return &user, nil
}
