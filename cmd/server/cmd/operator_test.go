package cmd

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", postgres.DefaultMigrationsPath)
}

func TestUsersSetRole_RejectsInputBeforeConnecting(t *testing.T) {
	setTestEnv(t)

	_, err := executeCommand(t, "users", "set-role", "--email", "a@x.com", "--role", "superuser")
	require.ErrorContains(t, err, `unknown role "superuser"`)

	_, err = executeCommand(t, "users", "set-role", "--role", "ADMIN")
	require.ErrorContains(t, err, "email")
}

func TestMigrateDown_RequiresPositiveSteps(t *testing.T) {
	setTestEnv(t)

	_, err := executeCommand(t, "migrate", "down", "--steps", "0")
	require.ErrorContains(t, err, "--steps must be at least 1")
}

func TestRSVPsExport_RequiresEvent(t *testing.T) {
	setTestEnv(t)

	_, err := executeCommand(t, "rsvps", "export")
	require.ErrorContains(t, err, "event")
}

func TestOperatorCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rsvp"),
		tcpostgres.WithUsername("rsvp"),
		tcpostgres.WithPassword("rsvp_dev"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})
	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	setTestEnv(t)
	t.Setenv("DATABASE_URL", dbURL)
	t.Setenv("DATABASE_MIGRATIONS_PATH", migrationsDir(t))

	output, err := executeCommand(t, "migrate", "up")
	require.NoError(t, err)
	require.Contains(t, output, "migrations applied")

	output, err = executeCommand(t, "migrate", "version")
	require.NoError(t, err)
	require.Contains(t, output, "version: 1 dirty: false")

	repo, pool, err := openRepository(ctx, config.DatabaseConfig{URL: dbURL})
	require.NoError(t, err)
	defer pool.Close()

	owner, err := repo.Users().Upsert(ctx, users.UpsertParams{
		ID:          "auth|owner",
		Email:       "owner@example.com",
		Name:        "Olive Owner",
		InitialRole: auth.RoleEventOwner,
	})
	require.NoError(t, err)

	t.Run("set role", func(t *testing.T) {
		_, err := executeCommand(t, "users", "set-role", "--email", "nobody@example.com", "--role", "ADMIN")
		require.ErrorContains(t, err, "no user registered")

		output, err := executeCommand(t, "users", "set-role", "--email", " Owner@Example.com ", "--role", "staff")
		require.NoError(t, err)
		require.Contains(t, output, "is now STAFF")

		updated, err := repo.Users().GetByEmail(ctx, owner.Email)
		require.NoError(t, err)
		require.Equal(t, auth.RoleStaff, updated.Role)
	})

	t.Run("export rsvps", func(t *testing.T) {
		logger := zerolog.Nop()
		eventService := events.NewService(repo.Events(), audit.Nop(), logger)
		rsvpService := rsvps.NewService(repo.RSVPs(), eventService, audit.Nop(), logger)

		event, err := eventService.Create(ctx, access.Actor{UserID: owner.ID, Role: auth.RoleEventOwner}, events.CreateInput{
			Title:    "Launch Party",
			DateTime: "2030-06-01T18:00:00Z",
		})
		require.NoError(t, err)
		message := "See you, everyone"
		_, err = rsvpService.Create(ctx, event.ID, rsvps.CreateInput{Name: "Ann", Email: "ann@example.com", Message: &message})
		require.NoError(t, err)
		_, err = rsvpService.Create(ctx, event.ID, rsvps.CreateInput{Name: "Bob", Email: "bob@example.com"})
		require.NoError(t, err)

		output, err := executeCommand(t, "rsvps", "export", "--event", event.ID)
		require.NoError(t, err)
		require.Contains(t, output, "Name,Email,Message,RSVP Date")
		require.Less(t, strings.Index(output, "Bob,bob@example.com"), strings.Index(output, "Ann,ann@example.com"))
		require.Contains(t, output, `"See you, everyone"`)

		path := filepath.Join(t.TempDir(), "guests.csv")
		output, err = executeCommand(t, "rsvps", "export", "--event", event.ID, "-o", path)
		require.NoError(t, err)
		require.Contains(t, output, `wrote 2 RSVP(s) for "Launch Party"`)
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, 3, strings.Count(string(content), "\n"))

		_, err = executeCommand(t, "rsvps", "export", "--event", "01HYX3KQW7ERTV9XNBM2P8QJZG")
		require.ErrorContains(t, err, "not found")
	})

	t.Run("migrate down", func(t *testing.T) {
		pool.Close()

		_, err := executeCommand(t, "migrate", "down", "--steps", "1")
		require.NoError(t, err)

		output, err := executeCommand(t, "migrate", "version")
		require.NoError(t, err)
		require.Contains(t, output, "version: 0 dirty: false")
	})
}
