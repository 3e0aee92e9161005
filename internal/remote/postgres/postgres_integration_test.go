package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	rerrors "github.com/readbori/pulse-diary/internal/errors"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/remote/remotetest"
)

// startPostgres returns a DSN for a throwaway database. PULSE_TEST_POSTGRES_DSN
// points the test at an existing server instead of a container.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	if dsn := os.Getenv("PULSE_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pulse",
			"POSTGRES_PASSWORD": "pulse",
			"POSTGRES_DB":       "pulse",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://pulse:pulse@%s:%s/pulse?sslmode=disable", host, port.Port())
}

func TestPostgresStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(ctx, db))
	require.NoError(t, EnsureSchema(ctx, db))

	remotetest.Run(t, func(t *testing.T) remote.Store { return New(db) })

	t.Run("missing singleton", func(t *testing.T) {
		_, err := New(db).Profiles().Get(ctx, "nobody")
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	err := classify("op", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	assert.True(t, rerrors.IsIrrecoverable(err))

	err = classify("op", &pgconn.PgError{Code: "57P01", Message: "admin shutdown"})
	assert.False(t, rerrors.IsIrrecoverable(err))

	err = classify("op", errors.New("connection refused"))
	assert.False(t, rerrors.IsIrrecoverable(err))
}
