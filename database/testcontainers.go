package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestImageEnv overrides the Postgres image used by SetupTestDB
const TestImageEnv = "SUPERNOVA_TEST_POSTGRES_IMAGE"

const defaultTestImage = "postgres:16-alpine"

type quietLogger struct{}

func (quietLogger) Printf(string, ...any) {}

// SetupTestDB starts a throwaway Postgres, migrates it to the latest schema and
// returns a pool on it with its connection string. Both are released when t ends.
func SetupTestDB(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	image := os.Getenv(TestImageEnv)
	if image == "" {
		image = defaultTestImage
	}

	started := time.Now()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("supernova"),
		postgres.WithUsername("supernova_test"),
		postgres.WithPassword("supernova_test"),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(quietLogger{}),
	)
	tc.CleanupContainer(t, container)
	require.NoError(t, err)
	t.Logf("postgres %s ready in %s", image, time.Since(started).Round(time.Millisecond))

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, MigrateUp(connString))

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool, connString
}
