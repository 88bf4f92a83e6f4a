package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/storage/postgres"
	"github.com/absmach/fedcoord/pkg/storage/testutil"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *postgres.Database

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not connect to docker: %s", err)
	}

	container, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16.2-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=test",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start container: %s", err)
	}

	port := container.GetPort("5432/tcp")

	pool.MaxWait = 120 * time.Second
	if err := pool.Retry(func() error {
		url := fmt.Sprintf("host=localhost port=%s user=test dbname=test password=test sslmode=disable", port)
		db, err := sql.Open("pgx", url)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Ping()
	}); err != nil {
		log.Fatalf("Could not connect to docker: %s", err)
	}

	testDB, err = postgres.NewDatabase("localhost", port, "test", "test", "test", "disable")
	if err != nil {
		log.Fatalf("Could not setup test DB connection: %s", err)
	}

	code := m.Run()

	testDB.Close()
	if err := pool.Purge(container); err != nil {
		log.Fatalf("Could not purge container: %s", err)
	}

	os.Exit(code)
}

func truncate(t *testing.T) {
	t.Helper()

	_, err := testDB.ExecContext(context.Background(), `TRUNCATE TABLE rounds, models`)
	require.NoError(t, err)
}

func TestPostgresRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) testutil.Repository {
		truncate(t)

		return postgres.NewRepository(testDB)
	})
}

func TestPostgresCommitRollsBack(t *testing.T) {
	truncate(t)
	repo := postgres.NewRepository(testDB)
	ctx := context.Background()

	require.NoError(t, repo.SaveModel(ctx, testutil.TestModel(0)))

	rec := testutil.TestRound(1, 1, fl.RoundCompleted)
	rec.ID = "this-identifier-is-longer-than-thirty-six-characters"
	err := repo.Commit(ctx, testutil.TestModel(1), rec)
	require.ErrorIs(t, err, postgres.ErrCreate)

	latest, err := repo.LatestModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), latest.Version)
}
