package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/storage/sqlite"
	"github.com/absmach/fedcoord/pkg/storage/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDatabase(t *testing.T) *sqlite.Database {
	t.Helper()

	db, err := sqlite.NewDatabase(filepath.Join(t.TempDir(), "test_"+uuid.NewString()+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestSQLiteRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) testutil.Repository {
		return sqlite.NewRepository(newDatabase(t))
	})
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	db := newDatabase(t)

	assert.NoError(t, db.Migrate())
	assert.NoError(t, db.Migrate())
}

func TestSQLiteCommitRollsBack(t *testing.T) {
	db := newDatabase(t)
	repo := sqlite.NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SaveModel(ctx, testutil.TestModel(0)))

	_, err := db.ExecContext(ctx, `DROP TABLE rounds`)
	require.NoError(t, err)

	err = repo.Commit(ctx, testutil.TestModel(1), testutil.TestRound(1, 1, fl.RoundCompleted))
	require.ErrorIs(t, err, sqlite.ErrCreate)

	latest, err := repo.LatestModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), latest.Version, "model write must roll back with the failed round write")
}
