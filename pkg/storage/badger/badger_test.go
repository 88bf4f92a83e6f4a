package badger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/storage/badger"
	"github.com/absmach/fedcoord/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDatabase(t *testing.T, path string) *badger.Database {
	t.Helper()

	db, err := badger.NewDatabase(path)
	require.NoError(t, err)

	return db
}

func TestBadgerRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) testutil.Repository {
		db := newDatabase(t, t.TempDir())
		t.Cleanup(func() { db.Close() })

		return badger.NewRepository(db)
	})
}

func TestBadgerLatestModelOrdersNumerically(t *testing.T) {
	db := newDatabase(t, t.TempDir())
	defer db.Close()
	repo := badger.NewRepository(db)
	ctx := context.Background()

	for _, v := range []uint64{2, 10, 9} {
		require.NoError(t, repo.SaveModel(ctx, testutil.TestModel(v)))
	}

	latest, err := repo.LatestModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), latest.Version)
}

func TestBadgerReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	ctx := context.Background()

	db := newDatabase(t, path)
	repo := badger.NewRepository(db)
	rec := testutil.TestRound(1, 1, fl.RoundCompleted)
	require.NoError(t, repo.SaveModel(ctx, testutil.TestModel(0)))
	require.NoError(t, repo.Commit(ctx, testutil.TestModel(1), rec))
	require.NoError(t, repo.Close())

	db = newDatabase(t, path)
	defer db.Close()
	repo = badger.NewRepository(db)

	latest, err := repo.LatestModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), latest.Version)

	got, err := repo.GetRound(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Contributors, got.Contributors)
}
