package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Repository interface {
	SaveModel(ctx context.Context, m fl.GlobalModel) error
	LatestModel(ctx context.Context) (fl.GlobalModel, error)
	GetModel(ctx context.Context, version uint64) (fl.GlobalModel, error)
	SaveRound(ctx context.Context, r fl.RoundRecord) error
	GetRound(ctx context.Context, id string) (fl.RoundRecord, error)
	ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error)
	Commit(ctx context.Context, m fl.GlobalModel, r fl.RoundRecord) error
}

func TestModel(version uint64) fl.GlobalModel {
	v := float32(version)

	return fl.GlobalModel{
		Version: version,
		Params: fl.Params{
			"dense": {v, v + 0.5, -v},
			"bias":  {v * 0.25},
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestRound(number uint64, attempt uint32, status fl.RoundStatus) fl.RoundRecord {
	started := time.Now().UTC().Truncate(time.Millisecond)

	return fl.RoundRecord{
		ID:           uuid.NewString(),
		Number:       number,
		Attempt:      attempt,
		Status:       status,
		Selected:     []string{"client-a", "client-b", "client-c"},
		Contributors: []string{"client-a", "client-b"},
		Contributions: []fl.Contribution{
			{ClientID: "client-a", Samples: 10, Loss: 0.5, Accuracy: 0.7},
			{ClientID: "client-b", Samples: 30, Loss: 0.3, Accuracy: 0.9},
		},
		Rejections: []fl.Rejection{
			{ClientID: "client-c", Reason: fl.ReasonLayerLength, Detail: "layer dense: want 3 values, got 2", At: started},
		},
		Required:     2,
		StartedAt:    started,
		Deadline:     started.Add(time.Minute),
		FinishedAt:   started.Add(30 * time.Second),
		Loss:         0.35,
		Accuracy:     0.85,
		TotalSamples: 40,
	}
}

// RunRepositoryTests exercises the behaviour every backend must share.
// newRepo must return an empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Helper()

	t.Run("latest model on empty repository", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.LatestModel(context.Background())
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("save and get models", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for v := range uint64(3) {
			require.NoError(t, repo.SaveModel(ctx, TestModel(v)))
		}

		cases := []struct {
			desc    string
			version uint64
			err     error
		}{
			{desc: "first version", version: 0},
			{desc: "last version", version: 2},
			{desc: "missing version", version: 7, err: errors.ErrNotFound},
		}
		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				got, err := repo.GetModel(ctx, tc.version)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)

					return
				}
				require.NoError(t, err)
				want := TestModel(tc.version)
				assert.Equal(t, want.Version, got.Version)
				assert.Equal(t, want.Params, got.Params)
			})
		}

		latest, err := repo.LatestModel(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), latest.Version)
	})

	t.Run("save round replaces by id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		rec := TestRound(1, 1, fl.RoundCollecting)
		require.NoError(t, repo.SaveRound(ctx, rec))

		rec.Status = fl.RoundFailed
		rec.FailureReason = "insufficient participation"
		require.NoError(t, repo.SaveRound(ctx, rec))

		got, err := repo.GetRound(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, fl.RoundFailed, got.Status)
		assert.Equal(t, rec.FailureReason, got.FailureReason)
		assert.Equal(t, rec.Contributions, got.Contributions)
		assert.Equal(t, rec.Rejections[0].Reason, got.Rejections[0].Reason)
		assert.True(t, rec.Deadline.Equal(got.Deadline))

		page, err := repo.ListRounds(ctx, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), page.Total)
	})

	t.Run("get missing round", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetRound(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("list rounds in order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		records := []fl.RoundRecord{
			TestRound(2, 1, fl.RoundCompleted),
			TestRound(1, 2, fl.RoundCompleted),
			TestRound(3, 1, fl.RoundCollecting),
			TestRound(1, 1, fl.RoundFailed),
		}
		for _, rec := range records {
			require.NoError(t, repo.SaveRound(ctx, rec))
		}

		cases := []struct {
			desc   string
			offset uint64
			limit  uint64
			want   []string
		}{
			{desc: "all rounds", offset: 0, limit: 10, want: []string{"1.1", "1.2", "2.1", "3.1"}},
			{desc: "middle page", offset: 1, limit: 2, want: []string{"1.2", "2.1"}},
			{desc: "offset past end", offset: 9, limit: 2, want: []string{}},
		}
		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				page, err := repo.ListRounds(ctx, tc.offset, tc.limit)
				require.NoError(t, err)
				assert.Equal(t, uint64(len(records)), page.Total)

				got := make([]string, 0, len(page.Rounds))
				for _, rec := range page.Rounds {
					got = append(got, fmt.Sprintf("%d.%d", rec.Number, rec.Attempt))
				}
				assert.Equal(t, tc.want, got)
			})
		}
	})

	t.Run("commit stores model and round", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.SaveModel(ctx, TestModel(0)))
		rec := TestRound(1, 1, fl.RoundCompleted)
		require.NoError(t, repo.Commit(ctx, TestModel(1), rec))

		latest, err := repo.LatestModel(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), latest.Version)

		got, err := repo.GetRound(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, fl.RoundCompleted, got.Status)
		assert.Equal(t, rec.Contributors, got.Contributors)
		assert.InDelta(t, rec.Loss, got.Loss, 1e-12)
	})
}
