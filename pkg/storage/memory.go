package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
)

type inMemoryRepository struct {
	sync.Mutex

	models map[uint64]fl.GlobalModel
	latest *uint64
	rounds map[string]fl.RoundRecord
}

func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		models: make(map[uint64]fl.GlobalModel),
		rounds: make(map[string]fl.RoundRecord),
	}
}

func (r *inMemoryRepository) SaveModel(_ context.Context, m fl.GlobalModel) error {
	r.Lock()
	defer r.Unlock()

	r.saveModel(m)

	return nil
}

func (r *inMemoryRepository) saveModel(m fl.GlobalModel) {
	r.models[m.Version] = m.Clone()
	if r.latest == nil || m.Version >= *r.latest {
		v := m.Version
		r.latest = &v
	}
}

func (r *inMemoryRepository) LatestModel(_ context.Context) (fl.GlobalModel, error) {
	r.Lock()
	defer r.Unlock()

	if r.latest == nil {
		return fl.GlobalModel{}, fmt.Errorf("model %w", errors.ErrNotFound)
	}

	return r.models[*r.latest].Clone(), nil
}

func (r *inMemoryRepository) GetModel(_ context.Context, version uint64) (fl.GlobalModel, error) {
	r.Lock()
	defer r.Unlock()

	m, ok := r.models[version]
	if !ok {
		return fl.GlobalModel{}, fmt.Errorf("model v%d %w", version, errors.ErrNotFound)
	}

	return m.Clone(), nil
}

func (r *inMemoryRepository) SaveRound(_ context.Context, rec fl.RoundRecord) error {
	if rec.ID == "" {
		return errors.ErrEmptyKey
	}

	r.Lock()
	defer r.Unlock()

	r.rounds[rec.ID] = rec.Clone()

	return nil
}

func (r *inMemoryRepository) GetRound(_ context.Context, id string) (fl.RoundRecord, error) {
	if id == "" {
		return fl.RoundRecord{}, errors.ErrEmptyKey
	}

	r.Lock()
	defer r.Unlock()

	rec, ok := r.rounds[id]
	if !ok {
		return fl.RoundRecord{}, fmt.Errorf("round %s %w", id, errors.ErrNotFound)
	}

	return rec.Clone(), nil
}

func (r *inMemoryRepository) ListRounds(_ context.Context, offset, limit uint64) (fl.RoundPage, error) {
	r.Lock()
	defer r.Unlock()

	all := make([]fl.RoundRecord, 0, len(r.rounds))
	for _, rec := range r.rounds {
		all = append(all, rec)
	}
	slices.SortFunc(all, func(a, b fl.RoundRecord) int {
		return cmp.Or(cmp.Compare(a.Number, b.Number), cmp.Compare(a.Attempt, b.Attempt))
	})

	page := fl.RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  uint64(len(all)),
		Rounds: []fl.RoundRecord{},
	}
	if offset >= page.Total {
		return page, nil
	}

	end := min(offset+limit, page.Total)
	for _, rec := range all[offset:end] {
		page.Rounds = append(page.Rounds, rec.Clone())
	}

	return page, nil
}

func (r *inMemoryRepository) Commit(_ context.Context, m fl.GlobalModel, rec fl.RoundRecord) error {
	if rec.ID == "" {
		return errors.ErrEmptyKey
	}

	r.Lock()
	defer r.Unlock()

	r.saveModel(m)
	r.rounds[rec.ID] = rec.Clone()

	return nil
}

func (r *inMemoryRepository) Close() error {
	return nil
}
