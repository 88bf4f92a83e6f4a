package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	badgerdb "github.com/dgraph-io/badger/v4"
)

const (
	modelPrefix      = "model:"
	roundPrefix      = "round:"
	roundIndexPrefix = "round_idx:"
)

type Repository struct {
	db *Database
}

func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// Versions are zero padded so that key order equals version order.
func modelKey(version uint64) []byte {
	return fmt.Appendf(nil, "%s%020d", modelPrefix, version)
}

func roundKey(id string) []byte {
	return []byte(roundPrefix + id)
}

func roundIndexKey(rec fl.RoundRecord) []byte {
	return fmt.Appendf(nil, "%s%020d:%010d:%s", roundIndexPrefix, rec.Number, rec.Attempt, rec.ID)
}

func (r *Repository) SaveModel(_ context.Context, m fl.GlobalModel) error {
	return r.db.update(func(txn *badgerdb.Txn) error {
		return setModel(txn, m)
	})
}

func (r *Repository) LatestModel(_ context.Context) (fl.GlobalModel, error) {
	val, err := r.db.last([]byte(modelPrefix))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return fl.GlobalModel{}, fmt.Errorf("model %w", pkgerrors.ErrNotFound)
		}

		return fl.GlobalModel{}, err
	}

	return decodeModel(val)
}

func (r *Repository) GetModel(_ context.Context, version uint64) (fl.GlobalModel, error) {
	val, err := r.db.get(modelKey(version))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return fl.GlobalModel{}, fmt.Errorf("model v%d %w", version, pkgerrors.ErrNotFound)
		}

		return fl.GlobalModel{}, err
	}

	return decodeModel(val)
}

func (r *Repository) SaveRound(_ context.Context, rec fl.RoundRecord) error {
	if rec.ID == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.db.update(func(txn *badgerdb.Txn) error {
		return setRound(txn, rec)
	})
}

func (r *Repository) GetRound(_ context.Context, id string) (fl.RoundRecord, error) {
	val, err := r.db.get(roundKey(id))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return fl.RoundRecord{}, fmt.Errorf("round %s %w", id, pkgerrors.ErrNotFound)
		}

		return fl.RoundRecord{}, err
	}

	var rec fl.RoundRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return fl.RoundRecord{}, fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	return rec, nil
}

func (r *Repository) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	ids, total, err := r.db.listWithPrefix([]byte(roundIndexPrefix), offset, limit)
	if err != nil {
		return fl.RoundPage{}, err
	}

	page := fl.RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Rounds: make([]fl.RoundRecord, 0, len(ids)),
	}
	for _, id := range ids {
		rec, err := r.GetRound(ctx, string(id))
		if err != nil {
			return fl.RoundPage{}, err
		}
		page.Rounds = append(page.Rounds, rec)
	}

	return page, nil
}

func (r *Repository) Commit(_ context.Context, m fl.GlobalModel, rec fl.RoundRecord) error {
	if rec.ID == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.db.update(func(txn *badgerdb.Txn) error {
		if err := setModel(txn, m); err != nil {
			return err
		}

		return setRound(txn, rec)
	})
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func setModel(txn *badgerdb.Txn, m fl.GlobalModel) error {
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	return txn.Set(modelKey(m.Version), val)
}

func setRound(txn *badgerdb.Txn, rec fl.RoundRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshal, err)
	}
	if err := txn.Set(roundKey(rec.ID), val); err != nil {
		return err
	}

	return txn.Set(roundIndexKey(rec), []byte(rec.ID))
}

func decodeModel(val []byte) (fl.GlobalModel, error) {
	var m fl.GlobalModel
	if err := json.Unmarshal(val, &m); err != nil {
		return fl.GlobalModel{}, fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	return m, nil
}
