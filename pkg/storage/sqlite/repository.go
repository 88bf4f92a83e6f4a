package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *Database
}

func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

type dbModel struct {
	Version   uint64    `db:"version"`
	Params    []byte    `db:"params"`
	UpdatedAt time.Time `db:"updated_at"`
}

type dbRound struct {
	ID                string         `db:"id"`
	Number            uint64         `db:"number"`
	Attempt           uint32         `db:"attempt"`
	Status            uint8          `db:"status"`
	Selected          []byte         `db:"selected"`
	Contributors      []byte         `db:"contributors"`
	Contributions     []byte         `db:"contributions"`
	Rejections        []byte         `db:"rejections"`
	BroadcastFailures []byte         `db:"broadcast_failures"`
	Required          int            `db:"required"`
	StartedAt         sql.NullTime   `db:"started_at"`
	Deadline          sql.NullTime   `db:"deadline"`
	FinishedAt        sql.NullTime   `db:"finished_at"`
	Loss              float64        `db:"loss"`
	Accuracy          float64        `db:"accuracy"`
	TotalSamples      int64          `db:"total_samples"`
	FailureReason     sql.NullString `db:"failure_reason"`
}

const (
	upsertModel = `INSERT INTO models (version, params, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET params = excluded.params, updated_at = excluded.updated_at`

	upsertRound = `INSERT INTO rounds (id, number, attempt, status, selected, contributors, contributions, rejections, broadcast_failures, required, started_at, deadline, finished_at, loss, accuracy, total_samples, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			selected = excluded.selected,
			contributors = excluded.contributors,
			contributions = excluded.contributions,
			rejections = excluded.rejections,
			broadcast_failures = excluded.broadcast_failures,
			required = excluded.required,
			started_at = excluded.started_at,
			deadline = excluded.deadline,
			finished_at = excluded.finished_at,
			loss = excluded.loss,
			accuracy = excluded.accuracy,
			total_samples = excluded.total_samples,
			failure_reason = excluded.failure_reason`

	selectRound = `SELECT id, number, attempt, status, selected, contributors, contributions, rejections, broadcast_failures, required, started_at, deadline, finished_at, loss, accuracy, total_samples, failure_reason FROM rounds`
)

func (r *Repository) SaveModel(ctx context.Context, m fl.GlobalModel) error {
	return saveModel(ctx, r.db, m)
}

func (r *Repository) LatestModel(ctx context.Context) (fl.GlobalModel, error) {
	return r.getModel(ctx, `SELECT version, params, updated_at FROM models ORDER BY version DESC LIMIT 1`)
}

func (r *Repository) GetModel(ctx context.Context, version uint64) (fl.GlobalModel, error) {
	return r.getModel(ctx, `SELECT version, params, updated_at FROM models WHERE version = ?`, version)
}

func (r *Repository) getModel(ctx context.Context, query string, args ...any) (fl.GlobalModel, error) {
	var dbm dbModel
	if err := r.db.GetContext(ctx, &dbm, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.GlobalModel{}, fmt.Errorf("model %w", pkgerrors.ErrNotFound)
		}

		return fl.GlobalModel{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	m := fl.GlobalModel{Version: dbm.Version, UpdatedAt: dbm.UpdatedAt}
	if err := json.Unmarshal(dbm.Params, &m.Params); err != nil {
		return fl.GlobalModel{}, fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	return m, nil
}

func (r *Repository) SaveRound(ctx context.Context, rec fl.RoundRecord) error {
	return saveRound(ctx, r.db, rec)
}

func (r *Repository) GetRound(ctx context.Context, id string) (fl.RoundRecord, error) {
	var dbr dbRound
	if err := r.db.GetContext(ctx, &dbr, selectRound+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.RoundRecord{}, fmt.Errorf("round %s %w", id, pkgerrors.ErrNotFound)
		}

		return fl.RoundRecord{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toRound(dbr)
}

func (r *Repository) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	page := fl.RoundPage{Offset: offset, Limit: limit, Rounds: []fl.RoundRecord{}}

	if err := r.db.GetContext(ctx, &page.Total, `SELECT COUNT(*) FROM rounds`); err != nil {
		return fl.RoundPage{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rows []dbRound
	if err := r.db.SelectContext(ctx, &rows, selectRound+` ORDER BY number ASC, attempt ASC LIMIT ? OFFSET ?`, limit, offset); err != nil {
		return fl.RoundPage{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	for _, row := range rows {
		rec, err := toRound(row)
		if err != nil {
			return fl.RoundPage{}, err
		}
		page.Rounds = append(page.Rounds, rec)
	}

	return page, nil
}

func (r *Repository) Commit(ctx context.Context, m fl.GlobalModel, rec fl.RoundRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBConnection, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := saveModel(ctx, tx, m); err != nil {
		return err
	}
	if err := saveRound(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func saveModel(ctx context.Context, ex sqlx.ExecerContext, m fl.GlobalModel) error {
	params, err := json.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshal, err)
	}

	if _, err := ex.ExecContext(ctx, upsertModel, m.Version, params, m.UpdatedAt); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func saveRound(ctx context.Context, ex sqlx.ExecerContext, rec fl.RoundRecord) error {
	dbr, err := fromRound(rec)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, upsertRound,
		dbr.ID, dbr.Number, dbr.Attempt, dbr.Status,
		dbr.Selected, dbr.Contributors, dbr.Contributions, dbr.Rejections, dbr.BroadcastFailures,
		dbr.Required, dbr.StartedAt, dbr.Deadline, dbr.FinishedAt,
		dbr.Loss, dbr.Accuracy, dbr.TotalSamples, dbr.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func fromRound(rec fl.RoundRecord) (dbRound, error) {
	dbr := dbRound{
		ID:            rec.ID,
		Number:        rec.Number,
		Attempt:       rec.Attempt,
		Status:        uint8(rec.Status),
		Required:      rec.Required,
		StartedAt:     nullTime(rec.StartedAt),
		Deadline:      nullTime(rec.Deadline),
		FinishedAt:    nullTime(rec.FinishedAt),
		Loss:          rec.Loss,
		Accuracy:      rec.Accuracy,
		TotalSamples:  rec.TotalSamples,
		FailureReason: sql.NullString{String: rec.FailureReason, Valid: rec.FailureReason != ""},
	}

	fields := []struct {
		dst *[]byte
		src any
	}{
		{&dbr.Selected, rec.Selected},
		{&dbr.Contributors, rec.Contributors},
		{&dbr.Contributions, rec.Contributions},
		{&dbr.Rejections, rec.Rejections},
		{&dbr.BroadcastFailures, rec.BroadcastFailures},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.src)
		if err != nil {
			return dbRound{}, fmt.Errorf("%w: %w", ErrMarshal, err)
		}
		*f.dst = data
	}

	return dbr, nil
}

func toRound(dbr dbRound) (fl.RoundRecord, error) {
	rec := fl.RoundRecord{
		ID:            dbr.ID,
		Number:        dbr.Number,
		Attempt:       dbr.Attempt,
		Status:        fl.RoundStatus(dbr.Status),
		Required:      dbr.Required,
		StartedAt:     dbr.StartedAt.Time,
		Deadline:      dbr.Deadline.Time,
		FinishedAt:    dbr.FinishedAt.Time,
		Loss:          dbr.Loss,
		Accuracy:      dbr.Accuracy,
		TotalSamples:  dbr.TotalSamples,
		FailureReason: dbr.FailureReason.String,
	}

	fields := []struct {
		src []byte
		dst any
	}{
		{dbr.Selected, &rec.Selected},
		{dbr.Contributors, &rec.Contributors},
		{dbr.Contributions, &rec.Contributions},
		{dbr.Rejections, &rec.Rejections},
		{dbr.BroadcastFailures, &rec.BroadcastFailures},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return fl.RoundRecord{}, fmt.Errorf("%w: %w", ErrMarshal, err)
		}
	}

	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
