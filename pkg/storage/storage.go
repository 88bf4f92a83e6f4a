package storage

import (
	"context"
	"fmt"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/storage/badger"
	"github.com/absmach/fedcoord/pkg/storage/file"
	"github.com/absmach/fedcoord/pkg/storage/postgres"
	"github.com/absmach/fedcoord/pkg/storage/sqlite"
)

// Repository persists the global model versions and the round history.
// Lookups of missing entities return an error wrapping errors.ErrNotFound.
type Repository interface {
	SaveModel(ctx context.Context, m fl.GlobalModel) error
	LatestModel(ctx context.Context) (fl.GlobalModel, error)
	GetModel(ctx context.Context, version uint64) (fl.GlobalModel, error)

	// SaveRound inserts or replaces the record with the same ID.
	SaveRound(ctx context.Context, r fl.RoundRecord) error
	GetRound(ctx context.Context, id string) (fl.RoundRecord, error)
	// ListRounds returns records ordered by round number, then attempt.
	ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error)

	// Commit stores a new model version together with the round that
	// produced it. Backends that support transactions write both or neither.
	Commit(ctx context.Context, m fl.GlobalModel, r fl.RoundRecord) error

	Close() error
}

type Config struct {
	Type string `env:"TYPE" envDefault:"memory"`

	PostgresHost    string `env:"POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER"    envDefault:"fedcoord"`
	PostgresPass    string `env:"POSTGRES_PASS"    envDefault:"fedcoord"`
	PostgresDB      string `env:"POSTGRES_DB"      envDefault:"fedcoord"`
	PostgresSSLMode string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"./fedcoord.db"`

	BadgerPath string `env:"BADGER_PATH" envDefault:"./data/badger"`

	FileDir string `env:"FILE_DIR" envDefault:"./data/history"`
}

func NewRepository(cfg Config) (Repository, error) {
	switch cfg.Type {
	case "postgres":
		db, err := postgres.NewDatabase(
			cfg.PostgresHost,
			cfg.PostgresPort,
			cfg.PostgresUser,
			cfg.PostgresPass,
			cfg.PostgresDB,
			cfg.PostgresSSLMode,
		)
		if err != nil {
			return nil, err
		}

		return postgres.NewRepository(db), nil
	case "sqlite":
		db, err := sqlite.NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		return sqlite.NewRepository(db), nil
	case "badger":
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}

		return badger.NewRepository(db), nil
	case "file":
		repo, err := file.NewRepository(cfg.FileDir)
		if err != nil {
			return nil, err
		}

		return repo, nil
	case "memory":
		return NewInMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}
