package sqlite

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
	ErrCreate       = errors.New("create error")
	ErrMarshal      = errors.New("marshal error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// A single writer avoids SQLITE_BUSY on concurrent commits.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_fl_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS models (
						version INTEGER PRIMARY KEY,
						params TEXT NOT NULL,
						updated_at TIMESTAMP NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS rounds (
						id TEXT PRIMARY KEY,
						number INTEGER NOT NULL,
						attempt INTEGER NOT NULL DEFAULT 1,
						status INTEGER NOT NULL DEFAULT 0,
						selected TEXT,
						contributors TEXT,
						contributions TEXT,
						rejections TEXT,
						broadcast_failures TEXT,
						required INTEGER NOT NULL DEFAULT 0,
						started_at TIMESTAMP,
						deadline TIMESTAMP,
						finished_at TIMESTAMP,
						loss REAL NOT NULL DEFAULT 0,
						accuracy REAL NOT NULL DEFAULT 0,
						total_samples INTEGER NOT NULL DEFAULT 0,
						failure_reason TEXT
					)`,
					`CREATE INDEX IF NOT EXISTS idx_rounds_number ON rounds(number, attempt)`,
					`CREATE INDEX IF NOT EXISTS idx_rounds_status ON rounds(status)`,
				},
				Down: []string{
					`DROP INDEX IF EXISTS idx_rounds_status`,
					`DROP INDEX IF EXISTS idx_rounds_number`,
					`DROP TABLE IF EXISTS rounds`,
					`DROP TABLE IF EXISTS models`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
