package postgres

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
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

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
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
						version BIGINT PRIMARY KEY,
						params JSONB NOT NULL,
						updated_at TIMESTAMPTZ NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS rounds (
						id VARCHAR(36) PRIMARY KEY,
						number BIGINT NOT NULL,
						attempt INTEGER NOT NULL DEFAULT 1,
						status SMALLINT NOT NULL DEFAULT 0,
						selected JSONB,
						contributors JSONB,
						contributions JSONB,
						rejections JSONB,
						broadcast_failures JSONB,
						required INTEGER NOT NULL DEFAULT 0,
						started_at TIMESTAMPTZ,
						deadline TIMESTAMPTZ,
						finished_at TIMESTAMPTZ,
						loss DOUBLE PRECISION NOT NULL DEFAULT 0,
						accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
						total_samples BIGINT NOT NULL DEFAULT 0,
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

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
