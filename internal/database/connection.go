package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/studylog/internal/config"
)

// DB is the global database connection
var DB *sqlx.DB

// Connect opens the configured database, applies the schema and stores the
// connection in DB
func Connect(cfg *config.Config) (*sqlx.DB, error) {
	if cfg.DBDriver == config.DriverSQLite && cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect(cfg.DBDriver, cfg.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DBDriver == config.DriverSQLite {
		// SQLite doesn't support multiple writers, and an in-memory database
		// only lives as long as its single connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := InitializeSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	DB = db
	return db, nil
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// InitializeSchema creates the tables and indexes if they don't exist
func InitializeSchema(db *sqlx.DB) error {
	statements := sqliteSchema
	if db.DriverName() == config.DriverPostgres {
		statements = postgresSchema
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w (statement: %s)", err, firstLine(stmt))
		}
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

// The CHECK constraints mirror the schedule invariants so that the store
// rejects any state the review scheduler would not produce.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER UNIQUE NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		notification_enabled BOOLEAN NOT NULL DEFAULT true,
		notification_hour INTEGER NOT NULL DEFAULT 9,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS study_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		category TEXT NOT NULL,
		studied_at TIMESTAMP NOT NULL,
		review_count INTEGER NOT NULL DEFAULT 0 CHECK (review_count BETWEEN 0 AND 3),
		last_reviewed_at TIMESTAMP,
		next_review_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (review_count = 0 OR last_reviewed_at IS NOT NULL),
		CHECK ((review_count = 3) = (next_review_at IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_study_records_user_next_review ON study_records(user_id, next_review_at)`,
	`CREATE INDEX IF NOT EXISTS idx_study_records_user_studied ON study_records(user_id, studied_at)`,
	`CREATE TABLE IF NOT EXISTS review_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		study_record_id INTEGER NOT NULL REFERENCES study_records(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		review_number INTEGER NOT NULL,
		reviewed_at TIMESTAMP NOT NULL,
		next_review_at TIMESTAMP,
		UNIQUE(study_record_id, review_number)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT UNIQUE NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		notification_enabled BOOLEAN NOT NULL DEFAULT true,
		notification_hour INTEGER NOT NULL DEFAULT 9,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS study_records (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		category TEXT NOT NULL,
		studied_at TIMESTAMPTZ NOT NULL,
		review_count INTEGER NOT NULL DEFAULT 0 CHECK (review_count BETWEEN 0 AND 3),
		last_reviewed_at TIMESTAMPTZ,
		next_review_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (review_count = 0 OR last_reviewed_at IS NOT NULL),
		CHECK ((review_count = 3) = (next_review_at IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_study_records_user_next_review ON study_records(user_id, next_review_at)`,
	`CREATE INDEX IF NOT EXISTS idx_study_records_user_studied ON study_records(user_id, studied_at)`,
	`CREATE TABLE IF NOT EXISTS review_logs (
		id BIGSERIAL PRIMARY KEY,
		study_record_id BIGINT NOT NULL REFERENCES study_records(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL,
		review_number INTEGER NOT NULL,
		reviewed_at TIMESTAMPTZ NOT NULL,
		next_review_at TIMESTAMPTZ,
		UNIQUE(study_record_id, review_number)
	)`,
}
