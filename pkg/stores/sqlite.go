package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lastRunKey is the service_meta key holding the last completed cycle time.
const lastRunKey = "last_run"

// SQLiteStore is the SQLite-backed persistence layer.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a store instance. Call Init to open the database.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database, enables WAL mode, and verifies the connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertSample records one observed plant value.
func (s *SQLiteStore) InsertSample(ctx context.Context, sample Sample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plant_data (variable_id, value, observed_at) VALUES (?, ?, ?)`,
		sample.VariableID, sample.Value, sample.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert sample for %s: %w", sample.VariableID, err)
	}
	return nil
}

// Latest returns the newest value per requested variable, restricted to
// samples observed at or after since. Variables with no qualifying sample
// are simply absent from the result; the engine reports them as missing.
func (s *SQLiteStore) Latest(ctx context.Context, ids []string, since time.Time) (map[string]float64, error) {
	data := make(map[string]float64, len(ids))
	stmt, err := s.db.PrepareContext(ctx,
		`SELECT value FROM plant_data
		 WHERE variable_id = ? AND observed_at >= ?
		 ORDER BY observed_at DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("prepare latest query: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		var value float64
		err := stmt.QueryRowContext(ctx, id, since.UTC()).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query latest %s: %w", id, err)
		}
		data[id] = value
	}
	return data, nil
}

// SaveRecommendations persists one cycle's recommendation set atomically.
func (s *SQLiteStore) SaveRecommendations(ctx context.Context, recs []Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recommendations (cycle, variable_id, current, recommended, delta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.Cycle, r.VariableID, r.Current, r.Recommended, r.Delta, r.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert recommendation for %s: %w", r.VariableID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recommendations: %w", err)
	}
	return nil
}

// LatestRecommendations returns the recommendation set of the most recent
// persisted cycle.
func (s *SQLiteStore) LatestRecommendations(ctx context.Context) ([]Recommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle, variable_id, current, recommended, delta, created_at
		 FROM recommendations
		 WHERE cycle = (SELECT MAX(cycle) FROM recommendations)
		 ORDER BY variable_id`)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		var r Recommendation
		if err := rows.Scan(&r.Cycle, &r.VariableID, &r.Current, &r.Recommended, &r.Delta, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// SetLastRun records when the most recent cycle completed.
func (s *SQLiteStore) SetLastRun(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastRunKey, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set last run: %w", err)
	}
	return nil
}

// LastRun returns when the most recent cycle completed, or the zero time
// when no cycle has run yet.
func (s *SQLiteStore) LastRun(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM service_meta WHERE key = ?`, lastRunKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last run: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last run: %w", err)
	}
	return at, nil
}
