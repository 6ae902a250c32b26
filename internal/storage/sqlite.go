package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mattjoyce/slackgw/internal/credential"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers so concurrent installs resolve
	// on the UNIQUE constraints rather than on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies all pending embedded migrations. Already-applied
// migrations are skipped.
func RunMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

var _ credential.Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite implementation of credential.Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Lookup returns the records for teamID, newest first.
func (s *SQLiteStore) Lookup(ctx context.Context, teamID string) ([]credential.Record, error) {
	const query = `SELECT id, team_id, access_token, project_id, created_at
FROM installations WHERE team_id = ? ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("lookup installation %s: %w", teamID, err)
	}
	defer rows.Close()

	var recs []credential.Record
	for rows.Next() {
		var rec credential.Record
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.TeamID, &rec.AccessToken, &rec.ProjectID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for installation %d: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installations: %w", err)
	}
	return recs, nil
}

// Insert stores a new installation.
func (s *SQLiteStore) Insert(ctx context.Context, rec credential.NewRecord) (credential.Record, error) {
	if err := rec.Validate(); err != nil {
		return credential.Record{}, err
	}

	const query = `INSERT INTO installations (team_id, access_token, project_id, created_at) VALUES (?, ?, ?, ?)`

	createdAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, query, rec.TeamID, rec.AccessToken, rec.ProjectID, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		if uv := sqliteUniqueViolation(err); uv != nil {
			return credential.Record{}, fmt.Errorf("insert installation %s: %w", rec.TeamID, uv)
		}
		return credential.Record{}, fmt.Errorf("insert installation %s: %w", rec.TeamID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return credential.Record{}, fmt.Errorf("read installation id: %w", err)
	}

	return credential.Record{
		ID:          id,
		TeamID:      rec.TeamID,
		AccessToken: rec.AccessToken,
		ProjectID:   rec.ProjectID,
		CreatedAt:   createdAt,
	}, nil
}

// DeleteAll removes every installation.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installations`)
	if err != nil {
		return 0, fmt.Errorf("delete installations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted installations: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteUniqueViolation maps a UNIQUE constraint failure to a typed error, or
// returns nil for any other error.
func sqliteUniqueViolation(err error) *credential.UniquenessViolation {
	var serr *sqlite.Error
	isUnique := errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	if !isUnique && !strings.Contains(err.Error(), "UNIQUE constraint") {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "installations."+credential.FieldTeamID):
		return &credential.UniquenessViolation{Field: credential.FieldTeamID, Err: err}
	case strings.Contains(msg, "installations."+credential.FieldAccessToken):
		return &credential.UniquenessViolation{Field: credential.FieldAccessToken, Err: err}
	default:
		return &credential.UniquenessViolation{Err: err}
	}
}
