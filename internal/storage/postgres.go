package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mattjoyce/slackgw/internal/credential"
)

const pgUniqueViolation = "23505"

const (
	pgTeamConstraint  = "installations_team_id_key"
	pgTokenConstraint = "installations_access_token_key"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS installations (
  id           BIGSERIAL PRIMARY KEY,
  team_id      TEXT NOT NULL CHECK (team_id <> ''),
  access_token TEXT NOT NULL CHECK (access_token <> ''),
  project_id   TEXT NOT NULL CHECK (project_id <> ''),
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT ` + pgTeamConstraint + ` UNIQUE (team_id),
  CONSTRAINT ` + pgTokenConstraint + ` UNIQUE (access_token)
);`,
}

var _ credential.Store = (*PostgresStore)(nil)

// PostgresStore is the Postgres implementation of credential.Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and bootstraps the
// schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(pctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap postgres: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

// Lookup returns the records for teamID, newest first.
func (s *PostgresStore) Lookup(ctx context.Context, teamID string) ([]credential.Record, error) {
	const query = `SELECT id, team_id, access_token, project_id, created_at
FROM installations WHERE team_id = $1 ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("lookup installation %s: %w", teamID, err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (credential.Record, error) {
		var rec credential.Record
		err := row.Scan(&rec.ID, &rec.TeamID, &rec.AccessToken, &rec.ProjectID, &rec.CreatedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan installations: %w", err)
	}
	return recs, nil
}

// Insert stores a new installation.
func (s *PostgresStore) Insert(ctx context.Context, rec credential.NewRecord) (credential.Record, error) {
	if err := rec.Validate(); err != nil {
		return credential.Record{}, err
	}

	const query = `INSERT INTO installations (team_id, access_token, project_id)
VALUES ($1, $2, $3) RETURNING id, created_at`

	out := credential.Record{TeamID: rec.TeamID, AccessToken: rec.AccessToken, ProjectID: rec.ProjectID}
	err := s.pool.QueryRow(ctx, query, rec.TeamID, rec.AccessToken, rec.ProjectID).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if uv := postgresUniqueViolation(err); uv != nil {
			return credential.Record{}, fmt.Errorf("insert installation %s: %w", rec.TeamID, uv)
		}
		return credential.Record{}, fmt.Errorf("insert installation %s: %w", rec.TeamID, err)
	}
	return out, nil
}

// DeleteAll removes every installation.
func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM installations`)
	if err != nil {
		return 0, fmt.Errorf("delete installations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// postgresUniqueViolation maps a 23505 error to the violated field, or
// returns nil for any other error.
func postgresUniqueViolation(err error) *credential.UniquenessViolation {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}
	return &credential.UniquenessViolation{Field: postgresConstraintField(pgErr.ConstraintName), Err: err}
}

func postgresConstraintField(name string) string {
	switch name {
	case pgTeamConstraint:
		return credential.FieldTeamID
	case pgTokenConstraint:
		return credential.FieldAccessToken
	default:
		return ""
	}
}
