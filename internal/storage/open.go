// Package storage provides the durable backends behind credential.Store.
//
// SQLite (modernc.org/sqlite, schema via golang-migrate) is the default;
// Postgres (pgx) is available for deployments that run more than one instance.
// Both enforce uniqueness of team ID and access token with table constraints.
package storage

import (
	"context"
	"fmt"

	"github.com/mattjoyce/slackgw/internal/credential"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	// Path is the SQLite database file.
	Path string
	// DSN is the Postgres connection string.
	DSN string
}

// Backend is a credential.Store that owns a connection.
type Backend interface {
	credential.Store
	Close() error
}

// Open opens the backend named by opts.Driver. An empty driver means SQLite.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		db, err := OpenSQLite(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db), nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
