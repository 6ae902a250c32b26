// Package credential defines the per-workspace installation record and the
// store contract that persists it.
//
// A record binds one Slack team to one bot access token and the project ID the
// installer chose. Both team ID and access token are unique across the store,
// and records are never updated in place: a workspace that needs a new token
// must be cleared with DeleteAll and installed again.
package credential

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Column names reported by UniquenessViolation.
const (
	FieldTeamID      = "team_id"
	FieldAccessToken = "access_token"
)

var (
	// ErrDuplicate matches any *UniquenessViolation via errors.Is.
	ErrDuplicate = errors.New("credential already exists")

	// ErrInvalidRecord is returned by Insert when a required field is empty.
	ErrInvalidRecord = errors.New("invalid credential record")
)

// Record is a stored installation.
type Record struct {
	ID          int64
	TeamID      string
	AccessToken string
	ProjectID   string
	CreatedAt   time.Time
}

// NewRecord carries the caller-supplied fields of an insert.
type NewRecord struct {
	TeamID      string
	AccessToken string
	ProjectID   string
}

// Validate rejects records with empty fields.
func (n NewRecord) Validate() error {
	switch {
	case n.TeamID == "":
		return fmt.Errorf("%w: team_id is empty", ErrInvalidRecord)
	case n.AccessToken == "":
		return fmt.Errorf("%w: access_token is empty", ErrInvalidRecord)
	case n.ProjectID == "":
		return fmt.Errorf("%w: project_id is empty", ErrInvalidRecord)
	}
	return nil
}

// UniquenessViolation reports an insert rejected by a unique constraint.
type UniquenessViolation struct {
	// Field is FieldTeamID or FieldAccessToken, or empty when the backend did
	// not say which constraint fired.
	Field string
	Err   error
}

func (e *UniquenessViolation) Error() string {
	if e.Field == "" {
		return ErrDuplicate.Error()
	}
	return fmt.Sprintf("%s: duplicate %s", ErrDuplicate.Error(), e.Field)
}

func (e *UniquenessViolation) Is(target error) bool { return target == ErrDuplicate }

func (e *UniquenessViolation) Unwrap() error { return e.Err }

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/slackgw/internal/credential Store

// Store persists installation records. Implementations must enforce the
// uniqueness of team ID and access token with their storage constraints.
type Store interface {
	// Lookup returns every record for teamID, newest (highest ID) first.
	Lookup(ctx context.Context, teamID string) ([]Record, error)

	// Insert stores a new record. A duplicate team ID or access token yields
	// a *UniquenessViolation.
	Insert(ctx context.Context, rec NewRecord) (Record, error)

	// DeleteAll removes every record and reports how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
}

// Latest returns the most recent record for teamID. ok is false when none
// exists; duplicates reports whether the store held more than one.
func Latest(ctx context.Context, s Store, teamID string) (rec Record, ok bool, duplicates bool, err error) {
	recs, err := s.Lookup(ctx, teamID)
	if err != nil {
		return Record{}, false, false, err
	}
	if len(recs) == 0 {
		return Record{}, false, false, nil
	}
	best := recs[0]
	for _, r := range recs[1:] {
		if r.ID > best.ID {
			best = r
		}
	}
	return best, true, len(recs) > 1, nil
}

// Fingerprint returns a short, non-reversible tag for a token, safe for logs.
func Fingerprint(token string) string {
	sum := blake3.Sum256([]byte(token))
	return "blake3:" + hex.EncodeToString(sum[:6])
}
