package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mattjoyce/slackgw/internal/auth"
	"github.com/mattjoyce/slackgw/internal/credential"
	"github.com/mattjoyce/slackgw/internal/dispatch"
)

// Installer runs the OAuth install handshake.
type Installer interface {
	AuthorizeURL(projectID string) string
	Complete(ctx context.Context, code, state string) (credential.Record, error)
}

// EventDispatcher handles verified Events API callbacks.
type EventDispatcher interface {
	Dispatch(ctx context.Context, cb dispatch.Callback) bool
}

// Config holds HTTP server configuration.
type Config struct {
	Listen string

	// SigningSecret verifies X-Slack-Signature on event callbacks.
	SigningSecret string

	// MaxBodySize is the maximum allowed callback body size in bytes (default: 1MB)
	MaxBodySize int64

	// AllowUnsignedChallenge answers url_verification challenges before
	// checking the signature.
	AllowUnsignedChallenge bool

	// AdminAPIKey and AdminTokens guard the admin routes. With neither set
	// the admin routes are not mounted.
	AdminAPIKey string
	AdminTokens []auth.TokenConfig

	// Now overrides the clock used for signature freshness.
	Now func() time.Time
}

// OKResponse acknowledges a verified callback.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ChallengeResponse answers a url_verification callback.
type ChallengeResponse struct {
	Challenge json.RawMessage `json:"challenge"`
}

// ResetResponse reports how many installations were removed.
type ResetResponse struct {
	Deleted int64 `json:"deleted"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB

	CompletedPath = "/slack/oauth_redirect/completed"
)
