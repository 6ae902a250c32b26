// Package install completes the Slack OAuth v2 install handshake and records
// the resulting bot token for the installing workspace.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mattjoyce/slackgw/internal/credential"
	"github.com/mattjoyce/slackgw/internal/metrics"
	"github.com/mattjoyce/slackgw/internal/slack"
)

// DefaultAuthorizeURL is Slack's OAuth v2 consent page.
const DefaultAuthorizeURL = "https://slack.com/oauth/v2/authorize"

var (
	// ErrMissingCode is returned when the redirect carries no authorization code.
	ErrMissingCode = errors.New("no code provided")

	// ErrMissingState is returned when the redirect carries no project ID.
	ErrMissingState = errors.New("no state provided")
)

// Upstream error codes for incomplete exchange responses.
const (
	CodeRequestFailed      = "request_failed"
	CodeMissingAccessToken = "missing_access_token"
	CodeMissingTeamID      = "missing_team_id"
)

// UpstreamError reports a failed or incomplete token exchange.
type UpstreamError struct {
	// Code is Slack's error string or one of the Code* constants.
	Code string
	Err  error
}

func (e *UpstreamError) Error() string {
	return "oauth exchange failed: " + e.Code
}

func (e *UpstreamError) Unwrap() error { return e.Err }

//go:generate mockgen -destination=mocks/mock_exchanger.go -package=mocks github.com/mattjoyce/slackgw/internal/install Exchanger

// Exchanger trades an authorization code for a token.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*slack.OAuthV2AccessResponse, error)
}

// Config holds the app settings the handshake needs.
type Config struct {
	ClientID string
	// Scopes is the comma-separated bot scope list requested at authorize time.
	Scopes string
	// RedirectURI is the absolute URL of the OAuth redirect endpoint.
	RedirectURI string
	// AuthorizeURL overrides DefaultAuthorizeURL.
	AuthorizeURL string
}

// Service runs install handshakes.
type Service struct {
	cfg       Config
	oauth     *oauth2.Config
	exchanger Exchanger
	store     credential.Store
	logger    *slog.Logger
}

// NewService creates a handshake service.
func NewService(cfg Config, exchanger Exchanger, store credential.Store, logger *slog.Logger) *Service {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	// Slack expects the scope list comma-separated in a single parameter.
	oauth := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: cfg.AuthorizeURL},
	}
	if cfg.Scopes != "" {
		oauth.Scopes = []string{cfg.Scopes}
	}
	return &Service{cfg: cfg, oauth: oauth, exchanger: exchanger, store: store, logger: logger}
}

// AuthorizeURL returns the Slack consent URL that round-trips projectID as
// the OAuth state.
func (s *Service) AuthorizeURL(projectID string) string {
	return s.oauth.AuthCodeURL(projectID)
}

// Complete exchanges code and stores the workspace's token under the project
// ID carried in state. Nothing is stored unless Slack returns both a token
// and a team ID. A re-install of a known workspace or token fails with a
// *credential.UniquenessViolation.
func (s *Service) Complete(ctx context.Context, code, state string) (credential.Record, error) {
	if code == "" {
		metrics.Installs.WithLabelValues("rejected").Inc()
		return credential.Record{}, ErrMissingCode
	}
	if state == "" {
		metrics.Installs.WithLabelValues("rejected").Inc()
		return credential.Record{}, ErrMissingState
	}

	logger := s.logger.With("install_id", uuid.NewString(), "project_id", state)

	resp, err := s.exchanger.ExchangeCode(ctx, code, s.cfg.RedirectURI)
	if err != nil {
		upErr := &UpstreamError{Code: CodeRequestFailed, Err: err}
		var apiErr *slack.APIError
		if errors.As(err, &apiErr) && apiErr.Code != "" {
			upErr.Code = apiErr.Code
		}
		logger.Error("oauth exchange failed", "code", upErr.Code, "error", err)
		metrics.Installs.WithLabelValues("upstream_error").Inc()
		return credential.Record{}, upErr
	}

	switch {
	case resp == nil || resp.AccessToken == "":
		logger.Error("oauth exchange returned no access token")
		metrics.Installs.WithLabelValues("upstream_error").Inc()
		return credential.Record{}, &UpstreamError{Code: CodeMissingAccessToken}
	case resp.TeamID() == "":
		logger.Error("oauth exchange returned no team id")
		metrics.Installs.WithLabelValues("upstream_error").Inc()
		return credential.Record{}, &UpstreamError{Code: CodeMissingTeamID}
	}

	rec, err := s.store.Insert(ctx, credential.NewRecord{
		TeamID:      resp.TeamID(),
		AccessToken: resp.AccessToken,
		ProjectID:   state,
	})
	if err != nil {
		var uv *credential.UniquenessViolation
		if errors.As(err, &uv) {
			logger.Warn("installation conflicts with existing record",
				"team_id", resp.TeamID(),
				"field", uv.Field,
			)
			metrics.Installs.WithLabelValues("duplicate").Inc()
			return credential.Record{}, err
		}
		logger.Error("failed to store installation", "team_id", resp.TeamID(), "error", err)
		metrics.Installs.WithLabelValues("store_error").Inc()
		return credential.Record{}, fmt.Errorf("store installation: %w", err)
	}

	logger.Info("workspace installed",
		"team_id", rec.TeamID,
		"record_id", rec.ID,
		"token", credential.Fingerprint(rec.AccessToken),
	)
	metrics.Installs.WithLabelValues("installed").Inc()
	return rec, nil
}
