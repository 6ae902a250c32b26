package config

import (
	"strings"
	"time"
)

// Config represents the complete slackgw configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Server  ServerConfig  `yaml:"server"`
	Slack   SlackConfig   `yaml:"slack"`
	Store   StoreConfig   `yaml:"store"`
	Admin   AdminConfig   `yaml:"admin,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig defines the public HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// PublicURL is the externally reachable base URL, used to build the
	// OAuth redirect URI. Empty means Slack uses the app's configured URL.
	PublicURL string `yaml:"public_url"`
	// MaxBodySize accepts "1MB", "512KB" or a byte count.
	MaxBodySize string `yaml:"max_body_size"`
}

// SlackConfig holds the Slack app credentials.
type SlackConfig struct {
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	Scopes         []string      `yaml:"scopes"`
	SigningSecret  string        `yaml:"signing_secret"`
	APIBaseURL     string        `yaml:"api_base_url,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// AllowUnsignedChallenge echoes url_verification challenges before the
	// signature check runs.
	AllowUnsignedChallenge bool `yaml:"allow_unsigned_challenge"`
}

// StoreConfig selects the credential backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn,omitempty"`
}

// AdminConfig defines admin endpoint authentication.
type AdminConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Enabled reports whether any admin credential is configured.
func (a AdminConfig) Enabled() bool {
	return a.APIKey != "" || len(a.Tokens) > 0
}

// ChecksumManifest is the on-disk format of .checksums.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// RedirectURI returns the OAuth redirect endpoint under PublicURL, or "".
func (c *Config) RedirectURI() string {
	if c.Server.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(c.Server.PublicURL, "/") + "/slack/oauth_redirect"
}

// ScopeList returns the bot scopes in the comma-separated form Slack expects.
func (c *Config) ScopeList() string {
	return strings.Join(c.Slack.Scopes, ",")
}

// Defaults returns a Config with default values applied.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "slackgw",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:      ":8080",
			MaxBodySize: "1MB",
		},
		Slack: SlackConfig{
			Scopes:         []string{"app_mentions:read", "chat:write"},
			RequestTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "./data/slackgw.db",
		},
	}
}
