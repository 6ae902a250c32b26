package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
service:
  name: slackgw-test
  log_level: debug
server:
  listen: 127.0.0.1:9090
  public_url: https://gw.example.com/
  max_body_size: 512KB
slack:
  client_id: cid
  client_secret: csecret
  signing_secret: shh
store:
  driver: sqlite
  path: ./test.db
admin:
  api_key: admin-key
  tokens:
    - token: ops
      scopes: [installations:rw]
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// unsetForTest clears name for the duration of the test and restores it after.
func unsetForTest(t *testing.T, name string) {
	t.Helper()
	t.Setenv(name, "")
	if err := os.Unsetenv(name); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Service.Name != "slackgw-test" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
	if cfg.Service.LogFormat != "json" {
		t.Errorf("default log_format not applied, got %q", cfg.Service.LogFormat)
	}
	if cfg.Server.Listen != "127.0.0.1:9090" {
		t.Errorf("server.listen = %q", cfg.Server.Listen)
	}
	if cfg.Slack.RequestTimeout != 10*time.Second {
		t.Errorf("default request_timeout not applied, got %v", cfg.Slack.RequestTimeout)
	}
	if cfg.Slack.AllowUnsignedChallenge {
		t.Error("allow_unsigned_challenge should default to false")
	}
	if got := cfg.ScopeList(); got != "app_mentions:read,chat:write" {
		t.Errorf("default scopes = %q", got)
	}
	if got := cfg.RedirectURI(); got != "https://gw.example.com/slack/oauth_redirect" {
		t.Errorf("RedirectURI() = %q", got)
	}
	if !cfg.Admin.Enabled() || len(cfg.Admin.Tokens) != 1 {
		t.Errorf("admin tokens not parsed: %+v", cfg.Admin)
	}
	if cfg.SourcePath != path {
		t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, validYAML)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9090" {
		t.Errorf("server.listen = %q", cfg.Server.Listen)
	}
}

func TestLoadEnvInterpolation(t *testing.T) {
	t.Setenv("SLACKGW_TEST_SIGNING_SECRET", "from-env")
	body := strings.Replace(validYAML, "signing_secret: shh", "signing_secret: ${SLACKGW_TEST_SIGNING_SECRET}", 1)

	cfg, err := Load(writeConfig(t, t.TempDir(), body))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Slack.SigningSecret != "from-env" {
		t.Errorf("signing_secret = %q, want from-env", cfg.Slack.SigningSecret)
	}
}

func TestLoadUnresolvedEnv(t *testing.T) {
	unsetForTest(t, "SLACKGW_TEST_MISSING")
	body := strings.Replace(validYAML, "signing_secret: shh", "signing_secret: ${SLACKGW_TEST_MISSING}", 1)

	_, err := Load(writeConfig(t, t.TempDir(), body))
	if err == nil || !strings.Contains(err.Error(), "SLACKGW_TEST_MISSING") {
		t.Fatalf("expected unresolved variable error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	unsetForTest(t, "SLACKGW_TEST_DOTENV_SECRET")
	t.Setenv("SLACKGW_TEST_DOTENV_CLIENT", "from-process")

	dir := t.TempDir()
	dotenv := "SLACKGW_TEST_DOTENV_SECRET=from-dotenv\nSLACKGW_TEST_DOTENV_CLIENT=from-dotenv\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0600); err != nil {
		t.Fatal(err)
	}
	body := strings.Replace(validYAML, "signing_secret: shh", "signing_secret: ${SLACKGW_TEST_DOTENV_SECRET}", 1)
	body = strings.Replace(body, "client_id: cid", "client_id: ${SLACKGW_TEST_DOTENV_CLIENT}", 1)

	cfg, err := Load(writeConfig(t, dir, body))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Slack.SigningSecret != "from-dotenv" {
		t.Errorf("signing_secret = %q, want from-dotenv", cfg.Slack.SigningSecret)
	}
	if cfg.Slack.ClientID != "from-process" {
		t.Errorf("client_id = %q, existing environment should win", cfg.Slack.ClientID)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr string
	}{
		{name: "bad log level", from: "log_level: debug", to: "log_level: loud", wantErr: "service.log_level"},
		{name: "bad log format", from: "name: slackgw-test", to: "name: x\n  log_format: xml", wantErr: "service.log_format"},
		{name: "missing signing secret", from: "signing_secret: shh", to: "signing_secret: \"\"", wantErr: "slack.signing_secret is required"},
		{name: "missing client secret", from: "client_secret: csecret", to: "client_secret: \"\"", wantErr: "slack.client_secret is required"},
		{name: "bad body size", from: "max_body_size: 512KB", to: "max_body_size: lots", wantErr: "server.max_body_size"},
		{name: "relative public url", from: "public_url: https://gw.example.com/", to: "public_url: gw.example.com", wantErr: "server.public_url"},
		{name: "unknown driver", from: "driver: sqlite", to: "driver: mongo", wantErr: "store.driver"},
		{name: "postgres without dsn", from: "driver: sqlite", to: "driver: postgres", wantErr: "store.dsn is required"},
		{name: "token without scopes", from: "scopes: [installations:rw]", to: "scopes: []", wantErr: "admin.tokens[0].scopes"},
		{name: "negative timeout", from: "signing_secret: shh", to: "signing_secret: shh\n  request_timeout: -1s", wantErr: "slack.request_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(validYAML, tt.from) {
				t.Fatalf("fixture does not contain %q", tt.from)
			}
			body := strings.Replace(validYAML, tt.from, tt.to, 1)
			_, err := Load(writeConfig(t, t.TempDir(), body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "Error"} {
		t.Run(level, func(t *testing.T) {
			body := strings.Replace(validYAML, "log_level: debug", "log_level: "+level, 1)
			cfg, err := Load(writeConfig(t, t.TempDir(), body))
			if err != nil {
				t.Fatalf("Load() rejected log_level %q: %v", level, err)
			}
			if cfg.Service.LogLevel != level {
				t.Errorf("log_level = %q, want %q", cfg.Service.LogLevel, level)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	_, err = Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config.yaml not found") {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: DefaultMaxBodySize},
		{in: "1MB", want: 1 << 20},
		{in: "512kb", want: 512 << 10},
		{in: "2GB", want: 2 << 30},
		{in: "2048", want: 2048},
		{in: " 4 MB ", want: 4 << 20},
		{in: "0", wantErr: true},
		{in: "-1KB", wantErr: true},
		{in: "big", wantErr: true},
		{in: "9223372036854775807GB", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseByteSize(%q) expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseByteSize(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRedirectURIWithoutPublicURL(t *testing.T) {
	cfg := Defaults()
	if got := cfg.RedirectURI(); got != "" {
		t.Errorf("RedirectURI() = %q, want empty", got)
	}
}
