package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/slackgw/internal/log"
)

const (
	// DefaultConfigName is looked up when Load is given a directory.
	DefaultConfigName = "config.yaml"
	// DotEnvName is the optional secrets file beside the config.
	DotEnvName = ".env"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolvePath resolves configPath to an absolute config file path.
// A directory resolves to the config.yaml inside it.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultConfigName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultConfigName, absPath)
		}
	}
	return absPath, nil
}

// Load reads, verifies and validates configuration from a file.
//
// If a .checksums manifest exists in the config directory the config file
// must match it, and a .env beside it must be pinned too. The .env is loaded
// only after that check; variables already set in the environment win.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(absPath)

	if err := verifyConfigHashes(dir, absPath); err != nil {
		return nil, err
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, DotEnvName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func verifyConfigHashes(dir, configPath string) error {
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	basename := filepath.Base(configPath)
	if _, ok := manifest.Hashes[basename]; !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: slackgw config lock --config %s", basename, dir, configPath)
	}

	if _, err := os.Stat(filepath.Join(dir, DotEnvName)); err == nil {
		if _, ok := manifest.Hashes[DotEnvName]; !ok {
			return fmt.Errorf("%s in %s is not pinned in checksums\n"+
				"Run: slackgw config lock --config %s", DotEnvName, dir, configPath)
		}
	}

	for name, expected := range manifest.Hashes {
		path := filepath.Join(dir, name)
		if err := VerifyFileHash(path, expected); err != nil {
			return fmt.Errorf("config verification failed for %s: %w\n"+
				"This indicates tampering or unauthorized modification.\n"+
				"If you edited this file intentionally, run: slackgw config lock --config %s", path, err, configPath)
		}
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so validation can name it.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if !log.ValidLevel(cfg.Service.LogLevel) {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if _, err := ParseByteSize(cfg.Server.MaxBodySize); err != nil {
		return fmt.Errorf("server.max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}
	if cfg.Server.PublicURL != "" {
		u, err := url.Parse(cfg.Server.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.public_url must be an absolute URL (got %q)", cfg.Server.PublicURL)
		}
	}

	required := []struct{ field, value string }{
		{"slack.signing_secret", cfg.Slack.SigningSecret},
		{"slack.client_id", cfg.Slack.ClientID},
		{"slack.client_secret", cfg.Slack.ClientSecret},
	}
	for _, r := range required {
		if err := requireResolved(r.field, r.value); err != nil {
			return err
		}
	}
	if len(cfg.Slack.Scopes) == 0 {
		return fmt.Errorf("slack.scopes must not be empty")
	}
	if cfg.Slack.RequestTimeout <= 0 {
		return fmt.Errorf("slack.request_timeout must be positive")
	}

	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "postgres":
		if err := requireResolved("store.dsn", cfg.Store.DSN); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres (got %q)", cfg.Store.Driver)
	}

	if envVarPattern.MatchString(cfg.Admin.APIKey) {
		return fmt.Errorf("admin.api_key contains unresolved environment variable")
	}
	for i, tok := range cfg.Admin.Tokens {
		if err := requireResolved(fmt.Sprintf("admin.tokens[%d].token", i), tok.Token); err != nil {
			return err
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("admin.tokens[%d].scopes must not be empty", i)
		}
	}

	return nil
}

func requireResolved(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if m := envVarPattern.FindStringSubmatch(value); m != nil {
		return fmt.Errorf("%s references unset environment variable %s", field, m[1])
	}
	return nil
}

// ParseByteSize parses size strings like "1MB", "512KB" or "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func ParseByteSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}

// DefaultMaxBodySize is the inbound body limit when none is configured.
const DefaultMaxBodySize = 1 << 20
