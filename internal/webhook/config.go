package webhook

import (
	"fmt"

	"github.com/mattjoyce/slackgw/internal/auth"
	"github.com/mattjoyce/slackgw/internal/config"
)

// FromGlobalConfig converts the loaded service config to a webhook.Config.
func FromGlobalConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	maxBodySize, err := config.ParseByteSize(c.Server.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("invalid max_body_size %q: %w", c.Server.MaxBodySize, err)
	}

	tokens := make([]auth.TokenConfig, 0, len(c.Admin.Tokens))
	for _, t := range c.Admin.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}

	return Config{
		Listen:                 c.Server.Listen,
		SigningSecret:          c.Slack.SigningSecret,
		MaxBodySize:            maxBodySize,
		AllowUnsignedChallenge: c.Slack.AllowUnsignedChallenge,
		AdminAPIKey:            c.Admin.APIKey,
		AdminTokens:            tokens,
	}, nil
}
