package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/slackgw/internal/credential"
	"github.com/mattjoyce/slackgw/internal/log"
	"github.com/mattjoyce/slackgw/internal/metrics"
	"github.com/mattjoyce/slackgw/internal/slack"
)

// Envelope and event types the dispatcher knows about.
const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"
	EventAppMention     = "app_mention"
)

// Callback is the outer Events API envelope.
type Callback struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	// Challenge is kept raw so it can be echoed back unchanged.
	Challenge json.RawMessage `json:"challenge,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	APIAppID  string          `json:"api_app_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	EventTime int64           `json:"event_time,omitempty"`
	Event     *Event          `json:"event,omitempty"`
}

// Event is the inner event of an event_callback envelope.
type Event struct {
	Type     string `json:"type"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// EventType returns the inner event type, or "" when there is none.
func (c Callback) EventType() string {
	if c.Event == nil {
		return ""
	}
	return c.Event.Type
}

//go:generate mockgen -destination=mocks/mock_messenger.go -package=mocks github.com/mattjoyce/slackgw/internal/dispatch Messenger

// Messenger sends a message on behalf of a workspace.
type Messenger interface {
	PostMessage(ctx context.Context, token string, msg slack.PostMessageRequest) (*slack.PostMessageResponse, error)
}

// Dispatcher answers mention events with the workspace's recorded project.
type Dispatcher struct {
	store     credential.Store
	messenger Messenger
	logger    *slog.Logger
}

// New creates a Dispatcher. A nil logger uses the "dispatch" component logger.
func New(store credential.Store, messenger Messenger, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = log.WithComponent("dispatch")
	}
	return &Dispatcher{store: store, messenger: messenger, logger: logger}
}

// ReplyText is the message posted in response to a mention.
func ReplyText(teamID, projectID string) string {
	return fmt.Sprintf("Your Slack team ID is `%s`.\nYour project ID is `%s`.", teamID, projectID)
}

// Dispatch handles one verified callback. It reports whether a reply was sent.
func (d *Dispatcher) Dispatch(ctx context.Context, cb Callback) bool {
	eventType := cb.EventType()
	if cb.Type == TypeEventCallback && eventType != "" {
		metrics.EventsReceived.WithLabelValues(eventType).Inc()
	}
	if cb.Type != TypeEventCallback || eventType != EventAppMention {
		d.logger.Debug("ignoring callback", "type", cb.Type, "event_type", eventType)
		return false
	}

	logger := d.logger.With("team_id", cb.TeamID, "event_id", cb.EventID)

	if cb.TeamID == "" {
		logger.Warn("app_mention without team id")
		metrics.Replies.WithLabelValues("skipped").Inc()
		return false
	}

	rec, ok, duplicates, err := credential.Latest(ctx, d.store, cb.TeamID)
	if err != nil {
		logger.Error("credential lookup failed", "error", err)
		metrics.Replies.WithLabelValues("lookup_error").Inc()
		return false
	}
	if !ok {
		logger.Warn("no installation for team")
		metrics.Replies.WithLabelValues("not_installed").Inc()
		return false
	}
	if duplicates {
		logger.Warn("multiple installations for team, using most recent", "record_id", rec.ID)
	}

	msg := slack.PostMessageRequest{
		Channel: cb.Event.Channel,
		Text:    ReplyText(rec.TeamID, rec.ProjectID),
	}
	if _, err := d.messenger.PostMessage(ctx, rec.AccessToken, msg); err != nil {
		logger.Error("reply failed",
			"channel", msg.Channel,
			"token", credential.Fingerprint(rec.AccessToken),
			"error", err,
		)
		metrics.Replies.WithLabelValues("failed").Inc()
		return false
	}

	logger.Info("replied to mention", "channel", msg.Channel, "project_id", rec.ProjectID)
	metrics.Replies.WithLabelValues("sent").Inc()
	return true
}
