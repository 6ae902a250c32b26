package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/slackgw/internal/credential"
	credmocks "github.com/mattjoyce/slackgw/internal/credential/mocks"
	"github.com/mattjoyce/slackgw/internal/dispatch/mocks"
	"github.com/mattjoyce/slackgw/internal/slack"
	"github.com/mattjoyce/slackgw/internal/storage"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func mention(team, channel string) Callback {
	return Callback{
		Type:    TypeEventCallback,
		TeamID:  team,
		EventID: "Ev1",
		Event:   &Event{Type: EventAppMention, Channel: channel, User: "U1", Text: "<@B1> hi", TS: "1.0"},
	}
}

func TestDispatch_RepliesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := credmocks.NewMockStore(ctrl)
	msgr := mocks.NewMockMessenger(ctrl)
	logger, _ := newTestLogger()

	store.EXPECT().Lookup(gomock.Any(), "T1").Return([]credential.Record{
		{ID: 3, TeamID: "T1", AccessToken: "xoxb-1", ProjectID: "kyonenya-help"},
	}, nil)
	msgr.EXPECT().PostMessage(gomock.Any(), "xoxb-1", slack.PostMessageRequest{
		Channel: "C1",
		Text:    "Your Slack team ID is `T1`.\nYour project ID is `kyonenya-help`.",
	}).Return(&slack.PostMessageResponse{APIResponse: slack.APIResponse{OK: true}}, nil).Times(1)

	d := New(store, msgr, logger)
	assert.True(t, d.Dispatch(context.Background(), mention("T1", "C1")))
}

func TestDispatch_IgnoresOtherCallbacks(t *testing.T) {
	tests := []struct {
		name string
		cb   Callback
	}{
		{name: "message event", cb: Callback{Type: TypeEventCallback, TeamID: "T1", Event: &Event{Type: "message", Channel: "C1"}}},
		{name: "no inner event", cb: Callback{Type: TypeEventCallback, TeamID: "T1"}},
		{name: "url verification", cb: Callback{Type: TypeURLVerification, Challenge: json.RawMessage(`"abc"`)}},
		{name: "unknown envelope", cb: Callback{Type: "app_rate_limited", TeamID: "T1"}},
		{name: "mention outside event_callback", cb: Callback{Type: "something", TeamID: "T1", Event: &Event{Type: EventAppMention}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// Neither collaborator may be called.
			d := New(credmocks.NewMockStore(ctrl), mocks.NewMockMessenger(ctrl), slog.New(slog.DiscardHandler))
			assert.False(t, d.Dispatch(context.Background(), tt.cb))
		})
	}
}

func TestDispatch_NoInstallation(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := credmocks.NewMockStore(ctrl)
	logger, buf := newTestLogger()

	store.EXPECT().Lookup(gomock.Any(), "T9").Return(nil, nil)

	d := New(store, mocks.NewMockMessenger(ctrl), logger)
	assert.False(t, d.Dispatch(context.Background(), mention("T9", "C1")))
	assert.Contains(t, buf.String(), "no installation for team")
}

func TestDispatch_MissingTeamID(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := New(credmocks.NewMockStore(ctrl), mocks.NewMockMessenger(ctrl), slog.New(slog.DiscardHandler))
	assert.False(t, d.Dispatch(context.Background(), mention("", "C1")))
}

func TestDispatch_LookupError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := credmocks.NewMockStore(ctrl)
	logger, buf := newTestLogger()

	store.EXPECT().Lookup(gomock.Any(), "T1").Return(nil, errors.New("database is locked"))

	d := New(store, mocks.NewMockMessenger(ctrl), logger)
	assert.False(t, d.Dispatch(context.Background(), mention("T1", "C1")))
	assert.Contains(t, buf.String(), "database is locked")
}

func TestDispatch_SendFailureSwallowed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "slack not ok", err: &slack.APIError{Method: slack.MethodChatPostMessage, Code: "channel_not_found"}},
		{name: "transport", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := credmocks.NewMockStore(ctrl)
			msgr := mocks.NewMockMessenger(ctrl)
			logger, buf := newTestLogger()

			store.EXPECT().Lookup(gomock.Any(), "T1").Return([]credential.Record{
				{ID: 1, TeamID: "T1", AccessToken: "xoxb-secret", ProjectID: "p"},
			}, nil)
			msgr.EXPECT().PostMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tt.err).Times(1)

			d := New(store, msgr, logger)
			assert.False(t, d.Dispatch(context.Background(), mention("T1", "C1")))

			out := buf.String()
			assert.Contains(t, out, "reply failed")
			assert.NotContains(t, out, "xoxb-secret", "raw token must not be logged")
		})
	}
}

func TestDispatch_DuplicatesUseMostRecent(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := credmocks.NewMockStore(ctrl)
	msgr := mocks.NewMockMessenger(ctrl)
	logger, buf := newTestLogger()

	store.EXPECT().Lookup(gomock.Any(), "T1").Return([]credential.Record{
		{ID: 7, TeamID: "T1", AccessToken: "xoxb-new", ProjectID: "new"},
		{ID: 2, TeamID: "T1", AccessToken: "xoxb-old", ProjectID: "old"},
	}, nil)
	msgr.EXPECT().PostMessage(gomock.Any(), "xoxb-new", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg slack.PostMessageRequest) (*slack.PostMessageResponse, error) {
			assert.True(t, strings.Contains(msg.Text, "`new`"))
			return &slack.PostMessageResponse{}, nil
		})

	d := New(store, msgr, logger)
	assert.True(t, d.Dispatch(context.Background(), mention("T1", "C1")))
	assert.Contains(t, buf.String(), "multiple installations")
}

func TestDispatch_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "slackgw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := storage.NewSQLiteStore(db)

	_, err = store.Insert(ctx, credential.NewRecord{TeamID: "T1", AccessToken: "xoxb-1", ProjectID: "proj-a"})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	msgr := mocks.NewMockMessenger(ctrl)
	msgr.EXPECT().PostMessage(gomock.Any(), "xoxb-1", slack.PostMessageRequest{Channel: "C42", Text: ReplyText("T1", "proj-a")}).
		Return(&slack.PostMessageResponse{}, nil)

	d := New(store, msgr, slog.New(slog.DiscardHandler))
	assert.True(t, d.Dispatch(ctx, mention("T1", "C42")))
}

func TestCallbackDecode(t *testing.T) {
	raw := `{"token":"x","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":"Ev9","event_time":1700000000,
		"event":{"type":"app_mention","user":"U1","text":"<@B1> hi","channel":"C1","ts":"1700000000.000100"}}`

	var cb Callback
	require.NoError(t, json.Unmarshal([]byte(raw), &cb))
	assert.Equal(t, TypeEventCallback, cb.Type)
	assert.Equal(t, "T1", cb.TeamID)
	assert.Equal(t, EventAppMention, cb.EventType())
	assert.Equal(t, "C1", cb.Event.Channel)

	assert.Equal(t, "", Callback{Type: TypeURLVerification}.EventType())
}
