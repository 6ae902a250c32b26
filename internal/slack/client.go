// Package slack is a minimal Slack Web API client covering the two calls the
// gateway makes: oauth.v2.access during install and chat.postMessage when
// replying to events. Each call is a single attempt with no retry.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mattjoyce/slackgw/internal/metrics"
)

const maxResponseBytes = 1 << 20

// Config holds the app credentials and transport settings.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Timeout bounds each call; zero means only the caller's context applies.
	Timeout time.Duration
}

// Client calls the Slack Web API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

// ExchangeCode trades an OAuth authorization code for a bot token.
// redirectURI must match the one used in the authorize request.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthV2AccessResponse, error) {
	start := time.Now()
	status := "error"
	defer func() { metrics.ObserveSlackRequest(MethodOAuthV2Access, status, start) }()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := c.OAuthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if !errors.As(err, &rErr) {
			return nil, fmt.Errorf("%s request failed: %w", MethodOAuthV2Access, err)
		}
		apiErr := &APIError{Method: MethodOAuthV2Access, Code: rErr.ErrorCode}
		if rErr.Response != nil {
			apiErr.StatusCode = rErr.Response.StatusCode
			status = strconv.Itoa(rErr.Response.StatusCode)
		}
		if apiErr.Code == "" {
			apiErr.Code = "http_" + status
		}
		resp := &OAuthV2AccessResponse{APIResponse: APIResponse{Error: apiErr.Code}}
		return resp, apiErr
	}
	status = strconv.Itoa(http.StatusOK)
	return accessResponseFromToken(tok), nil
}

// OAuthConfig describes the app to the oauth.v2.access endpoint. Slack takes
// the client credentials as form parameters rather than basic auth.
func (c *Client) OAuthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.cfg.BaseURL + "/" + MethodOAuthV2Access,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func accessResponseFromToken(tok *oauth2.Token) *OAuthV2AccessResponse {
	resp := &OAuthV2AccessResponse{
		APIResponse: APIResponse{OK: true},
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       extraString(tok, "scope"),
		BotUserID:   extraString(tok, "bot_user_id"),
		AppID:       extraString(tok, "app_id"),
	}
	if team, ok := tok.Extra("team").(map[string]interface{}); ok {
		id, _ := team["id"].(string)
		name, _ := team["name"].(string)
		resp.Team = &Team{ID: id, Name: name}
	}
	return resp
}

func extraString(tok *oauth2.Token, key string) string {
	v, _ := tok.Extra(key).(string)
	return v
}

// PostMessage posts text to channel using a workspace bot token.
func (c *Client) PostMessage(ctx context.Context, token string, msg PostMessageRequest) (*PostMessageResponse, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", MethodChatPostMessage, err)
	}

	var resp PostMessageResponse
	if err := c.call(ctx, MethodChatPostMessage, "application/json; charset=utf-8", bytes.NewReader(data), token, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return &resp, &APIError{Method: MethodChatPostMessage, StatusCode: http.StatusOK, Code: resp.Error}
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader, token string, out any) error {
	start := time.Now()
	status := "error"
	defer func() { metrics.ObserveSlackRequest(method, status, start) }()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+method, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if len(raw) > maxResponseBytes {
		return fmt.Errorf("%s response exceeds %d bytes", method, maxResponseBytes)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Method: method, StatusCode: resp.StatusCode, Code: "http_" + status}
		var envelope APIResponse
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			apiErr.Code = envelope.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
