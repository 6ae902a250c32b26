package slack

import "fmt"

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

// Web API methods used by the gateway.
const (
	MethodOAuthV2Access   = "oauth.v2.access"
	MethodChatPostMessage = "chat.postMessage"
)

// APIResponse is the envelope every Web API method returns.
type APIResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Needed   string `json:"needed,omitempty"`
	Provided string `json:"provided,omitempty"`
}

// Team identifies a workspace.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OAuthV2AccessResponse is the oauth.v2.access result.
type OAuthV2AccessResponse struct {
	APIResponse
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	BotUserID   string `json:"bot_user_id"`
	AppID       string `json:"app_id"`
	Team        *Team  `json:"team"`
}

// TeamID returns the installing workspace ID, or "" when absent.
func (r *OAuthV2AccessResponse) TeamID() string {
	if r == nil || r.Team == nil {
		return ""
	}
	return r.Team.ID
}

// PostMessageRequest is the chat.postMessage body.
type PostMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// PostMessageResponse is the chat.postMessage result.
type PostMessageResponse struct {
	APIResponse
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// APIError is returned when Slack answers with ok=false or a non-2xx status.
type APIError struct {
	Method     string
	StatusCode int
	// Code is Slack's error string ("invalid_code", "channel_not_found", ...)
	// or "http_<status>" when the body carried none.
	Code string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
}
