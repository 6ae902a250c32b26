// Package webhook serves the gateway's public HTTP surface: the Slack Events
// API callback, the OAuth install flow, and a small admin API.
//
// # Security Model
//
// - Event callbacks are verified with the Slack v0 HMAC-SHA256 scheme over the raw body
// - Body size limits enforced before verification
// - No verification details leaked in error responses (always generic 401)
// - Request logging excludes payloads and tokens
// - Admin routes require a bearer token with the installations:rw scope
//
// # Routes
//
//	GET  /                                 install landing page
//	GET  /slack/install?project_id=        302 to the Slack consent page
//	POST /slack/events                     Events API callback
//	GET  /slack/oauth_redirect             OAuth redirect (code, state)
//	GET  /slack/oauth_redirect/completed   install success page
//	POST /admin/installations/reset        delete every installation
//	GET  /healthz                          liveness
//	GET  /metrics                          Prometheus
//
// # Event Callback Flow
//
//  1. Body size checked (reject with 413 if too large)
//  2. Optionally, a challenge is echoed before verification (allow_unsigned_challenge)
//  3. Signature and timestamp verified (reject with 401 if invalid or stale)
//  4. Body decoded (reject with 400 if malformed)
//  5. url_verification answered with its challenge, anything else dispatched
//  6. 200 {"ok":true} returned regardless of dispatch outcome
//
// # OAuth Redirect Errors
//
// - 400 Bad Request: missing code or state
// - 409 Conflict: workspace or token already installed
// - 502 Bad Gateway: token exchange failed
// - 500 Internal Server Error: storage failure
package webhook
