// Package dispatch routes verified Events API callbacks to handlers.
//
// Only app_mention events inside an event_callback envelope are acted on.
// For those, the dispatcher looks up the installing workspace's credential
// and posts a single reply into the originating channel naming the team ID
// and the project ID recorded at install time.
//
// Dispatch never fails the inbound request:
//   - unknown envelope or event types are ignored
//   - a workspace with no stored credential is logged and skipped
//   - Slack send failures (transport errors and ok=false) are logged and swallowed
package dispatch
