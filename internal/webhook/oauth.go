package webhook

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/mattjoyce/slackgw/internal/credential"
	"github.com/mattjoyce/slackgw/internal/install"
	"github.com/mattjoyce/slackgw/internal/metrics"
)

// handleInstall redirects to Slack's consent page for the given project.
func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	http.Redirect(w, r, s.installer.AuthorizeURL(projectID), http.StatusFound)
}

// handleOAuthRedirect completes the install handshake.
func (s *Server) handleOAuthRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	// Slack sends error instead of code when the user declines consent.
	if slackErr := q.Get("error"); slackErr != "" {
		s.logger.Warn("install not authorized", "error", slackErr, "project_id", state)
		metrics.Installs.WithLabelValues("denied").Inc()
		s.respondError(w, http.StatusBadRequest, slackErr)
		return
	}

	_, err := s.installer.Complete(r.Context(), code, state)
	if err != nil {
		s.respondInstallError(w, err)
		return
	}

	http.Redirect(w, r, CompletedPath+"?projectId="+url.QueryEscape(state), http.StatusFound)
}

func (s *Server) respondInstallError(w http.ResponseWriter, err error) {
	var upErr *install.UpstreamError
	var uv *credential.UniquenessViolation

	switch {
	case errors.Is(err, install.ErrMissingCode), errors.Is(err, install.ErrMissingState):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &upErr):
		s.respondError(w, http.StatusBadGateway, upErr.Code)
	case errors.As(err, &uv):
		s.respondJSON(w, http.StatusConflict, ErrorResponse{Error: "already installed", Field: uv.Field})
	default:
		s.respondError(w, http.StatusInternalServerError, "failed to store installation")
	}
}
