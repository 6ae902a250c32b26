package webhook

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mattjoyce/slackgw/internal/dispatch"
	"github.com/mattjoyce/slackgw/internal/metrics"
	"github.com/mattjoyce/slackgw/internal/signing"
)

// handleEvents handles Slack Events API callbacks.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Enforce body size limit
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if s.config.AllowUnsignedChallenge {
		var unsigned struct {
			Challenge json.RawMessage `json:"challenge"`
		}
		if json.Unmarshal(body, &unsigned) == nil && hasChallenge(unsigned.Challenge) {
			s.logger.Info("answered unsigned challenge")
			s.respondJSON(w, http.StatusOK, ChallengeResponse{Challenge: unsigned.Challenge})
			return
		}
	}

	ok := signing.VerifyAt(s.config.Now(),
		s.config.SigningSecret,
		body,
		r.Header.Get(signing.TimestampHeader),
		r.Header.Get(signing.SignatureHeader),
	)
	if !ok {
		metrics.SignatureChecks.WithLabelValues("invalid").Inc()
		s.logger.Warn("event signature verification failed", "remote_addr", r.RemoteAddr)
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	metrics.SignatureChecks.WithLabelValues("valid").Inc()

	var cb dispatch.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if cb.Type == dispatch.TypeURLVerification {
		s.respondJSON(w, http.StatusOK, ChallengeResponse{Challenge: cb.Challenge})
		return
	}

	s.dispatcher.Dispatch(r.Context(), cb)
	s.respondJSON(w, http.StatusOK, OKResponse{OK: true})
}

// hasChallenge reports whether raw holds a challenge worth echoing. Absent,
// null and empty-string values do not count.
func hasChallenge(raw json.RawMessage) bool {
	v := string(bytes.TrimSpace(raw))
	return v != "" && v != "null" && v != `""`
}
