package webhook

import (
	"bytes"
	"net/http"
)

type completedPage struct {
	ProjectID string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "index.html", nil)
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "completed.html", completedPage{ProjectID: r.URL.Query().Get("projectId")})
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("failed to render page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
