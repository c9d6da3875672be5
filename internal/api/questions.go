package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wschoenell/chimera-manager/internal/notify"
)

func (s *Server) handleListQuestions(w http.ResponseWriter, _ *http.Request) {
	qs := []notify.Question{}
	if s.questions != nil {
		qs = append(qs, s.questions.Questions()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs, "count": len(qs)})
}

type answerRequest struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// handleAnswer answers a pending question. The id comes from the path or
// the body; without either, the only pending question is answered.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if s.questions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "notifier not configured")
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
	}

	if err := s.questions.Answer(notify.Answer{ID: req.ID, Answer: req.Answer, From: subject(r)}); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "answer": req.Answer})
}
