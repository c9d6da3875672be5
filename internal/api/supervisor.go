package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// stateResponse is the body of GET /supervisor.
type stateResponse struct {
	State   string `json:"state"`
	CanOpen bool   `json:"can_open"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	canOpen, err := s.sup.CanOpen(r.Context(), "")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{State: s.sup.State().String(), CanOpen: canOpen})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.sup.Start()
	s.logger.Info("supervisor started through api", "subject", subject(r))
	writeJSON(w, http.StatusOK, stateResponse{State: s.sup.State().String()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Stop(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("supervisor stopped through api", "subject", subject(r))
	writeJSON(w, http.StatusOK, stateResponse{State: s.sup.State().String()})
}

func (s *Server) handleWakeup(w http.ResponseWriter, _ *http.Request) {
	s.sup.Wakeup()
	writeJSON(w, http.StatusAccepted, stateResponse{State: s.sup.State().String()})
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Reply string `json:"reply"`
}

// handleCommand runs an operator command line, the same ones accepted on
// the MQTT command topic.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeBadRequest(w, "command is required")
		return
	}

	reply, err := s.sup.HandleCommand(r.Context(), req.Command)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Reply: reply})
}
