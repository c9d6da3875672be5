package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wschoenell/chimera-manager/internal/instrument"
)

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	all, err := s.sup.Instruments(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if all == nil {
		all = []instrument.Status{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"instruments": all, "count": len(all)})
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	all, err := s.sup.Instruments(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	for _, st := range all {
		if st.Instrument == name {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	s.writeDomainError(w, r, fmt.Errorf("%w: %s", instrument.ErrNotFound, name))
}

type flagRequest struct {
	Flag string `json:"flag"`
}

// handleSetFlag writes a flag. A lock held by active keys yields 409.
func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	flag, err := instrument.ParseFlag(req.Flag)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.sup.SetFlag(r.Context(), name, flag); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("flag set through api", "instrument", name, "flag", flag.String(), "subject", subject(r))
	s.writeFlag(w, r, name)
}

type keyRequest struct {
	Key string `json:"key"`
}

func decodeKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return "", false
	}
	if req.Key == "" {
		writeBadRequest(w, "key is required")
		return "", false
	}
	return req.Key, true
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	if err := s.sup.LockInstrument(r.Context(), name, key); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("instrument locked through api", "instrument", name, "key", key, "subject", subject(r))
	s.writeFlag(w, r, name)
}

// handleUnlock releases a key. The response carries "unlocked": false
// while other keys still hold the instrument.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	unlocked, err := s.sup.UnlockInstrument(r.Context(), name, key)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	flag, err := s.sup.GetFlag(r.Context(), name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instrument": name, "flag": flag, "unlocked": unlocked})
}

// handleCanOpen answers for one instrument, or for the whole observatory
// when no name is in the path.
func (s *Server) handleCanOpen(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ok, err := s.sup.CanOpen(r.Context(), name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instrument": name, "can_open": ok})
}

func (s *Server) writeFlag(w http.ResponseWriter, r *http.Request, name string) {
	flag, err := s.sup.GetFlag(r.Context(), name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instrument": name, "flag": flag})
}
