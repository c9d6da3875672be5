package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wschoenell/chimera-manager/internal/checklist"
)

// handleListItems returns every item. ?active=true|false filters.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.sup.Items(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	switch r.URL.Query().Get("active") {
	case "":
	case "true", "false":
		want := r.URL.Query().Get("active") == "true"
		filtered := items[:0]
		for _, it := range items {
			if it.Active == want {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	default:
		writeBadRequest(w, "active must be true or false")
		return
	}

	if items == nil {
		items = []checklist.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	items, err := s.sup.Items(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	for _, it := range items {
		if it.Name == name {
			writeJSON(w, http.StatusOK, it)
			return
		}
	}
	s.writeDomainError(w, r, fmt.Errorf("%w: %s", checklist.ErrItemNotFound, name))
}

func (s *Server) handleActivateItem(w http.ResponseWriter, r *http.Request) {
	s.setItemActive(w, r, true)
}

func (s *Server) handleDeactivateItem(w http.ResponseWriter, r *http.Request) {
	s.setItemActive(w, r, false)
}

func (s *Server) setItemActive(w http.ResponseWriter, r *http.Request, active bool) {
	name := chi.URLParam(r, "name")
	var err error
	if active {
		err = s.sup.Activate(r.Context(), name)
	} else {
		err = s.sup.Deactivate(r.Context(), name)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "active": active})
}

// handleRunItem runs the responses of an inactive item. Active items are
// refused with 409.
func (s *Server) handleRunItem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.sup.RunInactive(r.Context(), name); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("item run through api", "item", name, "subject", subject(r))
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "status": "done"})
}
