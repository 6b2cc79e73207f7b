package server

import (
	"net/http"

	"github.com/joseph-ayodele/compliance-tracker/internal/entities"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
)

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	list, err := s.Entities.List(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": list})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.Entities.Get(r.Context(), accountID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var in entities.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.AccountID = accountID(r)
	e, err := s.Entities.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var patch entity.EntityPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.Entities.Update(r.Context(), accountID(r), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
