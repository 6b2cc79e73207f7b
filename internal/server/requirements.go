package server

import (
	"fmt"
	"net/http"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
)

func (s *Server) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	acc := accountID(r)
	entityID, err := optionalID(r.URL.Query().Get("entity_id"), "entity_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reqs, err := s.Store.Requirements.List(r.Context(), repository.RequirementFilter{AccountID: &acc, EntityID: entityID})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requirements": reqs})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	entityID, err := optionalID(r.URL.Query().Get("entity_id"), "entity_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.Requirements.Summary(r.Context(), accountID(r), entityID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type completeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body completeRequest
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := common.NewValidator().Field("reason", body.Reason, common.MaxLength(500)).Err(); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.Store.Requirements.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.AccountID != accountID(r) {
		s.writeError(w, r, common.NotFoundf("requirement %s", id))
		return
	}
	out, err := s.Requirements.MarkComplete(r.Context(), id, actorID(r), body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	entityID, err := optionalID(r.URL.Query().Get("entity_id"), "entity_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.Export.ComplianceXLSX(r.Context(), accountID(r), entityID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := fmt.Sprintf("compliance-%s.xlsx", s.Requirements.Today().Format(niche.DateLayout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
