package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/crm"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := s.CRM.Settings(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var u crm.SettingsUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.CRM.UpdateSettings(r.Context(), accountID(r), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type connectionResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleTestConnection reports a CRM rejection in the body; only local errors are non-2xx.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	err := s.CRM.TestConnection(r.Context(), accountID(r))
	var syncErr *crm.SyncError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, connectionResult{OK: true})
	case errors.As(err, &syncErr):
		writeJSON(w, http.StatusOK, connectionResult{OK: false, Error: syncErr.Error()})
	default:
		s.writeError(w, r, err)
	}
}

func (s *Server) handleSyncLogs(w http.ResponseWriter, r *http.Request) {
	entityID, err := optionalID(r.URL.Query().Get("entity_id"), "entity_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logs, err := s.CRM.SyncLogs(r.Context(), accountID(r), entityID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sync_logs": logs})
}

// handleWebhook is unauthenticated; the connector verifies the provider signature.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	acc, err := pathID(r, "account_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, r, common.InvalidInputf("read webhook body: %v", err))
		return
	}
	res, err := s.CRM.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), acc, body, r.Header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
