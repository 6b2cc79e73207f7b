package server

import (
	"net/http"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

// handleListNotifications is the in-app view; ?status=failed lists permanently failed notices.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	err := common.NewValidator().Field("status", raw, common.OneOf(
		string(constants.NotificationPending),
		string(constants.NotificationSent),
		string(constants.NotificationFailed),
	)).Err()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var status *constants.NotificationStatus
	if raw != "" {
		st := constants.NotificationStatus(raw)
		status = &st
	}
	list, err := s.Store.Notifications.List(r.Context(), accountID(r), status, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}
