package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

// requireAccount reads the caller's account from X-Account-ID and the optional
// operator from X-User-ID.
func (s *Server) requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(headerAccountID))
		if raw == "" {
			s.writeError(w, r, common.NewAppError("UNAUTHORIZED", headerAccountID+" header is required", common.ErrUnauthorized))
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, r, common.InvalidInputf("%s must be a UUID", headerAccountID))
			return
		}
		ctx := common.WithAccountID(r.Context(), id)
		if user, err := uuid.Parse(r.Header.Get(headerUserID)); err == nil {
			ctx = common.WithUserID(ctx, user)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountID(r *http.Request) uuid.UUID {
	return common.AccountIDFromContext(r.Context())
}

func actorID(r *http.Request) *uuid.UUID {
	return common.UserIDFromContext(r.Context())
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, common.InvalidInputf("%s must be a UUID", name)
	}
	return id, nil
}

func optionalID(raw, name string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, common.InvalidInputf("%s must be a UUID", name)
	}
	return &id, nil
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, common.InvalidInputf("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}
