package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func hubspotServer(t *testing.T, status int, reply string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newHubSpot(url, objectType string) *HubSpot {
	return NewHubSpot(HubSpotConfig{BaseURL: url, Token: "pat-123", ObjectType: objectType, WebhookSecret: "whsec", Timeout: time.Second}, discard())
}

func TestHubSpot_PushEntityCreate(t *testing.T) {
	srv, calls := hubspotServer(t, http.StatusCreated, `{"id":"9001"}`)
	hs := newHubSpot(srv.URL, "")

	res, err := hs.PushEntity(context.Background(), EntityPayload{
		EntityID:   uuid.New(),
		Properties: map[string]any{"name": "Sparky Electric", "phone": "", "vendor_tier": "gold"},
	})
	require.NoError(t, err)
	assert.Equal(t, constants.SyncCreate, res.Operation)
	assert.Equal(t, "9001", res.ExternalID)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/crm/v3/objects/companies", c.path)
	assert.Equal(t, "Bearer pat-123", c.auth)
	assert.Equal(t, map[string]any{"name": "Sparky Electric", "vendor_tier": "gold"}, c.body["properties"])
}

func TestHubSpot_PushEntityUpdateContact(t *testing.T) {
	srv, calls := hubspotServer(t, http.StatusOK, `{"id":"77"}`)
	hs := newHubSpot(srv.URL, "contacts")

	res, err := hs.PushEntity(context.Background(), EntityPayload{
		ExternalID: "77",
		Properties: map[string]any{"name": "Sam Spade", "email": "sam@example.test"},
	})
	require.NoError(t, err)
	assert.Equal(t, constants.SyncUpdate, res.Operation)
	assert.Equal(t, "77", res.ExternalID)

	c := (*calls)[0]
	assert.Equal(t, http.MethodPatch, c.method)
	assert.Equal(t, "/crm/v3/objects/contacts/77", c.path)
	assert.Equal(t, map[string]any{"lastname": "Sam Spade", "email": "sam@example.test"}, c.body["properties"])
}

func TestHubSpot_PushComplianceStatus(t *testing.T) {
	expiry := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	status := ComplianceStatus{Status: StatusExpiringSoon, Expiry: &expiry, LastUpdated: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	t.Run("ok", func(t *testing.T) {
		srv, calls := hubspotServer(t, http.StatusOK, `{}`)
		require.NoError(t, newHubSpot(srv.URL, "").PushComplianceStatus(context.Background(), "42", status))
		c := (*calls)[0]
		assert.Equal(t, "/crm/v3/objects/companies/42", c.path)
		assert.Equal(t, map[string]any{
			"compliance_status":       "expiring_soon",
			"compliance_expiry":       "2026-09-30",
			"compliance_last_updated": "2026-03-01T00:00:00Z",
		}, c.body["properties"])
	})

	t.Run("missing properties", func(t *testing.T) {
		srv, _ := hubspotServer(t, http.StatusBadRequest, `{"status":"error","message":"Property values were not valid","errors":[{"code":"PROPERTY_DOESNT_EXIST"}]}`)
		err := newHubSpot(srv.URL, "").PushComplianceStatus(context.Background(), "42", status)
		var syncErr *SyncError
		require.True(t, errors.As(err, &syncErr))
		assert.Equal(t, http.StatusBadRequest, syncErr.StatusCode)
		assert.Equal(t, constants.SyncCompliancePush, syncErr.Operation)
		assert.ErrorIs(t, err, errPropertiesMissing)
	})
}

func TestHubSpot_TestConnection(t *testing.T) {
	srv, calls := hubspotServer(t, http.StatusOK, `{"portalId":12345}`)
	require.NoError(t, newHubSpot(srv.URL, "").TestConnection(context.Background()))
	assert.Equal(t, "/account-info/v3/details", (*calls)[0].path)

	srv, _ = hubspotServer(t, http.StatusUnauthorized, `{"message":"Authentication credentials not found"}`)
	err := newHubSpot(srv.URL, "").TestConnection(context.Background())
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, http.StatusUnauthorized, syncErr.StatusCode)
	assert.Contains(t, err.Error(), "Authentication credentials not found")
}

func TestHubSpot_ReceiveWebhook(t *testing.T) {
	hs := newHubSpot("http://unused", "contacts")
	body := []byte(`[
		{"objectId": 101, "subscriptionType": "contact.creation", "changeSource": "CRM_UI"},
		{"objectId": 102, "subscriptionType": "contact.propertyChange", "propertyName": "lastname", "propertyValue": "Spade"},
		{"objectId": 103, "subscriptionType": "contact.propertyChange", "propertyName": "phone", "propertyValue": "555", "changeSource": "INTEGRATION"},
		{"objectId": 104, "subscriptionType": "contact.deletion"}
	]`)

	t.Run("valid", func(t *testing.T) {
		h := http.Header{}
		h.Set(HubSpotSignatureHeader, Sign("whsec", body))
		events, err := hs.ReceiveWebhook(context.Background(), body, h)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, EventContactCreated, events[0].Type)
		assert.Equal(t, "101", events[0].ExternalID)
		assert.Equal(t, EventContactUpdated, events[1].Type)
		assert.Equal(t, map[string]any{"name": "Spade"}, events[1].Data)
	})

	t.Run("bad signature", func(t *testing.T) {
		h := http.Header{}
		h.Set(HubSpotSignatureHeader, Sign("wrong", body))
		_, err := hs.ReceiveWebhook(context.Background(), body, h)
		var sigErr *WebhookSignatureError
		require.True(t, errors.As(err, &sigErr))
		assert.Equal(t, "invalid signature", sigErr.Reason)
	})

	t.Run("no secret configured", func(t *testing.T) {
		noSecret := NewHubSpot(HubSpotConfig{Token: "x"}, discard())
		h := http.Header{}
		h.Set(HubSpotSignatureHeader, Sign("whsec", body))
		_, err := noSecret.ReceiveWebhook(context.Background(), body, h)
		var sigErr *WebhookSignatureError
		require.True(t, errors.As(err, &sigErr))
		assert.Equal(t, "no webhook secret configured", sigErr.Reason)
	})
}
