package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

type zapierHit struct {
	path      string
	signature string
	raw       []byte
	payload   zapierPayload
}

func zapierServer(t *testing.T, status int) (*httptest.Server, *[]zapierHit) {
	t.Helper()
	var hits []zapierHit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		hit := zapierHit{path: r.URL.Path, signature: r.Header.Get(ZapierSignatureHeader), raw: raw}
		require.NoError(t, json.Unmarshal(raw, &hit.payload))
		hits = append(hits, hit)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newZapier(base string) *Zapier {
	z := NewZapier(ZapierConfig{
		WebhookURLs: map[string]string{
			ZapierEntityCreated:     base + "/created",
			ZapierEntityUpdated:     base + "/updated",
			ZapierComplianceChanged: base + "/compliance",
		},
		WebhookSecret: "zsecret",
	}, discard())
	z.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return z
}

func TestZapier_PushEntity(t *testing.T) {
	srv, hits := zapierServer(t, http.StatusOK)
	z := newZapier(srv.URL)
	id := uuid.New()

	res, err := z.PushEntity(context.Background(), EntityPayload{EntityID: id, Properties: map[string]any{"name": "Sparky"}})
	require.NoError(t, err)
	assert.Equal(t, constants.SyncCreate, res.Operation)
	assert.Empty(t, res.ExternalID, "zapier assigns no id")

	res, err = z.PushEntity(context.Background(), EntityPayload{EntityID: id, ExternalID: "crm-1", Properties: map[string]any{"name": "Sparky"}})
	require.NoError(t, err)
	assert.Equal(t, constants.SyncUpdate, res.Operation)

	require.Len(t, *hits, 2)
	created := (*hits)[0]
	assert.Equal(t, "/created", created.path)
	assert.Equal(t, ZapierEntityCreated, created.payload.Event)
	assert.Equal(t, "2026-03-01T08:00:00Z", created.payload.Timestamp)
	assert.Equal(t, "Sparky", created.payload.Data["name"])
	assert.Equal(t, id.String(), created.payload.Data["entity_id"])
	assert.Equal(t, Sign("zsecret", created.raw), created.signature)

	updated := (*hits)[1]
	assert.Equal(t, "/updated", updated.path)
	assert.Equal(t, "crm-1", updated.payload.Data["external_id"])
}

func TestZapier_ComplianceAndErrors(t *testing.T) {
	srv, hits := zapierServer(t, http.StatusAccepted)
	z := newZapier(srv.URL)
	require.NoError(t, z.PushComplianceStatus(context.Background(), "crm-1", ComplianceStatus{Status: StatusNonCompliant, LastUpdated: time.Now()}))
	assert.Equal(t, "/compliance", (*hits)[0].path)
	assert.Equal(t, "non_compliant", (*hits)[0].payload.Data["compliance_status"])

	down, _ := zapierServer(t, http.StatusInternalServerError)
	err := newZapier(down.URL).TestConnection(context.Background())
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, http.StatusInternalServerError, syncErr.StatusCode)
	assert.Equal(t, constants.SyncTestConnection, syncErr.Operation)

	bare := NewZapier(ZapierConfig{}, discard())
	_, err = bare.PushEntity(context.Background(), EntityPayload{})
	require.True(t, errors.As(err, &syncErr))
	assert.Contains(t, err.Error(), "no webhook URL configured for entity_created")
	assert.Contains(t, bare.TestConnection(context.Background()).Error(), "no webhook URLs configured")
}

func TestZapier_ReceiveWebhook(t *testing.T) {
	z := newZapier("http://unused")
	body := []byte(`{"event":"contact.created","external_id":"crm-9","data":{"email":"billing@sparky.test"}}`)

	h := http.Header{}
	h.Set(ZapierSignatureHeader, Sign("zsecret", body))
	events, err := z.ReceiveWebhook(context.Background(), body, h)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventContactCreated, events[0].Type)
	assert.Equal(t, "crm-9", events[0].ExternalID)
	assert.Equal(t, "billing@sparky.test", events[0].Data["email"])

	_, err = z.ReceiveWebhook(context.Background(), body, http.Header{})
	var sigErr *WebhookSignatureError
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, "missing signature", sigErr.Reason)

	notJSON := []byte("event=contact.created")
	h.Set(ZapierSignatureHeader, Sign("zsecret", notJSON))
	_, err = z.ReceiveWebhook(context.Background(), notJSON, h)
	var syncErr *SyncError
	assert.True(t, errors.As(err, &syncErr))
}
