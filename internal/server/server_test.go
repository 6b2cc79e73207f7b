package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/async"
	"github.com/joseph-ayodele/compliance-tracker/internal/blob"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/crm"
	"github.com/joseph-ayodele/compliance-tracker/internal/entities"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/export"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm/mocks"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche/nichetest"
	"github.com/joseph-ayodele/compliance-tracker/internal/ocr"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository/repotest"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
	"github.com/joseph-ayodele/compliance-tracker/internal/server"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const fullCOI = `{"insured_name":"Sparky Electric","carrier":"Acme Mutual","policy_number":"GL-100",
	"effective_date":"01/01/2026","expiration_date":"2026-12-31","each_occurrence_limit":"$2,000,000"}`

type staticOCR struct{}

func (staticOCR) ExtractText(_ context.Context, _ []byte, mime string) (ocr.Result, error) {
	return ocr.Result{Text: "CERTIFICATE OF LIABILITY INSURANCE", Pages: 1, MimeType: mime, Backend: "static"}, nil
}

type countingQueue struct{ jobs []async.Job }

func (q *countingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *countingQueue) Shutdown(context.Context) {}

type harness struct {
	store     *repository.Store
	fx        repotest.Fixture
	box       *crm.Box
	queue     *countingQueue
	completer *mocks.MockCompleter
	handler   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repotest.Open(t)
	fx := repotest.Seed(t, store, "coi")
	niches := nichetest.Store(t)
	clock := func() time.Time { return now }
	log := repotest.Logger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	blobs, err := blob.NewLocal(t.TempDir(), log)
	require.NoError(t, err)
	box, err := crm.NewBox("test-key")
	require.NoError(t, err)

	reqs := requirement.NewService(store, niches, log, requirement.WithClock(clock))
	engine := workflow.NewEngine(store, reqs, niches, log)
	reqs.SetEvents(engine)

	h := &harness{store: store, fx: fx, box: box, queue: &countingQueue{},
		completer: mocks.NewMockCompleter(gomock.NewController(t))}
	extractor := llm.NewExtractor(h.completer, log, llm.WithRetryDelay(time.Millisecond))
	pipe := pipeline.NewService(store, niches, blobs, staticOCR{}, extractor, engine, reqs, log,
		pipeline.WithClock(clock), pipeline.WithMetrics(m))
	crmSvc := crm.NewService(store, crm.NewResolver(box, common.CRMConfig{}, log), box, log,
		crm.WithClock(clock), crm.WithMetrics(m))

	h.handler = server.New(server.Deps{
		Store:        store,
		Pipeline:     pipe,
		Requirements: reqs,
		Export:       export.NewService(store, log, export.WithClock(clock)),
		Entities:     entities.NewService(store, niches, engine, h.queue, log),
		CRM:          crmSvc,
		Gatherer:     reg,
		Logger:       log,
	}).Router()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-Account-ID", h.fx.Account.ID.String())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *harness) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return h.do(t, method, path, body, "application/json")
}

func (h *harness) upload(t *testing.T) *entity.Document {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("document_type", "coi"))
	require.NoError(t, mw.WriteField("entity_id", h.fx.Entity.ID.String()))
	fw, err := mw.CreateFormFile("file", "sparky-coi.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 certificate"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := h.do(t, http.MethodPost, "/api/v1/documents", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var doc entity.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	return &doc
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestDocumentLifecycle(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t)
	assert.Equal(t, constants.DocumentPending, doc.Status)
	assert.Equal(t, constants.MimePDF, doc.MimeType)

	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(fullCOI, nil)
	w := h.doJSON(t, http.MethodPost, "/api/v1/documents/"+doc.ID.String()+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	processed := decode[entity.Document](t, w)
	assert.Equal(t, constants.DocumentProcessed, processed.Status)

	t.Run("second process conflicts", func(t *testing.T) {
		w := h.doJSON(t, http.MethodPost, "/api/v1/documents/"+doc.ID.String()+"/process", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
	t.Run("retry of processed conflicts", func(t *testing.T) {
		w := h.doJSON(t, http.MethodPost, "/api/v1/documents/"+doc.ID.String()+"/retry", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
	t.Run("correction", func(t *testing.T) {
		w := h.doJSON(t, http.MethodPatch, "/api/v1/documents/"+doc.ID.String(),
			map[string]any{"extracted_data": map[string]any{"carrier": "Acme Mutual Insurance"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode[entity.Document](t, w)
		assert.Equal(t, "Acme Mutual Insurance", got.ExtractedData["carrier"])
		assert.Equal(t, 1.0, got.FieldConfidences["carrier"])
	})
	t.Run("summary counts the linked requirement", func(t *testing.T) {
		w := h.doJSON(t, http.MethodGet, "/api/v1/requirements/summary", nil)
		require.Equal(t, http.StatusOK, w.Code)
		sum := decode[requirement.Summary](t, w)
		assert.Equal(t, 1, sum.Total)
		assert.Equal(t, 1, sum.Counts[constants.RequirementCompliant])
	})
	t.Run("export", func(t *testing.T) {
		w := h.doJSON(t, http.MethodGet, "/api/v1/requirements/export.xlsx", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "compliance-2026-03-01.xlsx")
		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Requirements")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "2026-12-31", rows[1][4])
		assert.Equal(t, "yes", rows[1][7])
	})
}

func TestDocument_OtherAccountIsNotFound(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String(), nil)
	req.Header.Set("X-Account-ID", uuid.NewString())
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[map[string]string](t, w)["error"])
}

func TestAccountHeader(t *testing.T) {
	h := newHarness(t)
	for name, tc := range map[string]struct {
		header string
		status int
	}{
		"missing":   {"", http.StatusUnauthorized},
		"malformed": {"acct-1", http.StatusBadRequest},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/requirements/summary", nil)
			if tc.header != "" {
				req.Header.Set("X-Account-ID", tc.header)
			}
			w := httptest.NewRecorder()
			h.handler.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestUpload_RejectsUnknownType(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("document_type", "w9"))
	fw, err := mw.CreateFormFile("file", "w9.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	w := h.do(t, http.MethodPost, "/api/v1/documents", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequirementComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := &entity.Requirement{AccountID: h.fx.Account.ID, EntityID: h.fx.Entity.ID, RequirementTypeCode: "general_liability",
		Name: "General Liability", Status: constants.RequirementPending, Priority: "high"}
	_, err := h.store.Requirements.Create(ctx, req)
	require.NoError(t, err)

	w := h.doJSON(t, http.MethodPost, "/api/v1/requirements/"+req.ID.String()+"/complete", map[string]string{"reason": "verified by phone"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[entity.Requirement](t, w)
	assert.Equal(t, constants.RequirementCompliant, got.Status)
	assert.True(t, got.ManualOverride)

	events, err := h.store.Requirements.ListEvents(ctx, req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "verified by phone", events[len(events)-1].Reason)

	w = h.doJSON(t, http.MethodPost, "/api/v1/requirements/"+uuid.NewString()+"/complete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// An empty body of unknown length is the same as no body.
	w = h.do(t, http.MethodPost, "/api/v1/requirements/"+uuid.NewString()+"/complete", io.MultiReader(), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(t, http.MethodPost, "/api/v1/requirements/"+req.ID.String()+"/complete", io.MultiReader(), "application/json")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPost, "/api/v1/requirements/"+req.ID.String()+"/complete", strings.NewReader(`{"reason":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntities_CreateQueuesPush(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Accounts.UpdateCRMSettings(context.Background(), h.fx.Account.ID,
		entity.CRMSettings{Provider: crm.ProviderZapier, Enabled: true}))

	w := h.doJSON(t, http.MethodPost, "/api/v1/entities", map[string]any{"entity_type": "vendor", "name": "Bolt Roofing"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[entity.Entity](t, w)
	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, created.ID, h.queue.jobs[0].EntityID)

	w = h.doJSON(t, http.MethodPatch, "/api/v1/entities/"+created.ID.String(), map[string]any{"phone": "555-0100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, h.queue.jobs, 2)

	w = h.doJSON(t, http.MethodPost, "/api/v1/entities", map[string]any{"entity_type": "vendor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.doJSON(t, http.MethodGet, "/api/v1/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]entity.Entity](t, w)["entities"], 2)
}

func TestNotifications_StatusFilter(t *testing.T) {
	h := newHarness(t)
	w := h.doJSON(t, http.MethodGet, "/api/v1/notifications?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.doJSON(t, http.MethodGet, "/api/v1/notifications?status=bounced", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntegrations_SettingsRedacted(t *testing.T) {
	h := newHarness(t)
	w := h.doJSON(t, http.MethodPut, "/api/v1/integrations/settings", map[string]any{
		"provider": "hubspot", "enabled": true, "api_key": "pat-secret-1234",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "pat-secret-1234")

	w = h.doJSON(t, http.MethodGet, "/api/v1/integrations/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "pat-secret-1234")

	w = h.doJSON(t, http.MethodPut, "/api/v1/integrations/settings", map[string]any{"provider": "salesforce"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntegrations_TestConnectionNotConfigured(t *testing.T) {
	h := newHarness(t)
	w := h.doJSON(t, http.MethodPost, "/api/v1/integrations/test-connection", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook(t *testing.T) {
	h := newHarness(t)
	secret, err := h.box.Encrypt("zsecret")
	require.NoError(t, err)
	require.NoError(t, h.store.Accounts.UpdateCRMSettings(context.Background(), h.fx.Account.ID,
		entity.CRMSettings{Provider: crm.ProviderZapier, Enabled: true, WebhookSecret: secret}))
	body := `{"event":"contact.created","external_id":"z-1","data":{"email":"billing@sparky.test"}}`
	path := "/api/v1/webhooks/zapier/" + h.fx.Account.ID.String()

	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(crm.ZapierSignatureHeader, sig)
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, post(crm.Sign("wrong", []byte(body))).Code)

	w := post(crm.Sign("zsecret", []byte(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[crm.WebhookResult](t, w).Linked)

	w = h.doJSON(t, http.MethodGet, "/api/v1/integrations/sync-logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[map[string][]entity.SyncLog](t, w)["sync_logs"]
	assert.NotEmpty(t, logs)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	w := h.doJSON(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.doJSON(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
