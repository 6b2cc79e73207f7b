package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/blob"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm"
	"github.com/joseph-ayodele/compliance-tracker/internal/llm/mocks"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche/nichetest"
	"github.com/joseph-ayodele/compliance-tracker/internal/ocr"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository/repotest"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	pdfBytes = "%PDF-1.4 certificate"

	fullCOI = `{"insured_name":"Sparky Electric","carrier":"Acme Mutual","policy_number":"GL-100",
		"effective_date":"01/01/2026","expiration_date":"2026-12-31","each_occurrence_limit":"$2,000,000"}`
	partialCOI = `{"insured_name":"Sparky Electric","effective_date":"2026-01-01","expiration_date":"2026-12-31"}`
)

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) ExtractText(_ context.Context, _ []byte, mime string) (ocr.Result, error) {
	f.calls++
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Text: f.text, Pages: 1, MimeType: mime, Backend: "fake"}, nil
}

type harness struct {
	store     *repository.Store
	fx        repotest.Fixture
	ocr       *fakeOCR
	completer *mocks.MockCompleter
	svc       *pipeline.Service
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repotest.Open(t)
	fx := repotest.Seed(t, store, "coi")
	niches := nichetest.Store(t)
	clock := func() time.Time { return now }

	blobs, err := blob.NewLocal(t.TempDir(), repotest.Logger())
	require.NoError(t, err)
	reqs := requirement.NewService(store, niches, repotest.Logger(), requirement.WithClock(clock))
	engine := workflow.NewEngine(store, reqs, niches, repotest.Logger())
	reqs.SetEvents(engine)

	h := &harness{
		store:     store,
		fx:        fx,
		ocr:       &fakeOCR{text: "CERTIFICATE OF LIABILITY INSURANCE"},
		completer: mocks.NewMockCompleter(gomock.NewController(t)),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	extractor := llm.NewExtractor(h.completer, repotest.Logger(), llm.WithRetryDelay(time.Millisecond))
	h.svc = pipeline.NewService(store, niches, blobs, h.ocr, extractor, engine, reqs, repotest.Logger(),
		pipeline.WithClock(clock), pipeline.WithMetrics(h.metrics))
	return h
}

func (h *harness) upload(t *testing.T) *entity.Document {
	t.Helper()
	doc, err := h.svc.Upload(context.Background(), pipeline.UploadInput{
		AccountID:        h.fx.Account.ID,
		EntityID:         &h.fx.Entity.ID,
		DocumentTypeCode: "coi",
		FileName:         "sparky-coi.pdf",
		MimeType:         constants.MimePDF,
		Data:             []byte(pdfBytes),
	})
	require.NoError(t, err)
	return doc
}

func (h *harness) modelReturns(content string) {
	h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(content, nil)
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t)
	assert.Equal(t, constants.DocumentPending, doc.Status)
	assert.Equal(t, int64(len(pdfBytes)), doc.SizeBytes)
	assert.Contains(t, doc.StorageKey, doc.ID.String()+".pdf")

	t.Run("rejects mime the type does not accept", func(t *testing.T) {
		_, err := h.svc.Upload(context.Background(), pipeline.UploadInput{
			AccountID: h.fx.Account.ID, DocumentTypeCode: "coi", FileName: "notes.txt", Data: []byte("plain text notes"),
		})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := h.svc.Upload(context.Background(), pipeline.UploadInput{
			AccountID: h.fx.Account.ID, DocumentTypeCode: "w9", FileName: "w9.pdf", MimeType: constants.MimePDF, Data: []byte(pdfBytes),
		})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
}

func TestProcess_HighConfidenceLinksRequirement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)
	h.modelReturns(fullCOI)

	out, err := h.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentProcessed, out.Status)
	require.NotNil(t, out.ExtractionConfidence)
	assert.GreaterOrEqual(t, *out.ExtractionConfidence, 0.8)
	assert.Equal(t, "2026-01-01", out.ExtractedData["effective_date"])
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, out.FlaggedFields)

	req, err := h.store.Requirements.GetByKey(ctx, h.fx.Entity.ID, "general_liability")
	require.NoError(t, err)
	require.NotNil(t, req.DocumentID)
	assert.Equal(t, doc.ID, *req.DocumentID)
	require.NotNil(t, req.DueDate)
	assert.Equal(t, "2026-12-31", req.DueDate.Format("2006-01-02"))
	assert.Equal(t, constants.RequirementCompliant, req.Status)

	events, err := h.store.Requirements.ListEvents(ctx, req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, constants.RequirementCompliant, events[len(events)-1].ToStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PipelineOutcomes.WithLabelValues("processed")))

	_, err = h.svc.Process(ctx, doc.ID)
	assert.ErrorIs(t, err, pipeline.ErrInvalidTransition, "a terminal document cannot be processed again")
}

func TestProcess_LowConfidenceNeedsReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)
	h.modelReturns(partialCOI)

	out, err := h.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentNeedsReview, out.Status)
	assert.Less(t, *out.ExtractionConfidence, 0.8)
	assert.Equal(t, llm.FlagMissingRequired, out.FlaggedFields["carrier"])
	assert.Equal(t, 0.0, out.FieldConfidences["policy_number"])

	_, err = h.store.Requirements.GetByKey(ctx, h.fx.Entity.ID, "general_liability")
	assert.True(t, common.IsNotFound(err), "needs_review does not link")
}

func TestProcess_ClaimIsExclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)

	won, err := h.store.Documents.Claim(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, won)

	_, err = h.svc.Process(ctx, doc.ID)
	assert.ErrorIs(t, err, pipeline.ErrAlreadyProcessing)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Zero(t, h.ocr.calls)
}

func TestProcess_FailuresAreRecorded(t *testing.T) {
	cases := []struct {
		name      string
		ocrErr    error
		model     string
		modelErr  error
		wantErr   string
		retriable bool
	}{
		{
			name:    "corrupt pdf",
			ocrErr:  &ocr.Error{Kind: ocr.KindCorrupt, Err: errors.New("bad xref")},
			wantErr: "ocr corrupt",
		},
		{
			name:      "ocr timeout",
			ocrErr:    &ocr.Error{Kind: ocr.KindTimeout, Retriable: true, Err: context.DeadlineExceeded},
			wantErr:   "ocr timeout",
			retriable: true,
		},
		{
			name:     "model rejects request",
			modelErr: &llm.TransportError{StatusCode: 400, Err: errors.New("context length exceeded")},
			wantErr:  "extraction failed after 1 attempt",
		},
		{
			name: "validation rule",
			model: `{"insured_name":"Sparky Electric","carrier":"Acme Mutual","policy_number":"GL-100",
				"effective_date":"2026-06-01","expiration_date":"2026-01-01"}`,
			wantErr: "validation rule date_after failed for expiration_date: Expiration date must be after effective date",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.ocr.err = tc.ocrErr
			switch {
			case tc.modelErr != nil:
				h.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", tc.modelErr)
			case tc.model != "":
				h.modelReturns(tc.model)
			}
			doc := h.upload(t)

			out, err := h.svc.Process(context.Background(), doc.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.DocumentFailed, out.Status)
			require.NotNil(t, out.ProcessingError)
			assert.Contains(t, *out.ProcessingError, tc.wantErr)
			assert.Equal(t, tc.retriable, out.ErrorRetriable)
		})
	}
}

func TestRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)

	_, err := h.svc.Retry(ctx, h.fx.Account.ID, doc.ID)
	assert.ErrorIs(t, err, pipeline.ErrInvalidTransition, "pending cannot be retried")

	h.ocr.err = &ocr.Error{Kind: ocr.KindBackend, Retriable: true, Err: errors.New("vision 503")}
	out, err := h.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocumentFailed, out.Status)

	out, err = h.svc.Retry(ctx, h.fx.Account.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentPending, out.Status)
	assert.Nil(t, out.ProcessingError)

	h.ocr.err = nil
	h.modelReturns(fullCOI)
	out, err = h.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentProcessed, out.Status)
	assert.Equal(t, 2, out.Attempts)
}

func TestCorrect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)

	_, err := h.svc.Correct(ctx, h.fx.Account.ID, doc.ID, pipeline.Correction{ExtractedData: map[string]any{"carrier": "x"}})
	assert.ErrorIs(t, err, pipeline.ErrInvalidTransition)

	h.modelReturns(partialCOI)
	before, err := h.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocumentNeedsReview, before.Status)

	_, err = h.svc.Correct(ctx, h.fx.Account.ID, doc.ID, pipeline.Correction{ExtractedData: map[string]any{"premium": "1"}})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	out, err := h.svc.Correct(ctx, h.fx.Account.ID, doc.ID, pipeline.Correction{ExtractedData: map[string]any{
		"carrier":       "  Acme Mutual ",
		"policy_number": "GL-100",
	}})
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentNeedsReview, out.Status, "status is not changed by a correction")
	assert.Equal(t, "Acme Mutual", out.ExtractedData["carrier"])
	assert.Equal(t, 1.0, out.FieldConfidences["carrier"])
	assert.NotContains(t, out.FlaggedFields, "policy_number")
	assert.Equal(t, *before.ExtractionConfidence, *out.ExtractionConfidence, "needs_review keeps the extraction score")
	assert.Equal(t, 1, h.ocr.calls, "correction does not rerun ocr")

	req, err := h.store.Requirements.GetByKey(ctx, h.fx.Entity.ID, "general_liability")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, *req.DocumentID)
	assert.Equal(t, "2026-12-31", req.DueDate.Format("2006-01-02"))
	assert.Equal(t, constants.RequirementPending, req.Status, "a needs_review document does not make the requirement compliant")
}

func TestCorrect_KeepsRequiredFieldsAndTypes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)
	h.modelReturns(fullCOI)
	before, err := h.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, constants.DocumentProcessed, before.Status)

	for name, edit := range map[string]map[string]any{
		"null required":  {"policy_number": nil},
		"blank required": {"carrier": "   "},
		"bad number":     {"each_occurrence_limit": "plenty"},
		"bad date":       {"expiration_date": "someday"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Correct(ctx, h.fx.Account.ID, doc.ID, pipeline.Correction{ExtractedData: edit})
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}

	got, err := h.svc.Get(ctx, h.fx.Account.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "GL-100", got.ExtractedData["policy_number"])
	assert.Equal(t, *before.ExtractionConfidence, *got.ExtractionConfidence)
	assert.Empty(t, got.FlaggedFields)

	out, err := h.svc.Correct(ctx, h.fx.Account.ID, doc.ID, pipeline.Correction{ExtractedData: map[string]any{"each_occurrence_limit": nil}})
	require.NoError(t, err, "optional fields may be cleared")
	assert.Nil(t, out.ExtractedData["each_occurrence_limit"])
	assert.Equal(t, constants.DocumentProcessed, out.Status)
	assert.GreaterOrEqual(t, *out.ExtractionConfidence, 0.8)
	assert.Empty(t, out.FlaggedFields)
}

func TestGetScopedToAccount(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t)
	other := &entity.Account{Name: "Other", NicheID: "coi", Active: true}
	require.NoError(t, h.store.Accounts.Create(context.Background(), other))

	_, err := h.svc.Get(context.Background(), other.ID, doc.ID)
	assert.True(t, common.IsNotFound(err))
}
