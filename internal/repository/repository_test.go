package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository/repotest"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func newDocument(t *testing.T, s *repository.Store, fx repotest.Fixture) *entity.Document {
	t.Helper()
	doc := &entity.Document{
		AccountID:        fx.Account.ID,
		EntityID:         &fx.Entity.ID,
		DocumentTypeCode: "coi",
		FileName:         "coi.pdf",
		MimeType:         constants.MimePDF,
		StorageKey:       "k/coi.pdf",
		SizeBytes:        42,
	}
	require.NoError(t, s.Documents.Create(context.Background(), doc))
	return doc
}

func TestDocuments_ClaimIsAtomic(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	doc := newDocument(t, s, fx)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Documents.Claim(ctx, doc.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := s.Documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestDocuments_CompleteRequiresProcessing(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	doc := newDocument(t, s, fx)
	ctx := context.Background()

	conf := 0.91
	outcome := repository.DocumentOutcome{
		ID:                   doc.ID,
		Status:               constants.DocumentProcessed,
		ExtractedData:        map[string]any{"expiration_date": "2025-06-30"},
		FieldConfidences:     map[string]float64{"expiration_date": 0.95},
		ExtractionConfidence: &conf,
		ProcessedAt:          time.Now(),
	}
	err := s.Documents.Complete(ctx, outcome)
	assert.ErrorIs(t, err, repository.ErrStaleState, "pending cannot jump to processed")

	ok, err := s.Documents.Claim(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Documents.Complete(ctx, outcome))

	got, err := s.Documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentProcessed, got.Status)
	require.NotNil(t, got.ExtractionConfidence)
	assert.InDelta(t, 0.91, *got.ExtractionConfidence, 1e-9)
	assert.Equal(t, "2025-06-30", got.ExtractedData["expiration_date"])
	assert.NotNil(t, got.ProcessedAt)

	ok, err = s.Documents.Reset(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok, "only failed documents can be reset")
}

func TestDocuments_ResetFailed(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	doc := newDocument(t, s, fx)
	ctx := context.Background()

	_, err := s.Documents.Claim(ctx, doc.ID)
	require.NoError(t, err)
	msg := "ocr timeout"
	require.NoError(t, s.Documents.Complete(ctx, repository.DocumentOutcome{
		ID: doc.ID, Status: constants.DocumentFailed, ProcessingError: &msg, ErrorRetriable: true, ProcessedAt: time.Now(),
	}))

	ok, err := s.Documents.Reset(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentPending, got.Status)
	assert.Nil(t, got.ProcessingError)
	assert.Nil(t, got.ExtractionConfidence)
}

func TestRequirements_CreateIsKeyedByEntityAndType(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()

	first := &entity.Requirement{
		AccountID: fx.Account.ID, EntityID: fx.Entity.ID, RequirementTypeCode: "general_liability",
		Name: "General Liability", Priority: "high", DueDate: day("2025-01-31"),
	}
	created, err := s.Requirements.Create(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &entity.Requirement{
		AccountID: fx.Account.ID, EntityID: fx.Entity.ID, RequirementTypeCode: "general_liability",
		Name: "Duplicate", Priority: "low",
	}
	created, err = s.Requirements.Create(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)
	assert.Equal(t, "General Liability", dup.Name)

	got, err := s.Requirements.GetByKey(ctx, fx.Entity.ID, "general_liability")
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2025-01-31", got.DueDate.Format("2006-01-02"))
	assert.Equal(t, constants.RequirementPending, got.Status)

	_, err = s.Requirements.GetByKey(ctx, fx.Entity.ID, "workers_comp")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRequirements_SaveAndCount(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()

	for i, code := range []string{"a", "b", "c"} {
		req := &entity.Requirement{AccountID: fx.Account.ID, EntityID: fx.Entity.ID, RequirementTypeCode: code, Name: code, Priority: "medium"}
		_, err := s.Requirements.Create(ctx, req)
		require.NoError(t, err)
		if i == 0 {
			req.Status = constants.RequirementExpired
			req.DueDate = day("2024-01-01")
			require.NoError(t, s.Requirements.Save(ctx, req))
		}
	}

	counts, err := s.Requirements.CountByStatus(ctx, repository.RequirementFilter{AccountID: &fx.Account.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[constants.RequirementExpired])
	assert.Equal(t, 2, counts[constants.RequirementPending])
	assert.Equal(t, 0, counts[constants.RequirementCompliant])

	withDue, err := s.Requirements.List(ctx, repository.RequirementFilter{HasDueDate: true})
	require.NoError(t, err)
	assert.Len(t, withDue, 1)

	other := uuid.New()
	counts, err = s.Requirements.CountByStatus(ctx, repository.RequirementFilter{AccountID: &other})
	require.NoError(t, err)
	assert.Equal(t, 0, counts[constants.RequirementPending])
}

func TestRequirements_Events(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()
	req := &entity.Requirement{AccountID: fx.Account.ID, EntityID: fx.Entity.ID, RequirementTypeCode: "gl", Name: "GL", Priority: "high"}
	_, err := s.Requirements.Create(ctx, req)
	require.NoError(t, err)

	require.NoError(t, s.Requirements.AppendEvent(ctx, &entity.RequirementStatusEvent{
		RequirementID: req.ID, FromStatus: constants.RequirementPending, ToStatus: constants.RequirementCompliant,
		Source: constants.StatusSourceManualOverride, ActorID: &fx.Owner.ID, Reason: "marked complete",
	}))
	events, err := s.Requirements.ListEvents(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, constants.StatusSourceManualOverride, events[0].Source)
	assert.Equal(t, fx.Owner.ID, *events[0].ActorID)
}

func TestNotifications_InsertIfAbsentIsIdempotent(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()
	req := &entity.Requirement{AccountID: fx.Account.ID, EntityID: fx.Entity.ID, RequirementTypeCode: "gl", Name: "GL", Priority: "high"}
	_, err := s.Requirements.Create(ctx, req)
	require.NoError(t, err)

	mk := func() *entity.Notification {
		threshold := 14
		return &entity.Notification{
			AccountID: fx.Account.ID, RequirementID: req.ID, RecipientID: &fx.Owner.ID,
			Type: constants.NotificationExpiring, NoticeDate: *day("2025-01-17"), ThresholdDays: &threshold,
			Context: map[string]any{"days": 14},
		}
	}
	inserted, err := s.Notifications.InsertIfAbsent(ctx, mk())
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = s.Notifications.InsertIfAbsent(ctx, mk())
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := s.Notifications.ListByRequirement(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2025-01-17", all[0].NoticeDate.Format("2006-01-02"))
	assert.Equal(t, 14, *all[0].ThresholdDays)
}

func TestNotifications_FailureLifecycle(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()
	req := &entity.Requirement{AccountID: fx.Account.ID, EntityID: fx.Entity.ID, RequirementTypeCode: "gl", Name: "GL", Priority: "high"}
	_, err := s.Requirements.Create(ctx, req)
	require.NoError(t, err)

	n := &entity.Notification{AccountID: fx.Account.ID, RequirementID: req.ID, Type: constants.NotificationOverdue, NoticeDate: *day("2025-02-01")}
	_, err = s.Notifications.InsertIfAbsent(ctx, n)
	require.NoError(t, err)

	due, err := s.Notifications.ListDue(ctx, time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)

	for attempt := 1; attempt <= 3; attempt++ {
		status, err := s.Notifications.RecordFailure(ctx, n.ID, "smtp down", 3)
		require.NoError(t, err)
		if attempt < 3 {
			assert.Equal(t, constants.NotificationPending, status)
		} else {
			assert.Equal(t, constants.NotificationFailed, status)
		}
	}
	failed := constants.NotificationFailed
	listed, err := s.Notifications.List(ctx, fx.Account.ID, &failed, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 3, listed[0].DeliveryAttempts)
	assert.Equal(t, "smtp down", *listed[0].LastError)

	due, err = s.Notifications.ListDue(ctx, time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestEntities_LinkingLookups(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()

	found, err := s.Entities.FindUnlinkedByEmail(ctx, fx.Account.ID, "BILLING@sparky.test")
	require.NoError(t, err)
	assert.Equal(t, fx.Entity.ID, found.ID)

	require.NoError(t, s.Entities.SetExternalID(ctx, fx.Entity.ID, "hs-123", "hubspot"))
	_, err = s.Entities.FindUnlinkedByEmail(ctx, fx.Account.ID, "billing@sparky.test")
	assert.ErrorIs(t, err, common.ErrNotFound)

	byExt, err := s.Entities.FindByExternalID(ctx, fx.Account.ID, "hs-123")
	require.NoError(t, err)
	assert.Equal(t, "hubspot", *byExt.ExternalSource)

	name := "Sparky Electric LLC"
	updated, err := s.Entities.Update(ctx, fx.Entity.ID, entity.EntityPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, "vendor", updated.TypeCode)

	linked, err := s.Entities.ListLinked(ctx, fx.Account.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 1)
}

func TestAccounts_RecordSync(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()

	require.NoError(t, s.Accounts.UpdateCRMSettings(ctx, fx.Account.ID, entity.CRMSettings{Provider: "hubspot", Enabled: true, APIKey: "enc:v1:xyz"}))
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Accounts.RecordSync(ctx, fx.Account.ID, at, "success"))

	acc, err := s.Accounts.Get(ctx, fx.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "hubspot", acc.CRM.Provider)
	assert.Equal(t, "enc:v1:xyz", acc.CRM.APIKey)
	assert.Equal(t, "success", acc.CRM.LastSyncStatus)
	require.NotNil(t, acc.CRM.LastSyncAt)
	assert.True(t, at.Equal(*acc.CRM.LastSyncAt))
}

func TestUsers_FirstActive(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()

	owner, err := s.Users.FirstActive(ctx, fx.Account.ID, entity.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, fx.Owner.ID, owner.ID)

	anyone, err := s.Users.FirstActive(ctx, fx.Account.ID, "")
	require.NoError(t, err)
	assert.Equal(t, fx.Owner.ID, anyone.ID)

	_, err = s.Users.FirstActive(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSyncLogs_InsertOnly(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()

	msg := "invalid signature"
	require.NoError(t, s.SyncLogs.Insert(ctx, &entity.SyncLog{
		AccountID: fx.Account.ID, Provider: "hubspot", Operation: constants.SyncWebhookReceived,
		Direction: constants.SyncPull, Status: constants.SyncFailed, ErrorMessage: &msg,
	}))
	logs, err := s.SyncLogs.List(ctx, fx.Account.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].ExternalID)
	assert.Nil(t, logs[0].EntityID)
	assert.Equal(t, constants.SyncFailed, logs[0].Status)
}

func TestWithTx_RollsBack(t *testing.T) {
	s := repotest.Open(t)
	fx := repotest.Seed(t, s, "coi")
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		req := &entity.Requirement{AccountID: fx.Account.ID, EntityID: fx.Entity.ID, RequirementTypeCode: "gl", Name: "GL", Priority: "high"}
		if _, err := s.Requirements.Create(ctx, req); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := s.Requirements.List(ctx, repository.RequirementFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
