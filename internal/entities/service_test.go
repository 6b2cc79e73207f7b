package entities_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/internal/async"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entities"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche/nichetest"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository/repotest"
	"github.com/joseph-ayodele/compliance-tracker/internal/workflow"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

type recordingEvents struct {
	events []niche.TriggerEvent
}

func (r *recordingEvents) Fire(_ context.Context, event niche.TriggerEvent, subj *workflow.Subject) (workflow.Result, error) {
	r.events = append(r.events, event)
	return workflow.Result{}, nil
}

func setup(t *testing.T, crmEnabled bool) (*entities.Service, *repository.Store, repotest.Fixture, *recordingQueue, *recordingEvents) {
	t.Helper()
	store := repotest.Open(t)
	fx := repotest.Seed(t, store, "coi")
	if crmEnabled {
		require.NoError(t, store.Accounts.UpdateCRMSettings(context.Background(), fx.Account.ID,
			entity.CRMSettings{Provider: "hubspot", Enabled: true}))
	}
	q := &recordingQueue{}
	ev := &recordingEvents{}
	return entities.NewService(store, nichetest.Store(t), ev, q, repotest.Logger()), store, fx, q, ev
}

func strp(s string) *string { return &s }

func TestCreate_StoresFiresAndQueues(t *testing.T) {
	svc, store, fx, q, ev := setup(t, true)
	ctx := context.Background()

	e, err := svc.Create(ctx, entities.CreateInput{
		AccountID:    fx.Account.ID,
		TypeCode:     "vendor",
		Name:         "  Bolt Roofing ",
		Email:        strp("Office@Bolt.test"),
		Phone:        strp(" "),
		CustomFields: map[string]any{"trade": "general"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bolt Roofing", e.Name)
	assert.Nil(t, e.Phone)

	got, err := store.Entities.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "vendor", got.TypeCode)
	assert.Equal(t, []niche.TriggerEvent{niche.EventEntityCreated}, ev.events)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, e.ID, q.jobs[0].EntityID)
	assert.Equal(t, fx.Account.ID, q.jobs[0].AccountID)
	assert.Equal(t, "entity.created", q.jobs[0].Trigger)
}

func TestCreate_NoPushWhenCRMDisabled(t *testing.T) {
	svc, _, fx, q, _ := setup(t, false)
	_, err := svc.Create(context.Background(), entities.CreateInput{AccountID: fx.Account.ID, TypeCode: "vendor", Name: "Quiet Co"})
	require.NoError(t, err)
	assert.Empty(t, q.jobs)
}

func TestCreate_Rejects(t *testing.T) {
	svc, _, fx, q, _ := setup(t, true)
	cases := map[string]entities.CreateInput{
		"missing name":      {TypeCode: "vendor"},
		"unknown type":      {TypeCode: "vehicle", Name: "Truck 7"},
		"bad email":         {TypeCode: "vendor", Name: "X", Email: strp("nope")},
		"unknown field":     {TypeCode: "vendor", Name: "X", CustomFields: map[string]any{"color": "red"}},
		"bad select option": {TypeCode: "vendor", Name: "X", CustomFields: map[string]any{"trade": "roofing"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			in.AccountID = fx.Account.ID
			_, err := svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
	assert.Empty(t, q.jobs)
}

func TestUpdate_ScopedToAccount(t *testing.T) {
	svc, _, fx, q, ev := setup(t, true)
	ctx := context.Background()

	_, err := svc.Update(ctx, uuid.New(), fx.Entity.ID, entity.EntityPatch{Name: strp("Other")})
	assert.True(t, common.IsNotFound(err))

	e, err := svc.Update(ctx, fx.Account.ID, fx.Entity.ID, entity.EntityPatch{Name: strp("Sparky Electric LLC")})
	require.NoError(t, err)
	assert.Equal(t, "Sparky Electric LLC", e.Name)
	assert.Equal(t, []niche.TriggerEvent{niche.EventEntityUpdated}, ev.events)
	assert.Len(t, q.jobs, 1)
}
