package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche/nichetest"
	"github.com/joseph-ayodele/compliance-tracker/internal/notify"
	"github.com/joseph-ayodele/compliance-tracker/internal/notify/email"
	"github.com/joseph-ayodele/compliance-tracker/internal/notify/email/mocks"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository/repotest"
)

func (h *harness) dispatcher(t *testing.T, sender email.Sender, niches *niche.Store) *notify.Dispatcher {
	t.Helper()
	if niches == nil {
		niches = nichetest.Store(t)
	}
	return notify.NewDispatcher(h.store, niches, sender, repotest.Logger(),
		notify.WithAppURL("https://app.example.test/"),
		notify.WithClock(func() time.Time { return now }),
		notify.WithMetrics(h.metrics),
	)
}

func (h *harness) insert(t *testing.T, req *entity.Requirement, typ constants.NotificationType, mutate ...func(*entity.Notification)) *entity.Notification {
	t.Helper()
	n := &entity.Notification{
		AccountID:     req.AccountID,
		RequirementID: req.ID,
		RecipientID:   &h.fx.Owner.ID,
		Type:          typ,
		NoticeDate:    *day(0),
		ScheduledAt:   *day(0),
	}
	for _, m := range mutate {
		m(n)
	}
	inserted, err := h.store.Notifications.InsertIfAbsent(context.Background(), n)
	require.NoError(t, err)
	require.True(t, inserted)
	return n
}

func TestDispatcher_SendsAndMarksSent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.addRequirement(t, day(10))
	_, err := h.generator.Run(ctx, now)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg email.Message) (string, error) {
		assert.Equal(t, "owner@acme.test", msg.To)
		assert.Equal(t, "Olive", msg.ToName)
		assert.Equal(t, "Sparky Electric: General liability expires soon", msg.Subject)
		assert.Contains(t, msg.TextBody, "expires in 10 days (2026-03-11)")
		return "msg-1", nil
	})

	d := h.dispatcher(t, sender, nil)
	stats, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, notify.DispatchStats{Claimed: 1, Sent: 1}, stats)

	list, err := h.store.Notifications.ListByRequirement(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, constants.NotificationSent, n.Status)
	require.NotNil(t, n.ExternalID)
	assert.Equal(t, "msg-1", *n.ExternalID)
	require.NotNil(t, n.Subject)
	assert.Equal(t, "Sparky Electric: General liability expires soon", *n.Subject)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DispatchResults.WithLabelValues("sent")))

	stats, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed)
}

func TestDispatcher_ThresholdTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRequirement(t, day(30))
	_, err := h.generator.Run(ctx, now)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg email.Message) (string, error) {
		assert.Equal(t, "Sparky Electric: General liability expires in 30 days", msg.Subject)
		assert.Contains(t, msg.TextBody, "Hi Olive,")
		assert.Contains(t, msg.TextBody, "https://app.example.test/entities/"+h.fx.Entity.ID.String())
		return "msg-2", nil
	})

	stats, err := h.dispatcher(t, sender, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
}

func TestDispatcher_RetriesThenFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.addRequirement(t, day(-3))
	n := h.insert(t, req, constants.NotificationOverdue)

	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return("", errors.New("smtp down")).Times(notify.DefaultMaxAttempts)
	d := h.dispatcher(t, sender, nil)

	for attempt := 1; attempt <= notify.DefaultMaxAttempts; attempt++ {
		stats, err := d.Run(ctx)
		require.NoError(t, err)
		got, err := h.store.Notifications.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt, got.DeliveryAttempts)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "smtp down")
		if attempt < notify.DefaultMaxAttempts {
			assert.Equal(t, 1, stats.Retried)
			assert.Equal(t, constants.NotificationPending, got.Status)
		} else {
			assert.Equal(t, 1, stats.Failed)
			assert.Equal(t, constants.NotificationFailed, got.Status)
		}
	}

	stats, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed)
}

func TestDispatcher_PermanentFailures(t *testing.T) {
	broken := nichetest.Parse(t, strings.Replace(nichetest.COI, "{{ .days_overdue }}", "{{ .missing_key }}", 1))

	tests := []struct {
		name    string
		typ     constants.NotificationType
		mutate  func(*entity.Notification)
		wantErr string
	}{
		{name: "render error", typ: constants.NotificationEscalation, wantErr: "missing_key"},
		{name: "no recipient", typ: constants.NotificationOverdue, mutate: func(n *entity.Notification) { n.RecipientID = nil }, wantErr: "no recipient"},
		{name: "unsupported channel", typ: constants.NotificationOverdue, mutate: func(n *entity.Notification) { n.Channel = "sms" }, wantErr: "unsupported channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			req := h.addRequirement(t, day(-10))
			var mutate []func(*entity.Notification)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			n := h.insert(t, req, tt.typ, mutate...)

			ctrl := gomock.NewController(t)
			sender := mocks.NewMockSender(ctrl)
			stats, err := h.dispatcher(t, sender, nichetest.Store(t, broken)).Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Failed)

			got, err := h.store.Notifications.Get(ctx, n.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.NotificationFailed, got.Status)
			assert.Equal(t, 1, got.DeliveryAttempts)
			require.NotNil(t, got.LastError)
			assert.Contains(t, *got.LastError, tt.wantErr)
		})
	}
}

func TestDispatcher_InAppSkipsEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.addRequirement(t, day(-3))
	n := h.insert(t, req, constants.NotificationOverdue, func(n *entity.Notification) { n.Channel = "in_app" })

	ctrl := gomock.NewController(t)
	stats, err := h.dispatcher(t, mocks.NewMockSender(ctrl), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)

	got, err := h.store.Notifications.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.NotificationSent, got.Status)
	assert.Nil(t, got.ExternalID)
	require.NotNil(t, got.Body)
	assert.Contains(t, *got.Body, "expired on 2026-02-26")
}
