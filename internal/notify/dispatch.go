package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
	"github.com/joseph-ayodele/compliance-tracker/internal/notify/email"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
	"github.com/joseph-ayodele/compliance-tracker/internal/requirement"
)

const (
	DefaultMaxAttempts = 3
	DefaultBatchSize   = 100

	channelEmail = "email"
	channelInApp = "in_app"
)

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent delivery failure")

// DispatchStats reports one dispatch run.
type DispatchStats struct {
	Claimed int
	Sent    int
	Retried int
	Failed  int
}

type DispatcherOption func(*Dispatcher)

func WithAppURL(u string) DispatcherOption { return func(d *Dispatcher) { d.appURL = u } }

func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher renders and delivers pending notifications whose scheduled time has passed.
type Dispatcher struct {
	store       *repository.Store
	niches      *niche.Store
	sender      email.Sender
	appURL      string
	maxAttempts int
	batchSize   int
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewDispatcher(store *repository.Store, niches *niche.Store, sender email.Sender, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:       store,
		niches:      niches,
		sender:      sender,
		maxAttempts: DefaultMaxAttempts,
		batchSize:   DefaultBatchSize,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run delivers one batch of due notifications. A failure on one row never stops the batch.
func (d *Dispatcher) Run(ctx context.Context) (DispatchStats, error) {
	start := time.Now()
	now := d.now().UTC()
	var stats DispatchStats

	due, err := d.store.Notifications.ListDue(ctx, now, d.batchSize)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(due)
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		d.deliver(ctx, n, now, &stats)
	}
	d.logger.Info("notify.dispatch.ok",
		"claimed", stats.Claimed,
		"sent", stats.Sent,
		"retried", stats.Retried,
		"failed", stats.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *entity.Notification, now time.Time, stats *DispatchStats) {
	log := d.logger.With("notification_id", n.ID, "requirement_id", n.RequirementID, "type", n.Type)

	subject, body, externalID, err := d.send(ctx, n, now)
	if err == nil {
		if err := d.store.Notifications.MarkSent(ctx, n.ID, subject, body, externalID, now); err != nil {
			log.Error("notify.dispatch.mark_sent_error", "error", err)
			return
		}
		stats.Sent++
		d.metrics.Dispatched("sent")
		log.Info("notify.dispatch.sent", "external_id", externalID)
		return
	}

	if errors.Is(err, errPermanent) {
		if merr := d.store.Notifications.MarkFailed(ctx, n.ID, err.Error()); merr != nil {
			log.Error("notify.dispatch.mark_failed_error", "error", merr)
			return
		}
		stats.Failed++
		d.metrics.Dispatched("failed")
		log.Warn("notify.dispatch.failed", "error", err)
		return
	}

	status, rerr := d.store.Notifications.RecordFailure(ctx, n.ID, err.Error(), d.maxAttempts)
	if rerr != nil {
		log.Error("notify.dispatch.record_failure_error", "error", rerr)
		return
	}
	if status == constants.NotificationFailed {
		stats.Failed++
		d.metrics.Dispatched("failed")
		log.Warn("notify.dispatch.failed", "attempts", n.DeliveryAttempts+1, "error", err)
		return
	}
	stats.Retried++
	d.metrics.Dispatched("retry")
	log.Warn("notify.dispatch.retry", "attempts", n.DeliveryAttempts+1, "error", err)
}

// send renders n and hands it to the channel. Errors wrapping errPermanent must not be retried.
func (d *Dispatcher) send(ctx context.Context, n *entity.Notification, now time.Time) (subject, body, externalID string, err error) {
	req, err := d.store.Requirements.Get(ctx, n.RequirementID)
	if err != nil {
		return "", "", "", permanentIfMissing(err)
	}
	acc, err := d.store.Accounts.Get(ctx, n.AccountID)
	if err != nil {
		return "", "", "", permanentIfMissing(err)
	}
	reg, err := d.niches.Lookup(acc.NicheID)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", errPermanent, err)
	}
	ent, err := d.store.Entities.Get(ctx, req.EntityID)
	if err != nil {
		return "", "", "", permanentIfMissing(err)
	}
	var doc *entity.Document
	if req.DocumentID != nil {
		if doc, err = d.store.Documents.Get(ctx, *req.DocumentID); err != nil && !common.IsNotFound(err) {
			return "", "", "", err
		}
	}
	if n.RecipientID == nil {
		return "", "", "", fmt.Errorf("%w: no recipient", errPermanent)
	}
	user, err := d.store.Users.Get(ctx, *n.RecipientID)
	if err != nil {
		return "", "", "", permanentIfMissing(err)
	}

	tmpl := ResolveTemplate(reg, acc, n)
	data := TemplateData(Facts{
		User:        user,
		Entity:      ent,
		Requirement: req,
		Document:    doc,
		Account:     acc,
		Today:       requirement.Day(now),
		AppURL:      d.appURL,
		Extra:       n.Context,
	})
	subject, body, err = Render(tmpl, data)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", errPermanent, err)
	}

	switch n.Channel {
	case "", channelEmail:
		id, err := d.sender.Send(ctx, email.Message{
			To:       user.Email,
			ToName:   fullName(user),
			Subject:  subject,
			TextBody: body,
		})
		if err != nil {
			return "", "", "", err
		}
		return subject, body, id, nil
	case channelInApp:
		return subject, body, "", nil
	}
	return "", "", "", fmt.Errorf("%w: unsupported channel %q", errPermanent, n.Channel)
}

func permanentIfMissing(err error) error {
	if common.IsNotFound(err) {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	return err
}

func fullName(u *entity.User) string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.LastName
}
