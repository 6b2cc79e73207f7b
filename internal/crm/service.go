package crm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/metrics"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository"
)

// Account-level sync outcomes stored in last_sync_status.
const (
	SyncResultSuccess = "success"
	SyncResultPartial = "partial"
	SyncResultFailed  = "failed"
)

var defaultFieldMapping = map[string]string{
	"name":    "name",
	"email":   "email",
	"phone":   "phone",
	"address": "address",
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// Service runs every CRM sync. Each attempt writes exactly one sync log row.
type Service struct {
	store      *repository.Store
	connectors ConnectorFactory
	box        *Box
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(store *repository.Store, connectors ConnectorFactory, box *Box, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, connectors: connectors, box: box, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MapEntity applies the account field mapping. Keys are entity fields, with
// custom_fields.<name> reaching into custom fields; values are CRM field names.
func MapEntity(e *entity.Entity, mapping map[string]string) map[string]any {
	if len(mapping) == 0 {
		mapping = defaultFieldMapping
	}
	out := make(map[string]any, len(mapping))
	for from, to := range mapping {
		var v any
		switch from {
		case "name":
			v = e.Name
		case "email":
			v = deref(e.Email)
		case "phone":
			v = deref(e.Phone)
		case "address":
			v = deref(e.Address)
		case "entity_type":
			v = e.TypeCode
		default:
			if name, ok := strings.CutPrefix(from, "custom_fields."); ok {
				v = e.CustomFields[name]
			}
		}
		if v != nil && v != "" {
			out[to] = v
		}
	}
	return out
}

// PushEntity creates or updates the entity's CRM record. Accounts without an enabled CRM are skipped.
func (s *Service) PushEntity(ctx context.Context, entityID uuid.UUID) error {
	ent, err := s.store.Entities.Get(ctx, entityID)
	if err != nil {
		return err
	}
	acc, err := s.store.Accounts.Get(ctx, ent.AccountID)
	if err != nil {
		return err
	}
	conn, err := s.connectors.Resolve(acc)
	if errors.Is(err, ErrNotConfigured) {
		s.logger.Debug("crm.push.skipped", "entity_id", ent.ID, "reason", "not configured")
		return nil
	}
	if err != nil {
		return err
	}

	payload := EntityPayload{EntityID: ent.ID, ExternalID: deref(ent.ExternalID), Properties: MapEntity(ent, acc.CRM.FieldMapping)}
	op := constants.SyncCreate
	if payload.ExternalID != "" {
		op = constants.SyncUpdate
	}
	start := time.Now()
	res, err := conn.PushEntity(ctx, payload)
	row := &entity.SyncLog{
		AccountID:   acc.ID,
		EntityID:    &ent.ID,
		Provider:    conn.Provider(),
		Operation:   op,
		Direction:   constants.SyncPush,
		DurationMS:  time.Since(start).Milliseconds(),
		RequestData: payload.Properties,
	}
	if err != nil {
		s.fail(ctx, row, err)
		return err
	}
	if res.ExternalID != "" {
		row.ExternalID = &res.ExternalID
		if ent.ExternalID == nil {
			if err := s.store.Entities.SetExternalID(ctx, ent.ID, res.ExternalID, conn.Provider()); err != nil {
				s.fail(ctx, row, err)
				return err
			}
		}
	}
	row.ResponseData = res.Response
	s.succeed(ctx, row)
	s.logger.Info("crm.push.ok", "entity_id", ent.ID, "provider", conn.Provider(), "operation", op, "external_id", res.ExternalID, "elapsed_ms", row.DurationMS)
	return nil
}

// PushAllCompliance pushes the aggregate status of every linked entity in every active
// account with a CRM. It returns the number of successful pushes. Failed pushes are
// retried on the next run only.
func (s *Service) PushAllCompliance(ctx context.Context) (int, error) {
	accounts, err := s.store.Accounts.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, acc := range accounts {
		if !acc.CRM.Enabled {
			continue
		}
		n, err := s.PushAccountCompliance(ctx, acc)
		total += n
		if err != nil {
			s.logger.Error("crm.compliance.account_error", "account_id", acc.ID, "error", err)
		}
	}
	return total, nil
}

// PushAccountCompliance pushes every linked entity of one account and records the
// outcome on the account.
func (s *Service) PushAccountCompliance(ctx context.Context, acc *entity.Account) (int, error) {
	conn, err := s.connectors.Resolve(acc)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			_ = s.store.Accounts.RecordSync(ctx, acc.ID, s.now(), SyncResultFailed)
		}
		return 0, err
	}
	ents, err := s.store.Entities.ListLinked(ctx, acc.ID)
	if err != nil {
		return 0, err
	}
	pushed, failed := 0, 0
	for _, ent := range ents {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}
		if err := s.pushEntityCompliance(ctx, conn, acc, ent); err != nil {
			failed++
			continue
		}
		pushed++
	}
	result := SyncResultSuccess
	switch {
	case failed > 0 && pushed == 0:
		result = SyncResultFailed
	case failed > 0:
		result = SyncResultPartial
	}
	if err := s.store.Accounts.RecordSync(ctx, acc.ID, s.now(), result); err != nil {
		return pushed, err
	}
	s.logger.Info("crm.compliance.ok", "account_id", acc.ID, "provider", conn.Provider(), "pushed", pushed, "failed", failed)
	return pushed, nil
}

func (s *Service) pushEntityCompliance(ctx context.Context, conn Connector, acc *entity.Account, ent *entity.Entity) error {
	entID := ent.ID
	reqs, err := s.store.Requirements.List(ctx, repository.RequirementFilter{EntityID: &entID})
	if err != nil {
		return err
	}
	status := Aggregate(reqs, s.now())
	start := time.Now()
	err = conn.PushComplianceStatus(ctx, *ent.ExternalID, status)
	row := &entity.SyncLog{
		AccountID:   acc.ID,
		EntityID:    &entID,
		Provider:    conn.Provider(),
		Operation:   constants.SyncCompliancePush,
		Direction:   constants.SyncPush,
		ExternalID:  ent.ExternalID,
		DurationMS:  time.Since(start).Milliseconds(),
		RequestData: status.Properties(),
	}
	if err != nil {
		s.fail(ctx, row, err)
		return err
	}
	s.succeed(ctx, row)
	return nil
}

// TestConnection calls the connector's test and logs the attempt.
func (s *Service) TestConnection(ctx context.Context, accountID uuid.UUID) error {
	acc, err := s.store.Accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	conn, err := s.connectors.Resolve(acc)
	if errors.Is(err, ErrNotConfigured) {
		return common.InvalidInputf("no crm is enabled for this account")
	}
	if err != nil {
		return err
	}
	start := time.Now()
	err = conn.TestConnection(ctx)
	row := &entity.SyncLog{
		AccountID:  acc.ID,
		Provider:   conn.Provider(),
		Operation:  constants.SyncTestConnection,
		Direction:  constants.SyncPush,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.fail(ctx, row, err)
		return err
	}
	s.succeed(ctx, row)
	return nil
}

// WebhookResult reports what an accepted webhook changed.
type WebhookResult struct {
	Events  int `json:"event_count"`
	Linked  int `json:"linked"`
	Updated int `json:"updated"`
}

// HandleWebhook verifies and applies an inbound webhook. A bad signature writes one
// failed log row and changes nothing else.
func (s *Service) HandleWebhook(ctx context.Context, provider string, accountID uuid.UUID, body []byte, header http.Header) (WebhookResult, error) {
	var res WebhookResult
	acc, err := s.store.Accounts.Get(ctx, accountID)
	if err != nil {
		return res, err
	}
	conn, err := s.connectors.ForProvider(acc, provider)
	if err != nil {
		return res, err
	}
	row := &entity.SyncLog{
		AccountID: acc.ID,
		Provider:  provider,
		Operation: constants.SyncWebhookReceived,
		Direction: constants.SyncPull,
	}
	start := time.Now()
	events, err := conn.ReceiveWebhook(ctx, body, header)
	row.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		var sigErr *WebhookSignatureError
		if errors.As(err, &sigErr) {
			sigErr.AccountID = acc.ID
			s.logger.Warn("crm.webhook.rejected", "provider", provider, "account_id", acc.ID, "reason", sigErr.Reason)
			s.fail(ctx, row, sigErr)
			return res, sigErr
		}
		s.fail(ctx, row, err)
		return res, common.InvalidInputf("webhook body: %v", err)
	}

	res.Events = len(events)
	raws := make([]any, 0, len(events))
	for _, ev := range events {
		raws = append(raws, ev.Raw)
		var changed bool
		switch ev.Type {
		case EventContactCreated:
			changed, err = s.linkByEmail(ctx, acc, provider, ev)
			if changed {
				res.Linked++
			}
		case EventContactUpdated:
			changed, err = s.applyUpdate(ctx, acc, provider, ev)
			if changed {
				res.Updated++
			}
		}
		if err != nil {
			// Events before the failing one stay applied; the row records how far the batch got.
			row.RequestData = map[string]any{"events": raws}
			row.ResponseData = map[string]any{"received": true, "event_count": res.Events, "applied": len(raws) - 1,
				"linked": res.Linked, "updated": res.Updated}
			s.fail(ctx, row, err)
			return res, err
		}
	}
	row.RequestData = map[string]any{"events": raws}
	if len(events) == 1 {
		row.RequestData = events[0].Raw
	}
	row.ResponseData = map[string]any{"received": true, "event_count": res.Events}
	s.succeed(ctx, row)
	return res, nil
}

func (s *Service) linkByEmail(ctx context.Context, acc *entity.Account, provider string, ev WebhookEvent) (bool, error) {
	email, _ := ev.Data["email"].(string)
	if ev.ExternalID == "" || email == "" {
		return false, nil
	}
	ent, err := s.store.Entities.FindUnlinkedByEmail(ctx, acc.ID, email)
	if common.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.store.Entities.SetExternalID(ctx, ent.ID, ev.ExternalID, provider); err != nil {
		return false, err
	}
	ext := ev.ExternalID
	s.succeed(ctx, &entity.SyncLog{
		AccountID:    acc.ID,
		EntityID:     &ent.ID,
		Provider:     provider,
		Operation:    constants.SyncLinkExternalID,
		Direction:    constants.SyncPull,
		ExternalID:   &ext,
		RequestData:  ev.Raw,
		ResponseData: map[string]any{"linked": true},
	})
	return true, nil
}

func (s *Service) applyUpdate(ctx context.Context, acc *entity.Account, provider string, ev WebhookEvent) (bool, error) {
	if ev.ExternalID == "" {
		return false, nil
	}
	ent, err := s.store.Entities.FindByExternalID(ctx, acc.ID, ev.ExternalID)
	if common.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var patch entity.EntityPatch
	changed := false
	for field, dst := range map[string]**string{"name": &patch.Name, "email": &patch.Email, "phone": &patch.Phone, "address": &patch.Address} {
		if v, ok := ev.Data[field].(string); ok && v != "" {
			v := v
			*dst = &v
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	if _, err := s.store.Entities.Update(ctx, ent.ID, patch); err != nil {
		return false, err
	}
	ext := ev.ExternalID
	s.succeed(ctx, &entity.SyncLog{
		AccountID:    acc.ID,
		EntityID:     &ent.ID,
		Provider:     provider,
		Operation:    constants.SyncUpdate,
		Direction:    constants.SyncPull,
		ExternalID:   &ext,
		RequestData:  ev.Raw,
		ResponseData: map[string]any{"updated": true},
	})
	return true, nil
}

// SyncLogs lists the audit trail newest first.
func (s *Service) SyncLogs(ctx context.Context, accountID uuid.UUID, entityID *uuid.UUID, limit int) ([]*entity.SyncLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.SyncLogs.List(ctx, accountID, entityID, limit)
}

func (s *Service) succeed(ctx context.Context, row *entity.SyncLog) {
	row.Status = constants.SyncSuccess
	s.write(ctx, row)
}

func (s *Service) fail(ctx context.Context, row *entity.SyncLog, err error) {
	row.Status = constants.SyncFailed
	msg := err.Error()
	row.ErrorMessage = &msg
	s.logger.Error("crm.sync.failed", "account_id", row.AccountID, "provider", row.Provider, "operation", row.Operation, "error", err)
	s.write(ctx, row)
}

func (s *Service) write(ctx context.Context, row *entity.SyncLog) {
	s.metrics.CRMSync(row.Provider, string(row.Operation), string(row.Status))
	if err := s.store.SyncLogs.Insert(context.WithoutCancel(ctx), row); err != nil {
		s.logger.Error("crm.sync_log.error", "account_id", row.AccountID, "operation", row.Operation, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
