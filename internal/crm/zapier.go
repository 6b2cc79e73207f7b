package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

const ZapierSignatureHeader = "X-Webhook-Signature"

// Outbound Zapier events, one webhook URL each.
const (
	ZapierEntityCreated     = "entity_created"
	ZapierEntityUpdated     = "entity_updated"
	ZapierComplianceChanged = "compliance_changed"
)

var zapierEventOrder = []string{ZapierEntityCreated, ZapierEntityUpdated, ZapierComplianceChanged}

type ZapierConfig struct {
	WebhookURLs   map[string]string
	WebhookSecret string
	Timeout       time.Duration
}

// Zapier posts signed JSON to catch-hook URLs. It cannot assign external ids; those
// arrive later through the inbound webhook.
type Zapier struct {
	client *resty.Client
	urls   map[string]string
	secret string
	now    func() time.Time
	logger *slog.Logger
}

func NewZapier(cfg ZapierConfig, logger *slog.Logger) *Zapier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().SetTimeout(cfg.Timeout).SetHeader("Content-Type", "application/json")
	return &Zapier{client: client, urls: cfg.WebhookURLs, secret: cfg.WebhookSecret, now: time.Now, logger: logger}
}

func (z *Zapier) Provider() string { return ProviderZapier }

type zapierPayload struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func (z *Zapier) send(ctx context.Context, op constants.SyncOperation, event string, data map[string]any) error {
	url := z.urls[event]
	if url == "" {
		return &SyncError{Provider: ProviderZapier, Operation: op, Err: fmt.Errorf("no webhook URL configured for %s", event)}
	}
	body, err := json.Marshal(zapierPayload{Event: event, Timestamp: z.now().UTC().Format(time.RFC3339), Data: data})
	if err != nil {
		return &SyncError{Provider: ProviderZapier, Operation: op, Err: err}
	}
	req := z.client.R().SetContext(ctx).SetBody(body)
	if z.secret != "" {
		req.SetHeader(ZapierSignatureHeader, Sign(z.secret, body))
	}
	resp, err := req.Post(url)
	if err != nil {
		z.logger.Error("crm.zapier.error", "event", event, "error", err)
		return &SyncError{Provider: ProviderZapier, Operation: op, Err: err}
	}
	if !resp.IsSuccess() {
		text := resp.String()
		if len(text) > 200 {
			text = text[:200]
		}
		z.logger.Error("crm.zapier.rejected", "event", event, "status", resp.StatusCode())
		return &SyncError{Provider: ProviderZapier, Operation: op, StatusCode: resp.StatusCode(), Err: errors.New(text)}
	}
	return nil
}

// TestConnection posts a test event to the first configured URL.
func (z *Zapier) TestConnection(ctx context.Context) error {
	for _, event := range zapierEventOrder {
		if z.urls[event] != "" {
			return z.send(ctx, constants.SyncTestConnection, event, map[string]any{
				"test":    true,
				"message": "Connection test from compliance tracker",
			})
		}
	}
	return &SyncError{Provider: ProviderZapier, Operation: constants.SyncTestConnection, Err: errors.New("no webhook URLs configured")}
}

func (z *Zapier) PushEntity(ctx context.Context, p EntityPayload) (PushResult, error) {
	data := make(map[string]any, len(p.Properties)+2)
	for k, v := range p.Properties {
		data[k] = v
	}
	data["entity_id"] = p.EntityID.String()
	if p.ExternalID == "" {
		if err := z.send(ctx, constants.SyncCreate, ZapierEntityCreated, data); err != nil {
			return PushResult{}, err
		}
		return PushResult{Operation: constants.SyncCreate, Response: map[string]any{"sent": true}}, nil
	}
	data["external_id"] = p.ExternalID
	if err := z.send(ctx, constants.SyncUpdate, ZapierEntityUpdated, data); err != nil {
		return PushResult{}, err
	}
	return PushResult{Operation: constants.SyncUpdate, ExternalID: p.ExternalID, Response: map[string]any{"sent": true}}, nil
}

func (z *Zapier) PushComplianceStatus(ctx context.Context, externalID string, status ComplianceStatus) error {
	data := status.Properties()
	data["external_id"] = externalID
	return z.send(ctx, constants.SyncCompliancePush, ZapierComplianceChanged, data)
}

// ReceiveWebhook accepts {event, external_id, data}.
func (z *Zapier) ReceiveWebhook(_ context.Context, body []byte, header http.Header) ([]WebhookEvent, error) {
	if err := verifyHeader(ProviderZapier, z.secret, header.Get(ZapierSignatureHeader), body); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &SyncError{Provider: ProviderZapier, Operation: constants.SyncWebhookReceived, Err: errors.New("body is not JSON")}
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &SyncError{Provider: ProviderZapier, Operation: constants.SyncWebhookReceived, Err: err}
	}
	parsed := gjson.ParseBytes(body)
	data, _ := parsed.Get("data").Value().(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return []WebhookEvent{{
		Type:       parsed.Get("event").String(),
		ExternalID: parsed.Get("external_id").String(),
		Data:       data,
		Raw:        raw,
	}}, nil
}
