package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/joseph-ayodele/compliance-tracker/constants"
)

const (
	DefaultHubSpotBaseURL  = "https://api.hubapi.com"
	HubSpotSignatureHeader = "X-HubSpot-Signature"

	hubspotCompanies = "companies"
	hubspotContacts  = "contacts"
)

var errPropertiesMissing = errors.New("compliance properties are not configured in HubSpot; create compliance_status, compliance_expiry and compliance_last_updated")

type HubSpotConfig struct {
	BaseURL       string
	Token         string
	ObjectType    string // companies | contacts
	WebhookSecret string
	Timeout       time.Duration
}

// HubSpot talks to the CRM v3 objects API.
type HubSpot struct {
	client     *resty.Client
	objectType string
	secret     string
	logger     *slog.Logger
}

func NewHubSpot(cfg HubSpotConfig, logger *slog.Logger) *HubSpot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHubSpotBaseURL
	}
	if cfg.ObjectType == "" {
		cfg.ObjectType = hubspotCompanies
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.Token).
		SetHeader("Content-Type", "application/json")
	return &HubSpot{client: client, objectType: cfg.ObjectType, secret: cfg.WebhookSecret, logger: logger}
}

func (h *HubSpot) Provider() string { return ProviderHubSpot }

func (h *HubSpot) objectPath(id string) string {
	p := "/crm/v3/objects/" + h.objectType
	if id != "" {
		p += "/" + id
	}
	return p
}

func (h *HubSpot) TestConnection(ctx context.Context) error {
	resp, err := h.client.R().SetContext(ctx).Get("/account-info/v3/details")
	if err = h.check(constants.SyncTestConnection, resp, err); err != nil {
		return err
	}
	h.logger.Info("crm.hubspot.connected", "portal_id", gjson.GetBytes(resp.Body(), "portalId").String())
	return nil
}

func (h *HubSpot) PushEntity(ctx context.Context, p EntityPayload) (PushResult, error) {
	body := map[string]any{"properties": h.toHubSpot(p.Properties)}
	if p.ExternalID == "" {
		resp, err := h.client.R().SetContext(ctx).SetBody(body).Post(h.objectPath(""))
		if err = h.check(constants.SyncCreate, resp, err); err != nil {
			return PushResult{}, err
		}
		id := gjson.GetBytes(resp.Body(), "id").String()
		if id == "" {
			return PushResult{}, &SyncError{Provider: ProviderHubSpot, Operation: constants.SyncCreate, StatusCode: resp.StatusCode(), Err: errors.New("response has no id")}
		}
		return PushResult{Operation: constants.SyncCreate, ExternalID: id, Response: map[string]any{"id": id}}, nil
	}
	resp, err := h.client.R().SetContext(ctx).SetBody(body).Patch(h.objectPath(p.ExternalID))
	if err = h.check(constants.SyncUpdate, resp, err); err != nil {
		return PushResult{}, err
	}
	return PushResult{Operation: constants.SyncUpdate, ExternalID: p.ExternalID, Response: map[string]any{"id": p.ExternalID}}, nil
}

func (h *HubSpot) PushComplianceStatus(ctx context.Context, externalID string, status ComplianceStatus) error {
	body := map[string]any{"properties": status.Properties()}
	resp, err := h.client.R().SetContext(ctx).SetBody(body).Patch(h.objectPath(externalID))
	if err == nil && resp.StatusCode() == http.StatusBadRequest && strings.Contains(resp.String(), "PROPERTY_DOESNT_EXIST") {
		h.logger.Warn("crm.hubspot.properties_missing", "external_id", externalID)
		return &SyncError{Provider: ProviderHubSpot, Operation: constants.SyncCompliancePush, StatusCode: resp.StatusCode(), Err: errPropertiesMissing}
	}
	return h.check(constants.SyncCompliancePush, resp, err)
}

// ReceiveWebhook accepts HubSpot's array of subscription events. Changes made by
// integrations, ours included, are dropped so pushes do not echo back.
func (h *HubSpot) ReceiveWebhook(_ context.Context, body []byte, header http.Header) ([]WebhookEvent, error) {
	if err := verifyHeader(ProviderHubSpot, h.secret, header.Get(HubSpotSignatureHeader), body); err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() && !parsed.IsObject() {
		return nil, &SyncError{Provider: ProviderHubSpot, Operation: constants.SyncWebhookReceived, Err: errors.New("body is not JSON")}
	}
	items := parsed.Array()
	if parsed.IsObject() {
		items = []gjson.Result{parsed}
	}
	var events []WebhookEvent
	for _, item := range items {
		if item.Get("changeSource").String() == "INTEGRATION" {
			continue
		}
		raw, _ := item.Value().(map[string]any)
		ev := WebhookEvent{ExternalID: item.Get("objectId").String(), Raw: raw, Data: map[string]any{}}
		_, action, _ := strings.Cut(item.Get("subscriptionType").String(), ".")
		switch action {
		case "creation":
			ev.Type = EventContactCreated
		case "propertyChange":
			ev.Type = EventContactUpdated
			if name := item.Get("propertyName").String(); name != "" {
				ev.Data[h.fromHubSpot(name)] = item.Get("propertyValue").String()
			}
		default:
			continue
		}
		if ev.ExternalID == "" {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (h *HubSpot) check(op constants.SyncOperation, resp *resty.Response, err error) error {
	if err != nil {
		h.logger.Error("crm.hubspot.error", "operation", op, "error", err)
		return &SyncError{Provider: ProviderHubSpot, Operation: op, Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}
	msg := gjson.GetBytes(resp.Body(), "message").String()
	if msg == "" {
		msg = resp.Status()
	}
	h.logger.Error("crm.hubspot.rejected", "operation", op, "status", resp.StatusCode(), "message", msg)
	return &SyncError{Provider: ProviderHubSpot, Operation: op, StatusCode: resp.StatusCode(), Err: errors.New(msg)}
}

// standard field name -> HubSpot property, per object type.
var hubspotProperties = map[string]map[string]string{
	hubspotCompanies: {"name": "name", "email": "email", "phone": "phone", "address": "address", "domain": "domain"},
	hubspotContacts:  {"name": "lastname", "email": "email", "phone": "phone", "address": "address"},
}

func (h *HubSpot) toHubSpot(props map[string]any) map[string]any {
	mapping := hubspotProperties[h.objectType]
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v == nil || v == "" {
			continue
		}
		if hs, ok := mapping[k]; ok {
			k = hs
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func (h *HubSpot) fromHubSpot(property string) string {
	for std, hs := range hubspotProperties[h.objectType] {
		if hs == property {
			return std
		}
	}
	return property
}
