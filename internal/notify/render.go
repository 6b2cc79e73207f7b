// Package notify generates and dispatches requirement notifications.
package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/niche"
)

// RenderError marks a template that cannot be rendered. It is never retried.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %s: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Template is the subject and body pair chosen for a notification.
type Template struct {
	Code    string
	Subject string
	Body    string
}

var builtin = map[constants.NotificationType]Template{
	constants.NotificationExpiring: {
		Code:    "builtin_expiring",
		Subject: `{{ .requirement.name }} for {{ .entity.name }} expires in {{ .days }} days`,
		Body: `Hello {{ .user.first_name }},

The {{ .requirement.name }} for {{ .entity.name }} expires on {{ .requirement.due_date }}.
Please request an updated document to stay compliant.

View the requirement: {{ .app_url }}/requirements/{{ .requirement.id }}

{{ .account.name }} Compliance Team`,
	},
	constants.NotificationOverdue: {
		Code:    "builtin_overdue",
		Subject: `EXPIRED: {{ .requirement.name }} for {{ .entity.name }}`,
		Body: `Hello {{ .user.first_name }},

The {{ .requirement.name }} for {{ .entity.name }} expired on {{ .requirement.due_date }}.
Please take action: {{ .app_url }}/requirements/{{ .requirement.id }}

{{ .account.name }} Compliance Team`,
	},
	constants.NotificationEscalation: {
		Code:    "builtin_escalation",
		Subject: `Escalation: {{ .entity.name }} has been out of compliance for {{ .days_overdue }} days`,
		Body: `Hello {{ .user.first_name }},

The {{ .requirement.name }} for {{ .entity.name }} has been expired for {{ .days_overdue }} days
(due {{ .requirement.due_date }}). No renewed document has been received.

Resolve now: {{ .app_url }}/requirements/{{ .requirement.id }}`,
	},
	constants.NotificationReminder: {
		Code:    "builtin_reminder",
		Subject: `Reminder: {{ .requirement.name }} for {{ .entity.name }}`,
		Body: `Hello {{ .user.first_name }},

This is a reminder about the {{ .requirement.name }} for {{ .entity.name }} (status: {{ .requirement.status }}).

{{ .app_url }}/requirements/{{ .requirement.id }}`,
	},
	constants.NotificationStatusChange: {
		Code:    "builtin_status_change",
		Subject: `{{ .requirement.name }} for {{ .entity.name }} is now {{ .requirement.status }}`,
		Body: `Hello {{ .user.first_name }},

The {{ .requirement.name }} for {{ .entity.name }} changed status to {{ .requirement.status }}.

{{ .app_url }}/requirements/{{ .requirement.id }}`,
	},
	constants.NotificationDocumentProcessed: {
		Code:    "builtin_document_processed",
		Subject: `Document processed for {{ .entity.name }}`,
		Body: `Hello {{ .user.first_name }},

{{ .document.file_name }} was processed for {{ .entity.name }}.

{{ .app_url }}/requirements/{{ .requirement.id }}`,
	},
}

// Builtin returns the fallback template for a notification type.
func Builtin(t constants.NotificationType) Template {
	if tmpl, ok := builtin[t]; ok {
		return tmpl
	}
	return builtin[constants.NotificationReminder]
}

// ResolveTemplate picks the template for n. Order: the account override for the
// notification type, the template named on the notification, a niche template of the
// type whose days_before matches the threshold, a niche template of the type without
// days_before, any niche template of the type, the built-in default.
func ResolveTemplate(reg *niche.Registry, acc *entity.Account, n *entity.Notification) Template {
	if acc != nil {
		if code, ok := acc.NotificationOverrides[string(n.Type)]; ok {
			if t, ok := reg.Template(code); ok {
				return fromNiche(t)
			}
		}
	}
	if n.TemplateCode != nil {
		if t, ok := reg.Template(*n.TemplateCode); ok {
			return fromNiche(t)
		}
	}
	candidates := reg.TemplatesFor(n.Type)
	if n.ThresholdDays != nil {
		for _, t := range candidates {
			if t.DaysBefore != nil && *t.DaysBefore == *n.ThresholdDays {
				return fromNiche(t)
			}
		}
	}
	for _, t := range candidates {
		if t.DaysBefore == nil {
			return fromNiche(t)
		}
	}
	if len(candidates) > 0 {
		return fromNiche(candidates[0])
	}
	return Builtin(n.Type)
}

func fromNiche(t niche.NotificationTemplate) Template {
	return Template{Code: t.Code, Subject: t.Subject, Body: t.Body}
}

// Render executes subject and body with sprig helpers. Missing keys are errors.
func Render(t Template, data map[string]any) (subject, body string, err error) {
	subject, err = execute(t.Code+".subject", t.Subject, data)
	if err != nil {
		return "", "", &RenderError{Template: t.Code, Err: err}
	}
	body, err = execute(t.Code+".body", t.Body, data)
	if err != nil {
		return "", "", &RenderError{Template: t.Code, Err: err}
	}
	return subject, body, nil
}

func execute(name, text string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
