package notification

import (
	"fmt"
	"html"
	"strings"
	"sync"
)

// Built-in template ids.
const (
	TemplateStatusCritical  = "status-critical"
	TemplateStatusRecovered = "status-recovered"
	TemplateStatusUpdate    = "status-update"
	TemplateOTP             = "otp-code"
	TemplateContactForm     = "contact-form"
	TemplatePasswordReset   = "password-reset"
)

// TransitionTemplate picks the status template for a health status change.
// Normal to Critical is an emergency, Critical to Normal a recovery, and any
// other pair gets the neutral update.
func TransitionTemplate(oldStatus, newStatus string) string {
	switch {
	case oldStatus == "Normal" && newStatus == "Critical":
		return TemplateStatusCritical
	case oldStatus == "Critical" && newStatus == "Normal":
		return TemplateStatusRecovered
	default:
		return TemplateStatusUpdate
	}
}

// Template is a message with {{key}} placeholders. HTML is used for email,
// Text for SMS and the plain-text email alternative.
type Template struct {
	ID      string
	Subject string
	HTML    string
	Text    string
}

// Rendered is a template with its placeholders filled in.
type Rendered struct {
	Subject  string
	HTMLBody string
	Text     string
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render fills {{key}} placeholders. Values are HTML-escaped in the HTML body
// only. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", templateID)
	}

	plain := make([]string, 0, len(data)*2)
	escaped := make([]string, 0, len(data)*2)
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		plain = append(plain, placeholder, v)
		escaped = append(escaped, placeholder, html.EscapeString(v))
	}
	p := strings.NewReplacer(plain...)
	h := strings.NewReplacer(escaped...)

	return Rendered{
		Subject:  p.Replace(t.Subject),
		HTMLBody: h.Replace(t.HTML),
		Text:     p.Replace(t.Text),
	}, nil
}

const footer = `<p style="color:#64748b;font-size:13px;text-align:center">WardWatch patient monitoring</p>`

var builtIn = []Template{
	{
		ID:      TemplateStatusCritical,
		Subject: "EMERGENCY: {{patient_name}} - CRITICAL CONDITION!",
		HTML: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">` +
			`<h1 style="color:#dc2626">Emergency alert</h1>` +
			`<p><strong>{{patient_name}}</strong>: {{old_status}} &rarr; <strong>{{new_status}}</strong></p>` +
			`<p>Patient phone: {{patient_phone}}<br>Time: {{time}}</p>` +
			`<p style="background:#fef3c7;padding:12px;border-left:4px solid #f59e0b">` +
			`The patient needs immediate medical attention. Please contact the hospital now.</p>` + footer + `</div>`,
		Text: "EMERGENCY: {{patient_name}} is now CRITICAL ({{old_status}}->{{new_status}}). Phone {{patient_phone}}. {{time}}. Contact the hospital now.",
	},
	{
		ID:      TemplateStatusRecovered,
		Subject: "WONDERFUL NEWS: {{patient_name}} RECOVERED!",
		HTML: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">` +
			`<h1 style="color:#059669">Patient recovered</h1>` +
			`<p><strong>{{patient_name}}</strong>: {{old_status}} &rarr; <strong>{{new_status}}</strong></p>` +
			`<p>Patient phone: {{patient_phone}}<br>Time: {{time}}</p>` +
			`<p style="background:#d1fae5;padding:12px;border-left:4px solid #10b981">` +
			`The patient has come out of critical condition and is stable.</p>` + footer + `</div>`,
		Text: "GOOD NEWS: {{patient_name}} recovered ({{old_status}}->{{new_status}}). Phone {{patient_phone}}. {{time}}. Patient is stable.",
	},
	{
		ID:      TemplateStatusUpdate,
		Subject: "Update: {{patient_name}} health status changed to {{new_status}}",
		HTML: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">` +
			`<h1 style="color:#1d4ed8">Health update</h1>` +
			`<p><strong>{{patient_name}}</strong>: {{old_status}} &rarr; <strong>{{new_status}}</strong></p>` +
			`<p>Patient phone: {{patient_phone}}<br>Time: {{time}}</p>` + footer + `</div>`,
		Text: "{{patient_name}}: {{old_status}}->{{new_status}}. Phone {{patient_phone}}. {{time}}.",
	},
	{
		ID:      TemplateOTP,
		Subject: "Your WardWatch verification code",
		HTML: `<div style="font-family:Arial,sans-serif;max-width:480px;margin:0 auto;text-align:center">` +
			`<h2>Verify your email</h2><p>Your verification code is</p>` +
			`<p style="font-size:32px;letter-spacing:8px;font-weight:bold">{{code}}</p>` +
			`<p>It expires in {{minutes}} minutes. If you did not ask for it, ignore this email.</p>` + footer + `</div>`,
		Text: "Your WardWatch verification code is {{code}}. It expires in {{minutes}} minutes.",
	},
	{
		ID:      TemplateContactForm,
		Subject: "New Contact Form: {{name}}",
		HTML: `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">` +
			`<h2>New contact form submission</h2>` +
			`<p><strong>Name:</strong> {{name}}<br><strong>Email:</strong> {{email}}<br><strong>Phone:</strong> {{phone}}</p>` +
			`<p style="white-space:pre-wrap;background:#f8fafc;padding:12px">{{message}}</p>` + footer + `</div>`,
		Text: "Contact form from {{name}} <{{email}}> ({{phone}}):\n\n{{message}}",
	},
	{
		ID:      TemplatePasswordReset,
		Subject: "Reset your WardWatch password",
		HTML: `<div style="font-family:Arial,sans-serif;max-width:480px;margin:0 auto">` +
			`<h2>Password reset</h2><p>Use the link below within {{minutes}} minutes to choose a new password.</p>` +
			`<p><a href="{{reset_link}}">Reset password</a></p>` +
			`<p>If you did not request this, you can ignore this email.</p>` + footer + `</div>`,
		Text: "Reset your WardWatch password within {{minutes}} minutes: {{reset_link}}",
	},
}
