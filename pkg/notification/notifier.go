package notification

import (
	"bytes"
	htmltemplate "html/template"
	"log/slog"
	"text/template"
)

// NoticeType identifies a security event a user is told about.
type NoticeType string

const (
	TwoFactorEnabledNotice  NoticeType = "two_factor_enabled"
	TwoFactorDisabledNotice NoticeType = "two_factor_disabled"
	DevicesForgottenNotice  NoticeType = "devices_forgotten"
)

type NotificationData struct {
	To   string            // Recipient address
	Data map[string]string // Template values
}

// NoticeTemplate holds the subject and bodies rendered for a notice.
// Text is a text/template, Html an html/template. Either may be empty.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}

// DefaultTemplates returns the built-in templates for every NoticeType.
func DefaultTemplates() map[NoticeType]NoticeTemplate {
	return map[NoticeType]NoticeTemplate{
		TwoFactorEnabledNotice: {
			Subject: "Two-factor authentication enabled",
			Text:    "Two-factor authentication was enabled for account {{.UserID}} at {{.Time}}.\nIf this was not you, contact your administrator.\n",
		},
		TwoFactorDisabledNotice: {
			Subject: "Two-factor authentication disabled",
			Text:    "Two-factor authentication was disabled for account {{.UserID}} at {{.Time}}.\nIf this was not you, contact your administrator.\n",
		},
		DevicesForgottenNotice: {
			Subject: "Remembered devices removed",
			Text:    "{{.Count}} remembered device(s) were removed from account {{.UserID}} at {{.Time}}.\nEvery device will ask for the second factor again.\n",
		},
	}
}

// RenderText executes tmpl as a text/template over data.
func RenderText(tmpl string, data map[string]string) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	t, err := template.New("text").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		slog.Error("Failed to parse text template", "err", err)
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		slog.Error("Failed to execute text template", "err", err)
		return "", err
	}
	return buf.String(), nil
}

// RenderHTML executes tmpl as an html/template over data, escaping values.
func RenderHTML(tmpl string, data map[string]string) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	t, err := htmltemplate.New("html").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		slog.Error("Failed to parse HTML template", "err", err)
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		slog.Error("Failed to execute HTML template", "err", err)
		return "", err
	}
	return buf.String(), nil
}
