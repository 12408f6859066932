package notification

import (
	"bytes"
	htmltpl "html/template"
	"log/slog"
	texttpl "text/template"
)

// NotificationSystem is a delivery channel (e.g., email)
type NotificationSystem string

// NoticeType identifies a kind of notice (e.g., email verification)
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"

	EmailVerification NoticeType = "email_verification"
)

// NotificationData is the per-recipient part of a notice
type NotificationData struct {
	To      string            // Recipient identifier (e.g., email address)
	Subject string            // Optional: overrides the template subject
	Body    string            // Optional: plain body when no template text is registered
	Data    map[string]string // Template values (e.g., Name, Link, SiteName)
}

// NoticeTemplate is the registered content of a notice for one system
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// Notifier delivers a rendered notice over one system
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}

// renderedNotice holds the bodies produced from a NoticeTemplate
type renderedNotice struct {
	Subject string
	Text    string
	Html    string
}

// render executes the template text and HTML against notification.Data
func render(notification NotificationData, noticeTemplate NoticeTemplate) (renderedNotice, error) {
	out := renderedNotice{Subject: noticeTemplate.Subject}
	if notification.Subject != "" {
		out.Subject = notification.Subject
	}

	if noticeTemplate.Text != "" {
		tmpl, err := texttpl.New("text").Parse(noticeTemplate.Text)
		if err != nil {
			slog.Error("Failed to parse text template", "err", err)
			return out, err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, notification.Data); err != nil {
			slog.Error("Failed to execute text template", "err", err)
			return out, err
		}
		out.Text = buf.String()
	} else {
		out.Text = notification.Body
	}

	if noticeTemplate.Html != "" {
		tmpl, err := htmltpl.New("html").Parse(noticeTemplate.Html)
		if err != nil {
			slog.Error("Failed to parse HTML template", "err", err)
			return out, err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, notification.Data); err != nil {
			slog.Error("Failed to execute HTML template", "err", err)
			return out, err
		}
		out.Html = buf.String()
	}

	return out, nil
}
