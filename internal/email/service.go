// Package email mails session invitations over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"
)

// ErrNotConfigured is returned when sending without SMTP settings.
var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := buildMessage(s.fromHeader(), to, subject, textBody, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject, textBody, htmlBody string) []byte {
	boundary := "retro-" + fmt.Sprint(time.Now().UnixNano())

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(textBody)
	msg.WriteString("\r\n\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

// InvitationData feeds the invitation template.
type InvitationData struct {
	SessionID   string
	Facilitator string
	Role        string
	Link        string
	ExpiresAt   time.Time
}

// SendInvitation mails one participant their personal board link.
func (s *Service) SendInvitation(to string, data InvitationData) error {
	html, err := renderTemplate(invitationTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	text := fmt.Sprintf("%s invited you to a retrospective.\r\nJoin here: %s\r\n", data.Facilitator, data.Link)
	return s.SendHTMLEmail([]string{to}, "You're invited to a retrospective", text, html)
}

var invitationTemplate = template.Must(template.New("invitation").Parse(invitationHTML))

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const invitationHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Retrospective invitation</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <h2>You're invited to a retrospective</h2>
    <p>{{.Facilitator}} started session <strong>{{.SessionID}}</strong>{{if eq .Role "facilitator"}} and you are facilitating it{{end}}.</p>
    <p><a href="{{.Link}}" class="button">Open the board</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.Link}}</p>
    <div class="footer">
        <p>This link is personal to you{{if not .ExpiresAt.IsZero}} and expires on {{.ExpiresAt.Format "Jan 2, 2006"}}{{end}}.</p>
    </div>
</body>
</html>`
