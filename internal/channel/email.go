package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/model"
)

// MailSender is satisfied by *gomail.Dialer.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailAdapter struct {
	sender   MailSender
	from     string
	fromName string
	logoURL  string
	limiter  *rate.Limiter
}

func NewEmailAdapter(cfg config.SMTPConfig) *EmailAdapter {
	var sender MailSender
	if cfg.Host != "" {
		sender = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return NewEmailAdapterWithSender(sender, cfg)
}

func NewEmailAdapterWithSender(sender MailSender, cfg config.SMTPConfig) *EmailAdapter {
	return &EmailAdapter{
		sender:   sender,
		from:     cfg.FromAddress,
		fromName: cfg.FromName,
		logoURL:  cfg.LogoURL,
		limiter:  newLimiter(cfg.RequestsPerSecond),
	}
}

func (a *EmailAdapter) Channel() model.Channel { return model.ChannelEmail }

func (a *EmailAdapter) Configured() bool { return a.sender != nil && a.from != "" }

func (a *EmailAdapter) Addressable(r model.Recipient) bool { return validEmail(r.Email) }

func (a *EmailAdapter) Send(ctx context.Context, r model.Recipient, c Content) Result {
	if !a.Configured() {
		return Skipped("email not configured")
	}
	to := strings.TrimSpace(r.Email)
	if !validEmail(to) {
		return Skipped("no valid email address")
	}

	html, err := RenderEmail(c, a.logoURL)
	if err != nil {
		return Failed(err)
	}
	if err := wait(ctx, a.limiter); err != nil {
		return Failed(err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(a.from))
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", a.from, a.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", c.Subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", html)

	// gomail has no context support; run it aside so the caller's deadline still applies.
	done := make(chan error, 1)
	go func() { done <- a.sender.DialAndSend(msg) }()
	select {
	case err := <-done:
		if err != nil {
			return Failed(err)
		}
		return Sent(messageID)
	case <-ctx.Done():
		return Failed(ctx.Err())
	}
}

func domainOf(addr string) string {
	if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return "localhost"
}

type emailView struct {
	LogoURL  string
	Subject  string
	Body     template.HTML
	VideoURL string
	CTAURL   string
	CTALabel string
	InboxURL string
}

// RenderEmail wraps the authored HTML in the transactional layout. The body is
// trusted admin-authored markup and passes through as written.
func RenderEmail(c Content, logoURL string) (string, error) {
	label := c.CTALabel
	if label == "" {
		label = "Learn more"
	}
	view := emailView{
		LogoURL:  logoURL,
		Subject:  c.Subject,
		Body:     template.HTML(c.BodyHTML),
		VideoURL: c.VideoURL,
		CTAURL:   c.CTAURL,
		CTALabel: label,
		InboxURL: c.InboxURL,
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

var emailTemplate = template.Must(template.New("broadcast").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#f4f5f7;font-family:Helvetica,Arial,sans-serif;">
<table width="100%" cellpadding="0" cellspacing="0" style="max-width:600px;margin:0 auto;background:#ffffff;">
  <tr><td style="padding:24px;text-align:center;background:#111827;">
    {{if .LogoURL}}<img src="{{.LogoURL}}" alt="LivePlay" height="40">{{else}}<span style="color:#fff;font-size:20px;font-weight:bold;">LivePlay</span>{{end}}
  </td></tr>
  <tr><td style="padding:24px;">
    <h1 style="margin:0 0 16px;font-size:22px;color:#111827;">{{.Subject}}</h1>
    <div style="font-size:15px;line-height:1.6;color:#374151;">{{.Body}}</div>
    {{if .VideoURL}}
    <div style="margin:24px 0;padding:16px;border-radius:6px;background:#f3f4f6;text-align:center;">
      <a href="{{.VideoURL}}" style="color:#2563eb;font-weight:bold;text-decoration:none;">&#9654; Watch the video</a>
    </div>
    {{end}}
    {{if .CTAURL}}
    <div style="margin:24px 0;text-align:center;">
      <a href="{{.CTAURL}}" style="display:inline-block;padding:12px 24px;border-radius:5px;background-color:#2563eb;color:#fff;text-decoration:none;">{{.CTALabel}}</a>
    </div>
    {{end}}
  </td></tr>
  <tr><td style="padding:16px 24px;font-size:12px;color:#6b7280;border-top:1px solid #e5e7eb;">
    You received this message from LivePlay.{{if .InboxURL}} <a href="{{.InboxURL}}" style="color:#6b7280;">View all your messages</a>{{end}}
  </td></tr>
</table>
</body>
</html>
`))
