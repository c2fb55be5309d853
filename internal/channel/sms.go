package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/model"
)

const (
	// SMSLimit is the single-segment length an outgoing text never exceeds.
	SMSLimit = 160
	ellipsis = "..."

	defaultPhoneRegion = "US"

	// "New message: " plus one subject rune, the ellipsis and the period.
	minSMSHeader = len("New message: ") + 1 + len(ellipsis) + 1
)

// SMSAPI is satisfied by the Twilio REST client's Api service.
type SMSAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMSAdapter struct {
	api     SMSAPI
	from    string
	limiter *rate.Limiter
}

func NewSMSAdapter(cfg config.TwilioConfig) *SMSAdapter {
	var api SMSAPI
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		api = client.Api
	}
	return NewSMSAdapterWithAPI(api, cfg.FromNumber, cfg.RequestsPerSecond)
}

func NewSMSAdapterWithAPI(api SMSAPI, from string, rps float64) *SMSAdapter {
	return &SMSAdapter{api: api, from: from, limiter: newLimiter(rps)}
}

func (a *SMSAdapter) Channel() model.Channel { return model.ChannelSMS }

func (a *SMSAdapter) Configured() bool { return a.api != nil && a.from != "" }

func (a *SMSAdapter) Addressable(r model.Recipient) bool {
	_, ok := NormalizePhone(r.Phone)
	return ok
}

func (a *SMSAdapter) Send(ctx context.Context, r model.Recipient, c Content) Result {
	if !a.Configured() {
		return Skipped("sms not configured")
	}
	to, ok := NormalizePhone(r.Phone)
	if !ok {
		return Skipped("no valid phone number")
	}
	if err := wait(ctx, a.limiter); err != nil {
		return Failed(err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(a.from)
	params.SetBody(ComposeSMS(c.Subject, c.SMSBody, c.ReadURL))

	type reply struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan reply, 1)
	go func() {
		msg, err := a.api.CreateMessage(params)
		done <- reply{msg, err}
	}()

	select {
	case rep := <-done:
		if rep.err != nil {
			return Failed(rep.err)
		}
		sid := ""
		if rep.msg != nil && rep.msg.Sid != nil {
			sid = *rep.msg.Sid
		}
		return Sent(sid)
	case <-ctx.Done():
		return Failed(ctx.Err())
	}
}

// NormalizePhone returns the number in E.164 form. Numbers without a country
// code are parsed as US; numbers that do not validate are rejected.
func NormalizePhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// ComposeSMS builds "New message: {subject}. {body} Read: {link}" within
// SMSLimit characters. The body is truncated first, then the subject; the
// read link is kept whole. The " Read:" suffix is left off when there is no
// link, or when the link is too long to leave room for the header.
func ComposeSMS(subject, body, link string) string {
	subject = strings.TrimSpace(subject)
	body = strings.Join(strings.Fields(body), " ")
	suffix := ""
	if link = strings.TrimSpace(link); link != "" {
		suffix = " Read: " + link
	}
	if runeLen(suffix) > SMSLimit-minSMSHeader {
		suffix = ""
	}
	prefix := fmt.Sprintf("New message: %s. ", subject)

	budget := SMSLimit - runeLen(prefix) - runeLen(suffix)
	switch {
	case body != "" && runeLen(body) <= budget:
		return prefix + body + suffix
	case body != "" && budget > runeLen(ellipsis):
		return prefix + strings.TrimRight(firstRunes(body, budget-runeLen(ellipsis)), " ") + ellipsis + suffix
	}

	// No room for the body.
	head := strings.TrimRight(prefix, " ")
	if runeLen(head)+runeLen(suffix) <= SMSLimit {
		return head + suffix
	}
	subjectBudget := SMSLimit - runeLen(suffix) - minSMSHeader + 1
	return "New message: " + strings.TrimRight(firstRunes(subject, subjectBudget), " ") + ellipsis + "." + suffix
}

func runeLen(s string) int { return len([]rune(s)) }

func firstRunes(s string, n int) string {
	r := []rune(s)
	if n >= len(r) {
		return s
	}
	if n < 0 {
		n = 0
	}
	return string(r[:n])
}
