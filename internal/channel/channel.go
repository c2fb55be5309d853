// Package channel holds the transport adapters a broadcast fans out through.
// Each adapter wraps one external provider behind the same Send contract.
package channel

import (
	"context"
	"strings"
	"sync"

	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/time/rate"

	"github.com/unclebandit/broadcast-engine/internal/model"
)

// Content is what every adapter renders from one broadcast.
type Content struct {
	BroadcastID     string
	Subject         string
	BodyHTML        string
	SMSBody         string
	VideoURL        string
	CTAURL          string
	CTALabel        string
	ReadURL         string
	InboxURL        string
	ProducerChannel string
	// ProducerPost guards the single producer-channel post of one dispatch
	// pass. Nil disables the post.
	ProducerPost *sync.Once
}

// Result is the outcome of one send attempt. Skipped is an expected data gap,
// Failed is a transport error.
type Result struct {
	Status            model.ChannelStatus
	ProviderMessageID string
	Error             string
}

func Sent(providerID string) Result {
	return Result{Status: model.ChannelSent, ProviderMessageID: providerID}
}

func Failed(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Status: model.ChannelFailed, Error: msg}
}

func Skipped(reason string) Result {
	return Result{Status: model.ChannelSkipped, Error: reason}
}

// Adapter is the uniform contract of the chat, email and SMS transports.
type Adapter interface {
	Channel() model.Channel
	// Configured is false when credentials are missing; the tracker then
	// seeds the channel as skipped instead of attempting it.
	Configured() bool
	// Addressable reports whether the recipient has the contact field this
	// channel needs.
	Addressable(r model.Recipient) bool
	Send(ctx context.Context, r model.Recipient, c Content) Result
}

// Registry maps each channel to its adapter. Missing entries are unconfigured.
type Registry map[model.Channel]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	reg := Registry{}
	for _, a := range adapters {
		if a != nil {
			reg[a.Channel()] = a
		}
	}
	return reg
}

func (r Registry) Get(ch model.Channel) (Adapter, bool) {
	a, ok := r[ch]
	if !ok || a == nil || !a.Configured() {
		return nil, false
	}
	return a, true
}

// newLimiter builds an optional pacing limiter; rps <= 0 disables pacing.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// validEmail accepts bare addresses only, not "Name <addr>" forms.
func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && is.EmailFormat.Validate(s) == nil
}
