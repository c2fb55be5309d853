package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/broadcast-engine/internal/channel"
	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/repository"
)

const (
	DefaultAdapterTimeout = 30 * time.Second
	finalizeTimeout       = 10 * time.Second
)

// Links builds the in-app URLs embedded in every rendered message.
type Links struct {
	BaseURL string
}

func (l Links) Read(broadcastID string) string {
	if l.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(l.BaseURL, "/") + "/messages/" + broadcastID
}

func (l Links) Inbox() string {
	if l.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(l.BaseURL, "/") + "/messages"
}

// Dispatcher runs one send pass of a broadcast: claim, resolve, fan out per
// recipient and channel, then settle the broadcast with aggregate stats.
type Dispatcher struct {
	Broadcasts     repository.BroadcastRepositoryInterface
	Resolver       *RecipientResolver
	Limiter        *DailyLimiter
	Tracker        *DeliveryTracker
	Channels       channel.Registry
	Links          Links
	AdapterTimeout time.Duration
	Log            *logrus.Logger
	Now            func() time.Time
}

// Send dispatches broadcastID. Only one concurrent caller can claim a
// broadcast; the others get ErrInvalidStatus without side effects.
func (d *Dispatcher) Send(ctx context.Context, broadcastID string) (stats *model.Stats, err error) {
	log := d.Log.WithField("broadcastId", broadcastID)

	b, err := d.Broadcasts.GetByID(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if !b.Status.Sendable() {
		return nil, fmt.Errorf("broadcast %s is %s: %w", broadcastID, b.Status, appErrors.ErrInvalidStatus)
	}

	claimed, err := d.Broadcasts.TransitionStatus(ctx, broadcastID,
		[]model.BroadcastStatus{model.BroadcastDraft, model.BroadcastScheduled}, model.BroadcastSending)
	if err != nil {
		return nil, fmt.Errorf("claim broadcast %s: %w", broadcastID, err)
	}
	if !claimed {
		return nil, fmt.Errorf("broadcast %s is already being sent: %w", broadcastID, appErrors.ErrInvalidStatus)
	}
	log.Info("🚀 [DISPATCH] Broadcast claimed")

	acc := &model.Stats{}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("dispatch panicked: %v", rec)
		}
		if err != nil {
			stats = nil
			d.fail(ctx, broadcastID, acc, err)
		}
	}()

	if err = d.run(ctx, b, acc); err != nil {
		return nil, err
	}

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err = d.Broadcasts.MarkSent(finalizeCtx, broadcastID, *acc, d.now()); err != nil {
		return nil, fmt.Errorf("finalize broadcast %s: %w", broadcastID, err)
	}

	log.WithFields(logrus.Fields{
		"recipients": acc.TotalRecipients,
		"chatSent":   acc.ChatSent,
		"emailSent":  acc.EmailSent,
		"smsSent":    acc.SMSSent,
	}).Info("✅ [DISPATCH] Broadcast sent")
	return acc, nil
}

func (d *Dispatcher) run(ctx context.Context, b *model.Broadcast, acc *model.Stats) error {
	log := d.Log.WithField("broadcastId", b.ID)

	recipients, err := d.Resolver.Resolve(ctx, b)
	if err != nil {
		return err
	}
	content := d.content(b)

	for _, r := range recipients {
		within, err := d.Limiter.WithinDailyLimit(ctx, r.ID)
		if err != nil {
			return err
		}
		if !within {
			log.WithField("recipientId", r.ID).Info("⏸️ [DISPATCH] Daily limit reached, recipient skipped")
			continue
		}

		delivery, err := d.Tracker.Create(ctx, b, r)
		if err != nil {
			return err
		}
		acc.TotalRecipients++

		for _, ch := range model.AllChannels {
			if !b.Channels.Requested(ch) {
				continue
			}
			state := delivery.State(ch)
			if state.Status == model.ChannelPending {
				res := d.attempt(ctx, ch, r, content)
				settled, err := d.Tracker.UpdateChannelStatus(ctx, delivery.ID, state.Status, ch, res)
				if err != nil {
					return err
				}
				*state = settled
				d.logOutcome(log, r.ID, ch, settled)
			}
			acc.Record(ch, state.Status)
		}
	}
	return nil
}

// attempt calls one adapter under its own deadline. A panicking or hanging
// adapter becomes a failed channel and never aborts the pass.
func (d *Dispatcher) attempt(ctx context.Context, ch model.Channel, r model.Recipient, c channel.Content) (res channel.Result) {
	adapter, ok := d.Channels.Get(ch)
	if !ok {
		return channel.Skipped(fmt.Sprintf("%s not configured", ch))
	}

	timeout := d.AdapterTimeout
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			res = channel.Result{Status: model.ChannelFailed, Error: fmt.Sprintf("%s adapter panicked: %v", ch, rec)}
		}
	}()

	res = adapter.Send(callCtx, r, c)
	if res.Status != model.ChannelSent && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return channel.Result{Status: model.ChannelFailed, Error: fmt.Sprintf("%s provider timed out after %s", ch, timeout)}
	}
	switch res.Status {
	case model.ChannelSent, model.ChannelFailed, model.ChannelSkipped:
		return res
	}
	return channel.Result{Status: model.ChannelFailed, Error: fmt.Sprintf("%s adapter returned no outcome", ch)}
}

func (d *Dispatcher) content(b *model.Broadcast) channel.Content {
	return channel.Content{
		BroadcastID:     b.ID,
		Subject:         b.Subject,
		BodyHTML:        b.BodyHTML,
		SMSBody:         b.SMSBody,
		VideoURL:        b.VideoURL,
		CTAURL:          b.CTAURL,
		CTALabel:        b.CTALabel,
		ReadURL:         d.Links.Read(b.ID),
		InboxURL:        d.Links.Inbox(),
		ProducerChannel: b.ProducerChannel,
		ProducerPost:    new(sync.Once),
	}
}

// fail settles the broadcast as failed even when ctx is already done. Stats
// are kept only if at least one recipient was processed.
func (d *Dispatcher) fail(ctx context.Context, broadcastID string, acc *model.Stats, cause error) {
	log := d.Log.WithField("broadcastId", broadcastID).WithError(cause)

	var stats *model.Stats
	if acc != nil && acc.TotalRecipients > 0 {
		stats = acc
	}
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := d.Broadcasts.MarkFailed(finalizeCtx, broadcastID, stats, cause.Error()); err != nil {
		log.WithField("markError", err.Error()).Error("❌ [DISPATCH] Could not mark broadcast failed")
		return
	}
	log.Error("❌ [DISPATCH] Broadcast failed")
}

func (d *Dispatcher) logOutcome(log *logrus.Entry, recipientID string, ch model.Channel, s model.ChannelState) {
	entry := log.WithFields(logrus.Fields{"recipientId": recipientID, "channel": ch})
	switch s.Status {
	case model.ChannelSent:
		entry.WithField("messageId", s.MessageID).Debug("📤 [DISPATCH] Delivered")
	case model.ChannelSkipped:
		entry.WithField("reason", s.Error).Info("⏭️ [DISPATCH] Channel skipped")
	default:
		entry.WithField("error", s.Error).Warn("⚠️ [DISPATCH] Channel failed")
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
