package service

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/broadcast-engine/internal/channel"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/repository"
)

// DeliveryTracker owns delivery records and their per-channel state machine.
type DeliveryTracker struct {
	Deliveries repository.DeliveryRepositoryInterface
	Channels   channel.Registry
	Now        func() time.Time
}

// Create is idempotent on (broadcast, recipient): a second call returns the
// stored record untouched. Channels start pending only when requested,
// configured and addressable; everything else starts skipped with a reason.
func (t *DeliveryTracker) Create(ctx context.Context, b *model.Broadcast, r model.Recipient) (*model.Delivery, error) {
	d := &model.Delivery{
		ID:          model.DeliveryID(b.ID, r.ID),
		BroadcastID: b.ID,
		RecipientID: r.ID,
		CreatedAt:   t.now(),
	}
	for _, ch := range model.AllChannels {
		*d.State(ch) = t.seed(b, r, ch)
	}

	stored, _, err := t.Deliveries.CreateIfAbsent(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create delivery %s: %w", d.ID, err)
	}
	return stored, nil
}

func (t *DeliveryTracker) seed(b *model.Broadcast, r model.Recipient, ch model.Channel) model.ChannelState {
	if !b.Channels.Requested(ch) {
		return model.ChannelState{Status: model.ChannelSkipped, Error: "channel not requested"}
	}
	adapter, ok := t.Channels.Get(ch)
	if !ok {
		return model.ChannelState{Status: model.ChannelSkipped, Error: fmt.Sprintf("%s not configured", ch)}
	}
	if !adapter.Addressable(r) {
		return model.ChannelState{Status: model.ChannelSkipped, Error: missingContact(ch)}
	}
	return model.ChannelState{Status: model.ChannelPending}
}

func missingContact(ch model.Channel) string {
	switch ch {
	case model.ChannelChat:
		return channel.ReasonNoChatID
	case model.ChannelEmail:
		return "no email address on file"
	case model.ChannelSMS:
		return "no phone number on file"
	}
	return "no contact for channel"
}

// UpdateChannelStatus settles one pending channel. Anything other than
// pending -> sent|failed|skipped is rejected, as is a write that lost a race.
func (t *DeliveryTracker) UpdateChannelStatus(ctx context.Context, deliveryID string, current model.ChannelStatus, ch model.Channel, res channel.Result) (model.ChannelState, error) {
	if !current.CanTransition(res.Status) {
		return model.ChannelState{}, fmt.Errorf("delivery %s %s: cannot move from %s to %s", deliveryID, ch, current, res.Status)
	}

	state := model.ChannelState{
		Status:    res.Status,
		MessageID: res.ProviderMessageID,
		Error:     res.Error,
	}
	if res.Status == model.ChannelSent {
		now := t.now()
		state.SentAt = &now
	}

	ok, err := t.Deliveries.UpdateChannel(ctx, deliveryID, ch, state)
	if err != nil {
		return model.ChannelState{}, fmt.Errorf("update delivery %s %s: %w", deliveryID, ch, err)
	}
	if !ok {
		return model.ChannelState{}, fmt.Errorf("delivery %s %s is no longer pending", deliveryID, ch)
	}
	return state, nil
}

func (t *DeliveryTracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
