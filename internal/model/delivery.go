// internal/model/delivery.go
package model

import (
	"fmt"
	"time"
)

type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// AllChannels is the fixed attempt order within one recipient.
var AllChannels = []Channel{ChannelChat, ChannelEmail, ChannelSMS}

type ChannelStatus string

const (
	ChannelSkipped ChannelStatus = "skipped"
	ChannelPending ChannelStatus = "pending"
	ChannelSent    ChannelStatus = "sent"
	ChannelFailed  ChannelStatus = "failed"
)

// CanTransition enforces that only pending moves, and only once.
func (s ChannelStatus) CanTransition(to ChannelStatus) bool {
	if s != ChannelPending {
		return false
	}
	switch to {
	case ChannelSent, ChannelFailed, ChannelSkipped:
		return true
	case ChannelPending:
		return false
	}
	return false
}

type ChannelState struct {
	Status    ChannelStatus `json:"status"`
	MessageID string        `json:"message_id,omitempty"`
	Error     string        `json:"error,omitempty"`
	SentAt    *time.Time    `json:"sent_at,omitempty"`
}

type Delivery struct {
	ID          string       `db:"id" json:"id"`
	BroadcastID string       `db:"broadcast_id" json:"broadcast_id"`
	RecipientID string       `db:"recipient_id" json:"recipient_id"`
	Chat        ChannelState `json:"chat"`
	Email       ChannelState `json:"email"`
	SMS         ChannelState `json:"sms"`
	ReadAt      *time.Time   `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// DeliveryID is deterministic so creation can be idempotent.
func DeliveryID(broadcastID, recipientID string) string {
	return fmt.Sprintf("%s:%s", broadcastID, recipientID)
}

func (d *Delivery) State(ch Channel) *ChannelState {
	switch ch {
	case ChannelChat:
		return &d.Chat
	case ChannelEmail:
		return &d.Email
	case ChannelSMS:
		return &d.SMS
	}
	return nil
}
