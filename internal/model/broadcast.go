// internal/model/broadcast.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BroadcastStatus is the lifecycle state of a broadcast.
type BroadcastStatus string

const (
	BroadcastDraft     BroadcastStatus = "draft"
	BroadcastScheduled BroadcastStatus = "scheduled"
	BroadcastSending   BroadcastStatus = "sending"
	BroadcastSent      BroadcastStatus = "sent"
	BroadcastFailed    BroadcastStatus = "failed"
)

// Sendable reports whether a dispatch pass may start from this status.
func (s BroadcastStatus) Sendable() bool {
	switch s {
	case BroadcastDraft, BroadcastScheduled:
		return true
	case BroadcastSending, BroadcastSent, BroadcastFailed:
		return false
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s BroadcastStatus) Terminal() bool {
	return s == BroadcastSent || s == BroadcastFailed
}

func ParseBroadcastStatus(s string) (BroadcastStatus, error) {
	switch st := BroadcastStatus(s); st {
	case BroadcastDraft, BroadcastScheduled, BroadcastSending, BroadcastSent, BroadcastFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown broadcast status %q", s)
}

type Broadcast struct {
	ID       string `db:"id" json:"id"`
	Subject  string `db:"subject" json:"subject"`
	BodyHTML string `db:"body_html" json:"body_html"`
	SMSBody  string `db:"sms_body" json:"sms_body"`
	VideoURL string `db:"video_url" json:"video_url,omitempty"`
	CTAURL   string `db:"cta_url" json:"cta_url,omitempty"`
	CTALabel string `db:"cta_label" json:"cta_label,omitempty"`

	RecipientIDs  []string       `db:"recipient_ids" json:"recipient_ids,omitempty"`
	UserSelection *UserSelection `json:"user_selection,omitempty"`
	Roles         []string       `db:"roles" json:"roles,omitempty"`

	Channels        Channels `json:"channels"`
	ProducerChannel string   `db:"producer_channel" json:"producer_channel,omitempty"`

	Status      BroadcastStatus `db:"status" json:"status"`
	ScheduledAt *time.Time      `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt      *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	Stats       *Stats          `db:"stats" json:"stats,omitempty"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`

	CreatedBy string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Channels holds the per-channel request flags of a broadcast.
type Channels struct {
	Chat  bool `db:"channel_chat" json:"chat"`
	Email bool `db:"channel_email" json:"email"`
	SMS   bool `db:"channel_sms" json:"sms"`
}

func (c Channels) Requested(ch Channel) bool {
	switch ch {
	case ChannelChat:
		return c.Chat
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.SMS
	}
	return false
}

func (c Channels) Any() bool { return c.Chat || c.Email || c.SMS }

// TargetKind tags which targeting mode a broadcast uses.
type TargetKind int

const (
	TargetByIDs TargetKind = iota
	TargetByRoles
)

// UserSelection is the older client shape for an explicit id list.
type UserSelection struct {
	SelectedUserIDs []string `json:"selected_user_ids"`
}

// Targeting is resolved once per dispatch pass. Explicit ids (or their
// userSelection alias) win over roles.
type Targeting struct {
	Kind  TargetKind
	IDs   []string
	Roles []string
}

func (b *Broadcast) Targeting() Targeting {
	if len(b.RecipientIDs) > 0 {
		return Targeting{Kind: TargetByIDs, IDs: b.RecipientIDs}
	}
	if b.UserSelection != nil && len(b.UserSelection.SelectedUserIDs) > 0 {
		return Targeting{Kind: TargetByIDs, IDs: b.UserSelection.SelectedUserIDs}
	}
	return Targeting{Kind: TargetByRoles, Roles: b.Roles}
}

// Stats is the aggregate outcome of a finished dispatch pass. Skipped channels
// are also counted as failed.
type Stats struct {
	TotalRecipients int `json:"totalRecipients"`
	ChatSent        int `json:"chatSent"`
	ChatFailed      int `json:"chatFailed"`
	ChatSkipped     int `json:"chatSkipped"`
	EmailSent       int `json:"emailSent"`
	EmailFailed     int `json:"emailFailed"`
	EmailSkipped    int `json:"emailSkipped"`
	SMSSent         int `json:"smsSent"`
	SMSFailed       int `json:"smsFailed"`
	SMSSkipped      int `json:"smsSkipped"`
	ReadCount       int `json:"readCount"`
}

// Record folds one requested channel outcome into the totals.
func (s *Stats) Record(ch Channel, st ChannelStatus) {
	sent, failed, skipped := s.counters(ch)
	if sent == nil {
		return
	}
	switch st {
	case ChannelSent:
		*sent++
	case ChannelSkipped:
		*skipped++
		*failed++
	default:
		*failed++
	}
}

func (s *Stats) counters(ch Channel) (sent, failed, skipped *int) {
	switch ch {
	case ChannelChat:
		return &s.ChatSent, &s.ChatFailed, &s.ChatSkipped
	case ChannelEmail:
		return &s.EmailSent, &s.EmailFailed, &s.EmailSkipped
	case ChannelSMS:
		return &s.SMSSent, &s.SMSFailed, &s.SMSSkipped
	}
	return nil, nil, nil
}

// Value stores stats as JSONB.
func (s Stats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Stats) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return fmt.Errorf("cannot scan %T into Stats", src)
}
