// internal/model/broadcast_request.go
package model

import "time"

// CreateBroadcastRequest is the authoring payload accepted by the admin API.
type CreateBroadcastRequest struct {
	Subject         string         `json:"subject"`
	BodyHTML        string         `json:"body_html"`
	SMSBody         string         `json:"sms_body"`
	VideoURL        string         `json:"video_url"`
	CTAURL          string         `json:"cta_url"`
	CTALabel        string         `json:"cta_label"`
	RecipientIDs    []string       `json:"recipient_ids"`
	UserSelection   *UserSelection `json:"user_selection"`
	Roles           []string       `json:"roles"`
	Channels        Channels       `json:"channels"`
	ProducerChannel string         `json:"producer_channel"`
	ScheduledAt     *time.Time     `json:"scheduled_at"`
	CreatedBy       string         `json:"created_by"`
}
