package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/repository"
)

const inboxLimit = 50

// InboxMessage is one broadcast as its recipient sees it in the app.
type InboxMessage struct {
	BroadcastID string     `json:"broadcast_id"`
	Subject     string     `json:"subject"`
	BodyHTML    string     `json:"body_html"`
	VideoURL    string     `json:"video_url,omitempty"`
	CTAURL      string     `json:"cta_url,omitempty"`
	CTALabel    string     `json:"cta_label,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type InboxService struct {
	BroadcastRepo repository.BroadcastRepositoryInterface
	DeliveryRepo  repository.DeliveryRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Log           *logrus.Logger
	Now           func() time.Time
}

// ListMessages returns the recipient's most recent broadcasts, newest first.
func (s *InboxService) ListMessages(ctx context.Context, recipientID string) ([]InboxMessage, error) {
	r, err := s.RecipientRepo.GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("recipient %s: %w", recipientID, appErrors.ErrRecipientNotFound)
	}

	deliveries, err := s.DeliveryRepo.ListByRecipient(ctx, recipientID, inboxLimit)
	if err != nil {
		return nil, err
	}

	messages := make([]InboxMessage, 0, len(deliveries))
	for _, d := range deliveries {
		b, err := s.BroadcastRepo.GetByID(ctx, d.BroadcastID)
		if err != nil {
			if appErrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		messages = append(messages, InboxMessage{
			BroadcastID: b.ID,
			Subject:     b.Subject,
			BodyHTML:    b.BodyHTML,
			VideoURL:    b.VideoURL,
			CTAURL:      b.CTAURL,
			CTALabel:    b.CTALabel,
			SentAt:      b.SentAt,
			ReadAt:      d.ReadAt,
		})
	}
	return messages, nil
}

// MarkRead records the first read of a broadcast by a recipient. Repeat
// reads are no-ops and do not bump the broadcast's read count.
func (s *InboxService) MarkRead(ctx context.Context, recipientID, broadcastID string) error {
	id := model.DeliveryID(broadcastID, recipientID)
	d, err := s.DeliveryRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("recipient %s, broadcast %s: %w", recipientID, broadcastID, appErrors.ErrDeliveryNotFound)
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	first, err := s.DeliveryRepo.MarkRead(ctx, id, now)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	if err := s.BroadcastRepo.IncrementReadCount(ctx, broadcastID); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"broadcastId": broadcastID, "recipientId": recipientID}).Debug("📬 [INBOX] Marked read")
	return nil
}
