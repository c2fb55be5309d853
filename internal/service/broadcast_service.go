// internal/service/broadcast_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/queue"
	"github.com/unclebandit/broadcast-engine/internal/repository"
	"github.com/unclebandit/broadcast-engine/internal/validation"
)

// SendTopic is the queue topic that carries broadcast ids to the worker.
const SendTopic = "broadcast_sends"

type BroadcastService struct {
	BroadcastRepo repository.BroadcastRepositoryInterface
	DeliveryRepo  repository.DeliveryRepositoryInterface
	Queue         queue.Queue
	Topic         string
	Now           func() time.Time
}

type BroadcastDetails struct {
	*model.Broadcast
	DeliveryCounts map[string]int `json:"delivery_counts"`
}

func (s *BroadcastService) CreateBroadcast(ctx context.Context, req model.CreateBroadcastRequest) (*model.Broadcast, error) {
	now := s.now()
	if err := validation.ValidateCreateBroadcast(ctx, req, now); err != nil {
		return nil, err
	}

	ids := req.RecipientIDs
	if len(ids) == 0 && req.UserSelection != nil {
		ids = req.UserSelection.SelectedUserIDs
	}

	b := &model.Broadcast{
		ID:              uuid.NewString(),
		Subject:         strings.TrimSpace(req.Subject),
		BodyHTML:        req.BodyHTML,
		SMSBody:         strings.TrimSpace(req.SMSBody),
		VideoURL:        req.VideoURL,
		CTAURL:          req.CTAURL,
		CTALabel:        req.CTALabel,
		RecipientIDs:    dedupe(ids),
		Roles:           dedupe(req.Roles),
		Channels:        req.Channels,
		ProducerChannel: strings.TrimSpace(req.ProducerChannel),
		Status:          model.BroadcastDraft,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
	}
	if req.ScheduledAt != nil {
		at := req.ScheduledAt.UTC()
		b.ScheduledAt = &at
		b.Status = model.BroadcastScheduled
	}

	if err := s.BroadcastRepo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBroadcasts fetches broadcasts with pagination
func (s *BroadcastService) ListBroadcasts(ctx context.Context, page, pageSize int, status string) ([]model.Broadcast, map[string]int, error) {
	if status != "" {
		if _, err := model.ParseBroadcastStatus(status); err != nil {
			return nil, nil, appErrors.NewValidationError(err.Error())
		}
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.BroadcastRepo.List(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	broadcasts := make([]model.Broadcast, len(ptrs))
	for i, b := range ptrs {
		broadcasts[i] = *b
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return broadcasts, pagination, nil
}

// GetBroadcastDetails returns the broadcast plus live per-channel delivery counts.
func (s *BroadcastService) GetBroadcastDetails(ctx context.Context, id string) (*BroadcastDetails, error) {
	b, err := s.BroadcastRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	deliveries, err := s.DeliveryRepo.ListByBroadcast(ctx, id)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{"total": len(deliveries), "read": 0}
	for _, d := range deliveries {
		if d.ReadAt != nil {
			counts["read"]++
		}
		for _, ch := range model.AllChannels {
			counts[fmt.Sprintf("%s_%s", ch, d.State(ch).Status)]++
		}
	}
	return &BroadcastDetails{Broadcast: b, DeliveryCounts: counts}, nil
}

func (s *BroadcastService) ListDeliveries(ctx context.Context, id string) ([]*model.Delivery, error) {
	if _, err := s.BroadcastRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.DeliveryRepo.ListByBroadcast(ctx, id)
}

func (s *BroadcastService) Schedule(ctx context.Context, id string, at time.Time) (*model.Broadcast, error) {
	if err := validation.ValidateSchedule(at, s.now()); err != nil {
		return nil, err
	}
	ok, err := s.BroadcastRepo.Schedule(ctx, id, at.UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.rejected(ctx, id, "scheduled")
	}
	return s.BroadcastRepo.GetByID(ctx, id)
}

func (s *BroadcastService) Unschedule(ctx context.Context, id string) (*model.Broadcast, error) {
	ok, err := s.BroadcastRepo.Unschedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.rejected(ctx, id, "unscheduled")
	}
	return s.BroadcastRepo.GetByID(ctx, id)
}

// Enqueue hands the broadcast to the worker instead of sending inline.
func (s *BroadcastService) Enqueue(ctx context.Context, id string) error {
	b, err := s.BroadcastRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !b.Status.Sendable() {
		return statusConflict(b, "queued")
	}
	topic := s.Topic
	if topic == "" {
		topic = SendTopic
	}
	if err := s.Queue.Publish(ctx, topic, id); err != nil {
		return fmt.Errorf("enqueue broadcast %s: %w", id, err)
	}
	return nil
}

// rejected explains a conditional write that matched no row.
func (s *BroadcastService) rejected(ctx context.Context, id, action string) error {
	b, err := s.BroadcastRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return statusConflict(b, action)
}

func statusConflict(b *model.Broadcast, action string) error {
	if b.Status.Terminal() {
		return fmt.Errorf("broadcast %s already finished as %s and cannot be %s: %w", b.ID, b.Status, action, appErrors.ErrInvalidStatus)
	}
	return fmt.Errorf("broadcast %s cannot be %s while %s: %w", b.ID, action, b.Status, appErrors.ErrInvalidStatus)
}

func (s *BroadcastService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
