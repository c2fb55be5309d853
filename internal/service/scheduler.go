package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/repository"
)

// Sender is the dispatch entry point the sweep and the queue worker call.
type Sender interface {
	Send(ctx context.Context, broadcastID string) (*model.Stats, error)
}

type SweepError struct {
	BroadcastID string `json:"broadcast_id"`
	Error       string `json:"error"`
}

// SweepResult reports one pass. ProcessedCount counts broadcasts that were
// sent successfully; every other due broadcast appears in Errors.
type SweepResult struct {
	ProcessedCount int          `json:"processed_count"`
	Errors         []SweepError `json:"errors"`
}

// ScheduleSweeper sends every scheduled broadcast whose time has come.
type ScheduleSweeper struct {
	Broadcasts repository.BroadcastRepositoryInterface
	Sender     Sender
	Log        *logrus.Logger
	Now        func() time.Time
}

// ProcessDue sends due broadcasts one after another. A failing broadcast is
// recorded and the pass moves on; only a failed listing aborts the sweep.
func (s *ScheduleSweeper) ProcessDue(ctx context.Context) (*SweepResult, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	due, err := s.Broadcasts.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due broadcasts: %w", err)
	}

	result := &SweepResult{Errors: []SweepError{}}
	for _, b := range due {
		if _, err := s.Sender.Send(ctx, b.ID); err != nil {
			s.Log.WithError(err).WithField("broadcastId", b.ID).Warn("⏰ [SWEEP] Scheduled broadcast not sent")
			result.Errors = append(result.Errors, SweepError{BroadcastID: b.ID, Error: err.Error()})
			continue
		}
		result.ProcessedCount++
	}

	if len(due) > 0 {
		s.Log.WithFields(logrus.Fields{
			"due":       len(due),
			"processed": result.ProcessedCount,
			"failed":    len(result.Errors),
		}).Info("⏰ [SWEEP] Sweep finished")
	}
	return result, nil
}
