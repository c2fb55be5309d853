package service

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/broadcast-engine/internal/repository"
)

// DefaultDailyLimit is the per-recipient cap on deliveries created per day.
const DefaultDailyLimit = 50

// DailyLimiter caps how many deliveries one recipient gets per calendar day.
// Days start at midnight in Location.
type DailyLimiter struct {
	Deliveries repository.DeliveryRepositoryInterface
	Limit      int
	Location   *time.Location
	Now        func() time.Time
}

func (l *DailyLimiter) WithinDailyLimit(ctx context.Context, recipientID string) (bool, error) {
	limit := l.Limit
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	count, err := l.Deliveries.CountForRecipientSince(ctx, recipientID, l.DayStart(l.now()))
	if err != nil {
		return false, fmt.Errorf("count deliveries for %s: %w", recipientID, err)
	}
	return count < limit, nil
}

// DayStart is midnight of t's calendar day in the limiter's location.
func (l *DailyLimiter) DayStart(t time.Time) time.Time {
	loc := l.Location
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

func (l *DailyLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
