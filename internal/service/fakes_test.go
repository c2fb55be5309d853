package service_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/broadcast-engine/internal/channel"
	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/repository"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// ====================== Broadcasts ======================

type memBroadcasts struct {
	mu    sync.Mutex
	items map[string]*model.Broadcast
	order []string
}

func newMemBroadcasts(bs ...*model.Broadcast) *memBroadcasts {
	m := &memBroadcasts{items: map[string]*model.Broadcast{}}
	for _, b := range bs {
		_ = m.Create(context.Background(), b)
	}
	return m
}

func (m *memBroadcasts) Create(ctx context.Context, b *model.Broadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Status == "" {
		b.Status = model.BroadcastDraft
	}
	cp := *b
	m.items[b.ID] = &cp
	m.order = append(m.order, b.ID)
	return nil
}

func (m *memBroadcasts) GetByID(ctx context.Context, id string) (*model.Broadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, appErrors.NewBroadcastNotFound(id)
	}
	cp := *b
	return &cp, nil
}

func (m *memBroadcasts) List(ctx context.Context, offset, limit int, status string) ([]*model.Broadcast, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Broadcast
	for i := len(m.order) - 1; i >= 0; i-- {
		b := m.items[m.order[i]]
		if status != "" && string(b.Status) != status {
			continue
		}
		cp := *b
		all = append(all, &cp)
	}
	if offset >= len(all) {
		return []*model.Broadcast{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memBroadcasts) TransitionStatus(ctx context.Context, id string, from []model.BroadcastStatus, to model.BroadcastStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memBroadcasts) Schedule(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok || (b.Status != model.BroadcastDraft && b.Status != model.BroadcastScheduled) {
		return false, nil
	}
	b.Status = model.BroadcastScheduled
	b.ScheduledAt = &at
	return true, nil
}

func (m *memBroadcasts) Unschedule(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok || b.Status != model.BroadcastScheduled {
		return false, nil
	}
	b.Status = model.BroadcastDraft
	b.ScheduledAt = nil
	return true, nil
}

func (m *memBroadcasts) MarkSent(ctx context.Context, id string, stats model.Stats, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok || b.Status != model.BroadcastSending {
		return fmt.Errorf("mark broadcast %s sent: %w", id, appErrors.ErrInvalidStatus)
	}
	b.Status = model.BroadcastSent
	b.Stats = &stats
	b.SentAt = &sentAt
	b.ScheduledAt = nil
	return nil
}

func (m *memBroadcasts) MarkFailed(ctx context.Context, id string, stats *model.Stats, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok || b.Status != model.BroadcastSending {
		return nil
	}
	b.Status = model.BroadcastFailed
	if stats != nil {
		cp := *stats
		b.Stats = &cp
	}
	b.LastError = reason
	return nil
}

func (m *memBroadcasts) ListDue(ctx context.Context, now time.Time) ([]*model.Broadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*model.Broadcast
	for _, id := range m.order {
		b := m.items[id]
		if b.Status == model.BroadcastScheduled && b.ScheduledAt != nil && !b.ScheduledAt.After(now) {
			cp := *b
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (m *memBroadcasts) IncrementReadCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.items[id]; ok && b.Stats != nil {
		b.Stats.ReadCount++
	}
	return nil
}

func (m *memBroadcasts) get(id string) *model.Broadcast {
	b, _ := m.GetByID(context.Background(), id)
	return b
}

// ====================== Deliveries ======================

type memDeliveries struct {
	mu      sync.Mutex
	items   map[string]*model.Delivery
	creates int
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{items: map[string]*model.Delivery{}}
}

func (m *memDeliveries) CreateIfAbsent(ctx context.Context, d *model.Delivery) (*model.Delivery, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[d.ID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *d
	m.items[d.ID] = &cp
	m.creates++
	out := cp
	return &out, true, nil
}

func (m *memDeliveries) GetByID(ctx context.Context, id string) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memDeliveries) UpdateChannel(ctx context.Context, id string, ch model.Channel, state model.ChannelState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok || d.State(ch).Status != model.ChannelPending {
		return false, nil
	}
	*d.State(ch) = state
	return true, nil
}

func (m *memDeliveries) CountForRecipientSince(ctx context.Context, recipientID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.items {
		if d.RecipientID == recipientID && !d.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memDeliveries) ListByBroadcast(ctx context.Context, broadcastID string) ([]*model.Delivery, error) {
	return m.filter(func(d *model.Delivery) bool { return d.BroadcastID == broadcastID }, func(a, b *model.Delivery) bool {
		return a.RecipientID < b.RecipientID
	}, 0), nil
}

func (m *memDeliveries) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*model.Delivery, error) {
	return m.filter(func(d *model.Delivery) bool { return d.RecipientID == recipientID }, func(a, b *model.Delivery) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}, limit), nil
}

func (m *memDeliveries) filter(keep func(*model.Delivery) bool, less func(a, b *model.Delivery) bool, limit int) []*model.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Delivery{}
	for _, d := range m.items {
		if keep(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memDeliveries) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok || d.ReadAt != nil {
		return false, nil
	}
	d.ReadAt = &at
	return true, nil
}

func (m *memDeliveries) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *memDeliveries) get(id string) *model.Delivery {
	d, _ := m.GetByID(context.Background(), id)
	return d
}

// ====================== Recipients ======================

type memRecipients struct {
	all []model.Recipient
}

func (m *memRecipients) GetByID(ctx context.Context, id string) (*model.Recipient, error) {
	for _, r := range m.all {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRecipients) GetByIDs(ctx context.Context, ids []string) ([]model.Recipient, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Recipient
	for _, r := range m.all {
		if want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecipients) GetByRoles(ctx context.Context, roles []string) ([]model.Recipient, error) {
	want := map[string]bool{}
	for _, role := range roles {
		want[role] = true
	}
	var out []model.Recipient
	for _, r := range m.all {
		if want[r.Role] {
			out = append(out, r)
		}
	}
	return out, nil
}

// ====================== Adapters ======================

type fakeAdapter struct {
	ch          model.Channel
	addressable func(model.Recipient) bool
	send        func(ctx context.Context, r model.Recipient) channel.Result

	mu    sync.Mutex
	calls []string
}

func (f *fakeAdapter) Channel() model.Channel { return f.ch }
func (f *fakeAdapter) Configured() bool       { return true }

func (f *fakeAdapter) Addressable(r model.Recipient) bool {
	if f.addressable == nil {
		return true
	}
	return f.addressable(r)
}

func (f *fakeAdapter) Send(ctx context.Context, r model.Recipient, c channel.Content) channel.Result {
	f.mu.Lock()
	f.calls = append(f.calls, r.ID)
	f.mu.Unlock()
	if f.send == nil {
		return channel.Sent(string(f.ch) + "-" + r.ID)
	}
	return f.send(ctx, r)
}

func (f *fakeAdapter) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func chatAdapter() *fakeAdapter {
	return &fakeAdapter{ch: model.ChannelChat, addressable: func(r model.Recipient) bool { return r.ChatID != "" }}
}

func emailAdapter() *fakeAdapter {
	return &fakeAdapter{ch: model.ChannelEmail, addressable: func(r model.Recipient) bool { return r.Email != "" }}
}

func smsAdapter() *fakeAdapter {
	return &fakeAdapter{ch: model.ChannelSMS, addressable: func(r model.Recipient) bool { return r.Phone != "" }}
}

var (
	_ repository.BroadcastRepositoryInterface = (*memBroadcasts)(nil)
	_ repository.DeliveryRepositoryInterface  = (*memDeliveries)(nil)
	_ repository.RecipientRepositoryInterface = (*memRecipients)(nil)
)
