package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
)

type BroadcastRepositoryInterface interface {
	// Broadcast CRUD
	Create(ctx context.Context, b *model.Broadcast) error
	GetByID(ctx context.Context, id string) (*model.Broadcast, error)
	List(ctx context.Context, offset, limit int, status string) ([]*model.Broadcast, int, error)

	// Status transitions
	TransitionStatus(ctx context.Context, id string, from []model.BroadcastStatus, to model.BroadcastStatus) (bool, error)
	Schedule(ctx context.Context, id string, at time.Time) (bool, error)
	Unschedule(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, stats model.Stats, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, stats *model.Stats, reason string) error

	// Sweep and inbox support
	ListDue(ctx context.Context, now time.Time) ([]*model.Broadcast, error)
	IncrementReadCount(ctx context.Context, id string) error
}

type BroadcastRepository struct {
	DB *sql.DB
}

const broadcastColumns = `id, subject, body_html, sms_body, video_url, cta_url, cta_label,
        recipient_ids, roles, channel_chat, channel_email, channel_sms, producer_channel,
        status, scheduled_at, sent_at, stats, last_error, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBroadcast(row rowScanner) (*model.Broadcast, error) {
	var (
		b      model.Broadcast
		status string
		stats  nullStats
	)
	err := row.Scan(
		&b.ID, &b.Subject, &b.BodyHTML, &b.SMSBody, &b.VideoURL, &b.CTAURL, &b.CTALabel,
		pq.Array(&b.RecipientIDs), pq.Array(&b.Roles),
		&b.Channels.Chat, &b.Channels.Email, &b.Channels.SMS, &b.ProducerChannel,
		&status, &b.ScheduledAt, &b.SentAt, &stats, &b.LastError, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.Status, err = model.ParseBroadcastStatus(status); err != nil {
		return nil, err
	}
	if stats.Valid {
		b.Stats = &stats.Stats
	}
	return &b, nil
}

type nullStats struct {
	Stats model.Stats
	Valid bool
}

func (n *nullStats) Scan(src any) error {
	if src == nil {
		n.Valid = false
		return nil
	}
	n.Valid = true
	return n.Stats.Scan(src)
}

// ====================== Broadcast CRUD ======================

func (r *BroadcastRepository) Create(ctx context.Context, b *model.Broadcast) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	if b.Status == "" {
		b.Status = model.BroadcastDraft
	}
	query := `
        INSERT INTO broadcasts (id, subject, body_html, sms_body, video_url, cta_url, cta_label,
            recipient_ids, roles, channel_chat, channel_email, channel_sms, producer_channel,
            status, scheduled_at, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
    `
	_, err := r.DB.ExecContext(ctx, query,
		b.ID, b.Subject, b.BodyHTML, b.SMSBody, b.VideoURL, b.CTAURL, b.CTALabel,
		pq.Array(b.RecipientIDs), pq.Array(b.Roles),
		b.Channels.Chat, b.Channels.Email, b.Channels.SMS, b.ProducerChannel,
		string(b.Status), b.ScheduledAt, b.CreatedBy, b.CreatedAt,
	)
	return err
}

func (r *BroadcastRepository) GetByID(ctx context.Context, id string) (*model.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE id=$1`
	b, err := scanBroadcast(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewBroadcastNotFound(id)
		}
		return nil, err
	}
	return b, nil
}

func (r *BroadcastRepository) List(ctx context.Context, offset, limit int, status string) ([]*model.Broadcast, int, error) {
	broadcasts := []*model.Broadcast{}
	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query := `SELECT ` + broadcastColumns + ` FROM broadcasts` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, 0, err
		}
		broadcasts = append(broadcasts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM broadcasts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return broadcasts, total, nil
}

// ====================== Status transitions ======================

// TransitionStatus is a single conditional write: it only succeeds when the
// current status is one of from. Concurrent callers race on this row and at
// most one of them observes true.
func (r *BroadcastRepository) TransitionStatus(ctx context.Context, id string, from []model.BroadcastStatus, to model.BroadcastStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	query := `UPDATE broadcasts SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`
	res, err := r.DB.ExecContext(ctx, query, string(to), id, pq.Array(allowed))
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *BroadcastRepository) Schedule(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
        UPDATE broadcasts SET status='scheduled', scheduled_at=$1, updated_at=NOW()
        WHERE id=$2 AND status IN ('draft', 'scheduled')
    `
	res, err := r.DB.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *BroadcastRepository) Unschedule(ctx context.Context, id string) (bool, error) {
	query := `
        UPDATE broadcasts SET status='draft', scheduled_at=NULL, updated_at=NOW()
        WHERE id=$1 AND status='scheduled'
    `
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *BroadcastRepository) MarkSent(ctx context.Context, id string, stats model.Stats, sentAt time.Time) error {
	query := `
        UPDATE broadcasts
        SET status='sent', stats=$1, sent_at=$2, scheduled_at=NULL, last_error='', updated_at=NOW()
        WHERE id=$3 AND status='sending'
    `
	res, err := r.DB.ExecContext(ctx, query, stats, sentAt, id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mark broadcast %s sent: %w", id, appErrors.ErrInvalidStatus)
	}
	return nil
}

func (r *BroadcastRepository) MarkFailed(ctx context.Context, id string, stats *model.Stats, reason string) error {
	query := `
        UPDATE broadcasts
        SET status='failed', stats=$1, last_error=$2, updated_at=NOW()
        WHERE id=$3 AND status='sending'
    `
	_, err := r.DB.ExecContext(ctx, query, stats, truncate(reason, 1000), id)
	return err
}

// ====================== Sweep and inbox ======================

func (r *BroadcastRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + `
        FROM broadcasts
        WHERE status='scheduled' AND scheduled_at <= $1
        ORDER BY scheduled_at, id`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []*model.Broadcast{}
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, b)
	}
	return due, rows.Err()
}

func (r *BroadcastRepository) IncrementReadCount(ctx context.Context, id string) error {
	query := `
        UPDATE broadcasts
        SET stats = jsonb_set(stats, '{readCount}', to_jsonb(COALESCE((stats->>'readCount')::int, 0) + 1))
        WHERE id=$1 AND stats IS NOT NULL
    `
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// truncate keeps at most n runes so multi-byte text is never split.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

var _ BroadcastRepositoryInterface = (*BroadcastRepository)(nil)
