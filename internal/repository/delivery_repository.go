package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/broadcast-engine/internal/model"
)

type DeliveryRepositoryInterface interface {
	CreateIfAbsent(ctx context.Context, d *model.Delivery) (*model.Delivery, bool, error)
	GetByID(ctx context.Context, id string) (*model.Delivery, error)
	UpdateChannel(ctx context.Context, id string, ch model.Channel, state model.ChannelState) (bool, error)
	CountForRecipientSince(ctx context.Context, recipientID string, since time.Time) (int, error)
	ListByBroadcast(ctx context.Context, broadcastID string) ([]*model.Delivery, error)
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*model.Delivery, error)
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
}

type DeliveryRepository struct {
	DB *sql.DB
}

const deliveryColumns = `id, broadcast_id, recipient_id,
        chat_status, chat_message_id, chat_error, chat_sent_at,
        email_status, email_message_id, email_error, email_sent_at,
        sms_status, sms_message_id, sms_error, sms_sent_at,
        read_at, created_at`

func scanDelivery(row rowScanner) (*model.Delivery, error) {
	var (
		d                      model.Delivery
		chatSt, emailSt, smsSt string
	)
	err := row.Scan(
		&d.ID, &d.BroadcastID, &d.RecipientID,
		&chatSt, &d.Chat.MessageID, &d.Chat.Error, &d.Chat.SentAt,
		&emailSt, &d.Email.MessageID, &d.Email.Error, &d.Email.SentAt,
		&smsSt, &d.SMS.MessageID, &d.SMS.Error, &d.SMS.SentAt,
		&d.ReadAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Chat.Status = model.ChannelStatus(chatSt)
	d.Email.Status = model.ChannelStatus(emailSt)
	d.SMS.Status = model.ChannelStatus(smsSt)
	return &d, nil
}

// CreateIfAbsent inserts the delivery unless one with the same composite id
// exists, in which case the stored record is returned with created=false.
func (r *DeliveryRepository) CreateIfAbsent(ctx context.Context, d *model.Delivery) (*model.Delivery, bool, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO deliveries (id, broadcast_id, recipient_id,
            chat_status, chat_error, email_status, email_error, sms_status, sms_error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query,
		d.ID, d.BroadcastID, d.RecipientID,
		string(d.Chat.Status), d.Chat.Error,
		string(d.Email.Status), d.Email.Error,
		string(d.SMS.Status), d.SMS.Error,
		d.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	created, err := affectedOne(res)
	if err != nil {
		return nil, false, err
	}
	if created {
		return d, true, nil
	}

	existing, err := r.GetByID(ctx, d.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("delivery %s conflicted but could not be fetched", d.ID)
	}
	return existing, false, nil
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*model.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id=$1`
	d, err := scanDelivery(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// UpdateChannel writes only the columns of one channel, and only while that
// channel is still pending.
func (r *DeliveryRepository) UpdateChannel(ctx context.Context, id string, ch model.Channel, state model.ChannelState) (bool, error) {
	prefix, err := channelPrefix(ch)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
        UPDATE deliveries
        SET %[1]s_status=$1, %[1]s_message_id=$2, %[1]s_error=$3, %[1]s_sent_at=$4
        WHERE id=$5 AND %[1]s_status='pending'
    `, prefix)
	res, err := r.DB.ExecContext(ctx, query, string(state.Status), state.MessageID, truncate(state.Error, 1000), state.SentAt, id)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *DeliveryRepository) CountForRecipientSince(ctx context.Context, recipientID string, since time.Time) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `
        SELECT COUNT(*)
        FROM deliveries
        WHERE recipient_id = $1 AND created_at >= $2`, recipientID, since).Scan(&count)
	return count, err
}

func (r *DeliveryRepository) ListByBroadcast(ctx context.Context, broadcastID string) ([]*model.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE broadcast_id=$1 ORDER BY recipient_id`
	return r.list(ctx, query, broadcastID)
}

func (r *DeliveryRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*model.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE recipient_id=$1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, recipientID, limit)
}

func (r *DeliveryRepository) list(ctx context.Context, query string, args ...any) ([]*model.Delivery, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []*model.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// MarkRead sets the read marker once; later calls report false.
func (r *DeliveryRepository) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE deliveries SET read_at=$1 WHERE id=$2 AND read_at IS NULL`, at, id)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func channelPrefix(ch model.Channel) (string, error) {
	switch ch {
	case model.ChannelChat:
		return "chat", nil
	case model.ChannelEmail:
		return "email", nil
	case model.ChannelSMS:
		return "sms", nil
	}
	return "", fmt.Errorf("unknown channel %q", ch)
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
