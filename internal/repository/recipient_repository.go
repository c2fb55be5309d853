package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/unclebandit/broadcast-engine/internal/model"
)

// RecipientRepositoryInterface is the directory lookup used by the resolver.
type RecipientRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Recipient, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Recipient, error)
	GetByRoles(ctx context.Context, roles []string) ([]model.Recipient, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, name, email, phone, chat_id, role, location`

// GetByID returns nil, nil when the recipient does not exist.
func (r *RecipientRepository) GetByID(ctx context.Context, id string) (*model.Recipient, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE id = $1`, id)

	var c model.Recipient
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.ChatID, &c.Role, &c.Location); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetByIDs ignores ids that are not in the directory.
func (r *RecipientRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Recipient, error) {
	if len(ids) == 0 {
		return []model.Recipient{}, nil
	}
	return r.query(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
}

func (r *RecipientRepository) GetByRoles(ctx context.Context, roles []string) ([]model.Recipient, error) {
	if len(roles) == 0 {
		return []model.Recipient{}, nil
	}
	return r.query(ctx, `SELECT `+recipientColumns+` FROM recipients WHERE role = ANY($1) ORDER BY id`, pq.Array(roles))
}

func (r *RecipientRepository) query(ctx context.Context, query string, args ...any) ([]model.Recipient, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var c model.Recipient
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.ChatID, &c.Role, &c.Location); err != nil {
			return nil, err
		}
		recipients = append(recipients, c)
	}
	return recipients, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
