package service

import (
	"context"
	"fmt"
	"strings"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/repository"
)

// RecipientResolver turns a broadcast's targeting into concrete recipients.
type RecipientResolver struct {
	Recipients repository.RecipientRepositoryInterface
}

// Resolve returns each recipient once. Id targeting keeps the authored order;
// role targeting keeps the store's order. An empty result is ErrNoRecipients.
func (r *RecipientResolver) Resolve(ctx context.Context, b *model.Broadcast) ([]model.Recipient, error) {
	t := b.Targeting()

	var (
		found []model.Recipient
		err   error
	)
	switch t.Kind {
	case model.TargetByIDs:
		ids := dedupe(t.IDs)
		found, err = r.Recipients.GetByIDs(ctx, ids)
		if err == nil {
			found = inOrder(ids, found)
		}
	default:
		roles := dedupe(t.Roles)
		if len(roles) > 0 {
			found, err = r.Recipients.GetByRoles(ctx, roles)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	seen := make(map[string]struct{}, len(found))
	out := make([]model.Recipient, 0, len(found))
	for _, rec := range found {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, appErrors.ErrNoRecipients
	}
	return out, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func inOrder(ids []string, found []model.Recipient) []model.Recipient {
	byID := make(map[string]model.Recipient, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	out := make([]model.Recipient, 0, len(found))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
