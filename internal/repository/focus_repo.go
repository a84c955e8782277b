package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailmirror/internal/model"
	"mailmirror/pkg/apperr"
)

type FocusRepository struct {
	db *pgxpool.Pool
}

func NewFocusRepository(db *pgxpool.Pool) *FocusRepository {
	return &FocusRepository{db: db}
}

const focusColumns = `
	id, owner_id, mailbox, match_type, match_value, bucket,
	created_at, last_activity, message_count, active
`

// ListActive returns the account's active rules in creation order.
// Creation order is the tie-breaker for rule matching, so the ordering here
// is load-bearing.
func (r *FocusRepository) ListActive(ctx context.Context, ownerID, mailbox string) ([]*model.FocusItem, error) {
	query := `
        SELECT ` + focusColumns + `
        FROM focus_items
        WHERE owner_id = $1 AND mailbox = $2 AND active
        ORDER BY created_at, id
    `
	return r.list(ctx, query, ownerID, mailbox)
}

// List returns all of the account's rules, active or not, in creation order.
func (r *FocusRepository) List(ctx context.Context, ownerID, mailbox string) ([]*model.FocusItem, error) {
	query := `
        SELECT ` + focusColumns + `
        FROM focus_items
        WHERE owner_id = $1 AND mailbox = $2
        ORDER BY created_at, id
    `
	return r.list(ctx, query, ownerID, mailbox)
}

func (r *FocusRepository) list(ctx context.Context, query, ownerID, mailbox string) ([]*model.FocusItem, error) {
	rows, err := r.db.Query(ctx, query, ownerID, mailbox)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*model.FocusItem
	for rows.Next() {
		var it model.FocusItem
		err := rows.Scan(
			&it.ID, &it.OwnerID, &it.Mailbox, &it.Type, &it.Value, &it.Bucket,
			&it.CreatedAt, &it.LastActivity, &it.MessageCount, &it.Active,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// Create stores a user-defined rule and returns its id.
func (r *FocusRepository) Create(ctx context.Context, item *model.FocusItem) (int64, error) {
	query := `
        INSERT INTO focus_items (owner_id, mailbox, match_type, match_value, bucket, active)
        VALUES ($1, $2, $3, $4, $5, TRUE)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query,
		item.OwnerID, item.Mailbox, item.Type, item.Value, item.Bucket,
	).Scan(&item.ID, &item.CreatedAt)
	return item.ID, err
}

// RecordActivity bumps the rule's counter and last-activity timestamp.
func (r *FocusRepository) RecordActivity(ctx context.Context, id int64, at time.Time) error {
	query := `
        UPDATE focus_items
        SET message_count = message_count + 1, last_activity = $1
        WHERE id = $2
    `
	tag, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "focus item %d not found", id)
	}
	return nil
}
