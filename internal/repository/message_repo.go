package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailmirror/internal/model"
	"mailmirror/pkg/apperr"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	provider_id, mailbox, owner_id, folder, sender, recipients, cc, bcc,
	subject, body, preview, ts, read, important, flagged, is_processed,
	enrichment, updated_at
`

// Get returns the stored message for (id, mailbox) scoped to the owner.
func (r *MessageRepository) Get(ctx context.Context, ownerID, mailbox, id string) (*model.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE provider_id = $1 AND mailbox = $2 AND owner_id = $3
    `
	row := r.db.QueryRow(ctx, query, id, mailbox, ownerID)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "message %s not found in %s", id, mailbox)
	}
	return m, err
}

// Put upserts a message keyed by (provider_id, mailbox). Applying the same
// representation twice yields no second observable change. The conflict
// update deliberately leaves enrichment and is_processed alone: the sync
// cycle works from a read snapshot, and writing those columns back would
// clobber an enrichment result landing between its Get and Put.
// SetEnrichment and ClearEnrichment are the only writers of those columns
// on existing rows.
func (r *MessageRepository) Put(ctx context.Context, m *model.Message) error {
	enrichment, err := marshalEnrichment(m.Enrichment)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO messages (` + messageColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
        ON CONFLICT (provider_id, mailbox) DO UPDATE SET
            folder = EXCLUDED.folder,
            sender = EXCLUDED.sender,
            recipients = EXCLUDED.recipients,
            cc = EXCLUDED.cc,
            bcc = EXCLUDED.bcc,
            subject = EXCLUDED.subject,
            body = EXCLUDED.body,
            preview = EXCLUDED.preview,
            ts = EXCLUDED.ts,
            read = EXCLUDED.read,
            important = EXCLUDED.important,
            flagged = EXCLUDED.flagged,
            updated_at = NOW()
    `
	_, err = r.db.Exec(ctx, query,
		m.ID, m.Mailbox, m.OwnerID, m.Folder, m.From,
		m.To, m.Cc, m.Bcc,
		m.Subject, m.Body, m.Preview, m.Timestamp,
		m.Read, m.Important, m.Flagged, m.IsProcessed,
		enrichment,
	)
	return err
}

// ListFiltered returns one store-layer page, newest first.
func (r *MessageRepository) ListFiltered(ctx context.Context, ownerID, mailbox, folder string, filter model.Filter, limit, offset int) ([]*model.Message, error) {
	where, args := filterClauses(ownerID, mailbox, folder, filter)
	query := fmt.Sprintf(`
        SELECT %s
        FROM messages
        WHERE %s
        ORDER BY ts DESC
        LIMIT %d OFFSET %d
    `, messageColumns, where, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountFiltered returns the stored total for a filtered flow; the sync
// orchestrator compares it against page*pageSize to compute hasMore.
func (r *MessageRepository) CountFiltered(ctx context.Context, ownerID, mailbox, folder string, filter model.Filter) (int, error) {
	where, args := filterClauses(ownerID, mailbox, folder, filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM messages WHERE %s`, where)

	var count int
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

// SetEnrichment overwrites enrichment metadata and the processing flag.
// This is the explicit overwrite path; the sync merge never touches these.
func (r *MessageRepository) SetEnrichment(ctx context.Context, ownerID, mailbox, id string, meta *model.EnrichmentMetadata, processed bool) error {
	enrichment, err := marshalEnrichment(meta)
	if err != nil {
		return err
	}

	query := `
        UPDATE messages
        SET enrichment = $1, is_processed = $2, updated_at = NOW()
        WHERE provider_id = $3 AND mailbox = $4 AND owner_id = $5
    `
	tag, err := r.db.Exec(ctx, query, enrichment, processed, id, mailbox, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "message %s not found in %s", id, mailbox)
	}
	return nil
}

// ClearEnrichment drops enrichment metadata and resets is_processed for the
// whole batch in a single statement; a forced re-analysis is never applied
// to only part of its batch.
func (r *MessageRepository) ClearEnrichment(ctx context.Context, ownerID, mailbox string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
        UPDATE messages
        SET enrichment = NULL, is_processed = FALSE, updated_at = NOW()
        WHERE owner_id = $1 AND mailbox = $2 AND provider_id = ANY($3)
    `
	_, err := r.db.Exec(ctx, query, ownerID, mailbox, ids)
	return err
}

// UpdateCategory rewrites only the category inside enrichment metadata.
func (r *MessageRepository) UpdateCategory(ctx context.Context, ownerID, mailbox, id, category string) error {
	query := `
        UPDATE messages
        SET enrichment = jsonb_set(COALESCE(enrichment, '{}'::jsonb), '{category}', to_jsonb($1::text)),
            updated_at = NOW()
        WHERE provider_id = $2 AND mailbox = $3 AND owner_id = $4
    `
	tag, err := r.db.Exec(ctx, query, category, id, mailbox, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "message %s not found in %s", id, mailbox)
	}
	return nil
}

// SetRead mirrors a provider-side read flag change locally.
func (r *MessageRepository) SetRead(ctx context.Context, ownerID, mailbox, id string, read bool) error {
	return r.setFlag(ctx, "read", ownerID, mailbox, id, read)
}

// SetImportant mirrors a provider-side importance change locally.
func (r *MessageRepository) SetImportant(ctx context.Context, ownerID, mailbox, id string, important bool) error {
	return r.setFlag(ctx, "important", ownerID, mailbox, id, important)
}

func (r *MessageRepository) setFlag(ctx context.Context, column, ownerID, mailbox, id string, value bool) error {
	query := fmt.Sprintf(`
        UPDATE messages
        SET %s = $1, updated_at = NOW()
        WHERE provider_id = $2 AND mailbox = $3 AND owner_id = $4
    `, column)
	tag, err := r.db.Exec(ctx, query, value, id, mailbox, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "message %s not found in %s", id, mailbox)
	}
	return nil
}

// Delete removes the local mirror row.
func (r *MessageRepository) Delete(ctx context.Context, ownerID, mailbox, id string) error {
	query := `
        DELETE FROM messages
        WHERE provider_id = $1 AND mailbox = $2 AND owner_id = $3
    `
	_, err := r.db.Exec(ctx, query, id, mailbox, ownerID)
	return err
}

func filterClauses(ownerID, mailbox, folder string, filter model.Filter) (string, []any) {
	clauses := []string{"owner_id = $1", "mailbox = $2", "folder = $3"}
	args := []any{ownerID, mailbox, folder}

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Category != "" {
		add("enrichment->>'category' = $%d", filter.Category)
	}
	if filter.Priority != "" {
		add("enrichment->>'priority' = $%d", filter.Priority)
	}
	if filter.Sentiment != "" {
		add("enrichment->>'sentiment' = $%d", filter.Sentiment)
	}
	if filter.Unread != nil {
		add("read = NOT $%d", *filter.Unread)
	}

	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var ts *time.Time
	var enrichment []byte

	err := row.Scan(
		&m.ID, &m.Mailbox, &m.OwnerID, &m.Folder, &m.From,
		&m.To, &m.Cc, &m.Bcc,
		&m.Subject, &m.Body, &m.Preview, &ts,
		&m.Read, &m.Important, &m.Flagged, &m.IsProcessed,
		&enrichment, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ts != nil {
		m.Timestamp = *ts
	}
	if len(enrichment) > 0 {
		var meta model.EnrichmentMetadata
		if err := json.Unmarshal(enrichment, &meta); err != nil {
			return nil, fmt.Errorf("corrupt enrichment metadata for %s: %w", m.ID, err)
		}
		m.Enrichment = &meta
	}
	return &m, nil
}

func marshalEnrichment(meta *model.EnrichmentMetadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}
