package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailmirror/internal/model"
	"mailmirror/pkg/apperr"
)

// CredentialRepository looks up provider tokens written by the external
// credential issuer. This service never creates or refreshes them.
type CredentialRepository struct {
	db *pgxpool.Pool
}

func NewCredentialRepository(db *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Token returns the credential for one owner+mailbox at one provider.
func (r *CredentialRepository) Token(ctx context.Context, ownerID, mailbox, provider string) (*model.Credential, error) {
	query := `
        SELECT owner_id, mailbox, provider, access_token, expires_at
        FROM credentials
        WHERE owner_id = $1 AND mailbox = $2 AND provider = $3
    `
	var c model.Credential
	err := r.db.QueryRow(ctx, query, ownerID, mailbox, provider).Scan(
		&c.OwnerID, &c.Mailbox, &c.Provider, &c.AccessToken, &c.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindCredentialMissing, "no token for %s/%s", ownerID, mailbox)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns every credential the owner has on file.
func (r *CredentialRepository) List(ctx context.Context, ownerID string) ([]*model.Credential, error) {
	query := `
        SELECT owner_id, mailbox, provider, access_token, expires_at
        FROM credentials
        WHERE owner_id = $1
        ORDER BY mailbox, provider
    `
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*model.Credential
	for rows.Next() {
		var c model.Credential
		err := rows.Scan(&c.OwnerID, &c.Mailbox, &c.Provider, &c.AccessToken, &c.ExpiresAt)
		if err != nil {
			return nil, err
		}
		creds = append(creds, &c)
	}
	return creds, rows.Err()
}
