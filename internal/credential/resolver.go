// Package credential defines the boundary to the external credential
// issuer. Tokens are issued and refreshed elsewhere; this service only
// resolves them.
package credential

import (
	"context"

	"mailmirror/internal/model"
)

type Resolver interface {
	// Token returns the credential for one owner+mailbox at one provider,
	// or a CredentialMissing error.
	Token(ctx context.Context, ownerID, mailbox, provider string) (*model.Credential, error)
	// List returns every credential the owner has on file.
	List(ctx context.Context, ownerID string) ([]*model.Credential, error)
}
