// Package provider is the boundary to the remote mailbox provider.
// Listings are paginated with opaque continuation tokens; an absent token
// on a response means the listing is exhausted.
package provider

import (
	"context"

	"mailmirror/internal/model"
)

// Page is one remote listing page.
type Page struct {
	Messages     []*model.Message
	Continuation string
}

// Outgoing is a message to be sent through the provider.
type Outgoing struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Attachment is a fetched attachment blob.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Client interface {
	ListFolders(ctx context.Context, cred *model.Credential) ([]model.Folder, error)
	// ListMessages fetches one page. Pass the stored continuation token to
	// resume, or "" to start from the provider's beginning.
	ListMessages(ctx context.Context, cred *model.Credential, folderID string, pageSize int, continuation string) (*Page, error)
	GetMessage(ctx context.Context, cred *model.Credential, messageID string) (*model.Message, error)
	GetAttachment(ctx context.Context, cred *model.Credential, messageID, attachmentID string) (*Attachment, error)
	Send(ctx context.Context, cred *model.Credential, msg Outgoing) error
	Reply(ctx context.Context, cred *model.Credential, messageID, body string, replyAll bool) error
	MarkRead(ctx context.Context, cred *model.Credential, messageID string, read bool) error
	MarkImportant(ctx context.Context, cred *model.Credential, messageID string, important bool) error
	Delete(ctx context.Context, cred *model.Credential, messageID string) error
}
