package model

import "time"

// Credential is an access token for one owner+mailbox at one provider.
// Issuance and refresh happen outside this service; we only look tokens up.
type Credential struct {
	OwnerID     string    `json:"owner_id"`
	Mailbox     string    `json:"mailbox"`
	Provider    string    `json:"provider"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// User is the owner record backing account references.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
