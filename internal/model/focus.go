package model

import "time"

type FocusItemType string

const (
	FocusMatchSubject FocusItemType = "subject"
	FocusMatchSender  FocusItemType = "sender"
)

// FocusItem is a user-defined classification rule owned by an account.
// Matching messages are routed into the rule's virtual bucket; the rule
// itself is never auto-deleted by the sync pipeline.
type FocusItem struct {
	ID           int64         `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Mailbox      string        `json:"mailbox"`
	Type         FocusItemType `json:"type"`
	Value        string        `json:"value"`
	Bucket       string        `json:"bucket"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity *time.Time    `json:"last_activity,omitempty"`
	MessageCount int           `json:"message_count"`
	Active       bool          `json:"active"`
}

// BucketStats is the per-bucket slice of the focus statistics response.
type BucketStats struct {
	Count        int        `json:"count"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

type FocusStatistics struct {
	PerBucket       map[string]BucketStats `json:"per_bucket"`
	TotalClassified int                    `json:"total_classified"`
}
