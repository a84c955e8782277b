package model

import "time"

// Message is the local mirror of a remote mail message. Identity is the
// provider-assigned id; (ID, Mailbox) together are unique.
type Message struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Mailbox     string    `json:"mailbox"`
	Folder      string    `json:"folder"`
	From        string    `json:"from"`
	To          []string  `json:"to"`
	Cc          []string  `json:"cc,omitempty"`
	Bcc         []string  `json:"bcc,omitempty"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body,omitempty"`
	Preview     string    `json:"preview"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
	Important   bool      `json:"important"`
	Flagged     bool      `json:"flagged"`
	IsProcessed bool      `json:"is_processed"`

	// Enrichment is derived metadata, never sourced from the provider.
	// nil means not yet enriched.
	Enrichment *EnrichmentMetadata `json:"enrichment,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy. The sync path merges into copies so a caller's
// snapshot is never mutated behind its back.
func (m *Message) Clone() *Message {
	c := *m
	c.To = append([]string(nil), m.To...)
	c.Cc = append([]string(nil), m.Cc...)
	c.Bcc = append([]string(nil), m.Bcc...)
	if m.Enrichment != nil {
		e := *m.Enrichment
		e.ActionItems = append([]string(nil), m.Enrichment.ActionItems...)
		c.Enrichment = &e
	}
	return &c
}

// EnrichmentMetadata carries the annotator output for a message.
// A non-nil EnrichedAt marks a finished enrichment; SummaryAnalyzing as the
// summary marks one in flight.
type EnrichmentMetadata struct {
	Summary     string     `json:"summary"`
	Category    string     `json:"category,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Sentiment   string     `json:"sentiment,omitempty"`
	ActionItems []string   `json:"action_items,omitempty"`
	EnrichedAt  *time.Time `json:"enriched_at,omitempty"`
	Version     int        `json:"version"`
	Error       string     `json:"error,omitempty"`
}

const (
	// EnrichmentVersion is the current metadata schema version.
	EnrichmentVersion = 1

	// SummaryAnalyzing marks a message whose enrichment is in flight.
	SummaryAnalyzing = "Analyzing..."
	// SummaryFailed marks a message whose enrichment failed.
	SummaryFailed = "Enrichment failed"
)

// InFlight reports whether the metadata marks an enrichment in progress.
func (e *EnrichmentMetadata) InFlight() bool {
	return e != nil && e.Summary == SummaryAnalyzing && e.EnrichedAt == nil
}
