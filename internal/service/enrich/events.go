package enrich

import "mailmirror/internal/model"

// Routing keys for enrichment lifecycle events on the events exchange.
const (
	RoutingKeyCompleted = "enrichment.completed"
	RoutingKeyFailed    = "enrichment.failed"
)

// ResultPayload is published when a job finishes, and fanned out to every
// delivery channel registered for the owner.
type ResultPayload struct {
	// EventID uniquely identifies this delivery for consumer-side dedup.
	EventID   string                    `json:"event_id"`
	OwnerID   string                    `json:"owner_id"`
	Mailbox   string                    `json:"mailbox"`
	MessageID string                    `json:"message_id"`
	Metadata  *model.EnrichmentMetadata `json:"metadata,omitempty"`
	Error     string                    `json:"error,omitempty"`
}
