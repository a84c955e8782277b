package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"mailmirror/internal/channel"
	"mailmirror/internal/service/enrich"
	"mailmirror/pkg/apperr"
	"mailmirror/pkg/util"
)

// Client-facing push event names.
const (
	EventEnrichResult = "enrich:result"
	EventEnrichError  = "enrich:error"
)

// EnrichmentResultHandler consumes enrichment lifecycle events off the bus
// and fans them out to the delivery channels registered on this instance.
// Each instance consumes from its own queue; the deduper only guards
// against MQ redelivery duplicates, scoped per instance so it never blocks
// another instance's fan-out.
type EnrichmentResultHandler struct {
	registry *channel.Registry
	deduper  *util.Deduper
	scope    string
	logger   *zap.Logger
}

func NewEnrichmentResultHandler(
	registry *channel.Registry,
	deduper *util.Deduper,
	instanceID string,
	logger *zap.Logger,
) *EnrichmentResultHandler {
	return &EnrichmentResultHandler{
		registry: registry,
		deduper:  deduper,
		scope:    "enrich_push:" + instanceID,
		logger:   logger,
	}
}

func (h *EnrichmentResultHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload enrich.ResultPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Error("Invalid enrichment result payload",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return apperr.Wrap(apperr.KindValidationFailed, "bad enrichment payload", err)
	}
	if payload.OwnerID == "" || payload.MessageID == "" {
		return apperr.New(apperr.KindValidationFailed, "enrichment payload missing identity")
	}

	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, h.scope, payload.EventID) {
		return nil
	}

	event := EventEnrichResult
	if payload.Error != "" {
		event = EventEnrichError
	}

	h.logger.Info("Delivering enrichment event",
		zap.String("event", event),
		zap.String("owner_id", payload.OwnerID),
		zap.String("message_id", payload.MessageID),
	)
	h.registry.Broadcast(payload.OwnerID, event, payload)
	return nil
}
