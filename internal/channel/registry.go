// Package channel implements the addressable duplex channels used to push
// results to clients, and the per-owner registry that fans events out to
// every session an owner has open.
package channel

import (
	"sync"

	"go.uber.org/zap"

	"mailmirror/pkg/metrics"
)

// Channel is one registered delivery channel.
type Channel interface {
	Emit(event string, payload any) error
}

// Registry maps owner identities to their open channels. Delivery is
// broadcast: every channel registered for the owner receives the event,
// not exactly one per owner.
type Registry struct {
	mu      sync.RWMutex
	byOwner map[string]map[Channel]struct{}
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byOwner: make(map[string]map[Channel]struct{}),
		logger:  logger,
	}
}

func (r *Registry) Register(ownerID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byOwner[ownerID] == nil {
		r.byOwner[ownerID] = make(map[Channel]struct{})
	}
	r.byOwner[ownerID][ch] = struct{}{}
	metrics.WebsocketSessions.Inc()
}

// Deregister removes the channel from future deliveries. In-flight work
// submitted through this channel still runs to completion; its results are
// simply not delivered here anymore.
func (r *Registry) Deregister(ownerID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.byOwner[ownerID]; ok {
		if _, registered := sessions[ch]; registered {
			delete(sessions, ch)
			metrics.WebsocketSessions.Dec()
		}
		if len(sessions) == 0 {
			delete(r.byOwner, ownerID)
		}
	}
}

// Broadcast emits the event on every channel registered for the owner.
// A failing channel is logged and skipped; one slow or dead session never
// blocks delivery to the others.
func (r *Registry) Broadcast(ownerID, event string, payload any) {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.byOwner[ownerID]))
	for ch := range r.byOwner[ownerID] {
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	for _, ch := range targets {
		if err := ch.Emit(event, payload); err != nil {
			r.logger.Warn("Delivery channel emit failed",
				zap.String("owner_id", ownerID),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}
}
