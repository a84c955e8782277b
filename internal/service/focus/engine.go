// Package focus classifies ingested messages into user-defined virtual
// buckets. Classification is advisory metadata; a message never physically
// moves out of its native folder.
package focus

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailmirror/internal/model"
)

// Store is the slice of the persistent store the engine needs.
type Store interface {
	// ListActive returns the account's active rules in creation order.
	ListActive(ctx context.Context, ownerID, mailbox string) ([]*model.FocusItem, error)
	// List returns all rules, active or not, in creation order.
	List(ctx context.Context, ownerID, mailbox string) ([]*model.FocusItem, error)
	// RecordActivity bumps a rule's counter and last-activity timestamp.
	RecordActivity(ctx context.Context, id int64, at time.Time) error
}

type Engine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Assign evaluates the account's active rules against the message and
// returns the bucket of the first match, or "" when no rule matches.
// Rules are evaluated in creation order, so the earliest-created rule wins
// every tie. On a match the rule's counter and last-activity are updated.
func (e *Engine) Assign(ctx context.Context, m *model.Message) (string, error) {
	items, err := e.store.ListActive(ctx, m.OwnerID, m.Mailbox)
	if err != nil {
		return "", err
	}

	for _, item := range items {
		if !matches(item, m) {
			continue
		}

		if err := e.store.RecordActivity(ctx, item.ID, e.now()); err != nil {
			// The classification itself stands; only the counter is stale.
			e.logger.Warn("Failed to record focus activity",
				zap.Int64("focus_item_id", item.ID),
				zap.String("bucket", item.Bucket),
				zap.Error(err),
			)
		}
		return item.Bucket, nil
	}

	return "", nil
}

func matches(item *model.FocusItem, m *model.Message) bool {
	value := strings.ToLower(item.Value)
	switch item.Type {
	case model.FocusMatchSubject:
		return strings.Contains(strings.ToLower(m.Subject), value)
	case model.FocusMatchSender:
		return strings.Contains(strings.ToLower(m.From), value)
	}
	return false
}

// Statistics aggregates stored focus items into per-bucket counters.
// Read-only; inactive rules still contribute their history.
func (e *Engine) Statistics(ctx context.Context, ownerID, mailbox string) (*model.FocusStatistics, error) {
	items, err := e.store.List(ctx, ownerID, mailbox)
	if err != nil {
		return nil, err
	}

	stats := &model.FocusStatistics{
		PerBucket: make(map[string]model.BucketStats),
	}
	for _, item := range items {
		bucket := stats.PerBucket[item.Bucket]
		bucket.Count += item.MessageCount
		if item.LastActivity != nil {
			if bucket.LastActivity == nil || item.LastActivity.After(*bucket.LastActivity) {
				bucket.LastActivity = item.LastActivity
			}
		}
		stats.PerBucket[item.Bucket] = bucket
		stats.TotalClassified += item.MessageCount
	}
	return stats, nil
}
