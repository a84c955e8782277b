package mailsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailmirror/internal/credential"
	"mailmirror/internal/model"
	"mailmirror/internal/provider"
	"mailmirror/pkg/apperr"
	"mailmirror/pkg/logger"
	"mailmirror/pkg/metrics"
)

// MessageStore is the slice of the persistent store the sync path needs.
type MessageStore interface {
	Get(ctx context.Context, ownerID, mailbox, id string) (*model.Message, error)
	Put(ctx context.Context, m *model.Message) error
	ListFiltered(ctx context.Context, ownerID, mailbox, folder string, filter model.Filter, limit, offset int) ([]*model.Message, error)
	CountFiltered(ctx context.Context, ownerID, mailbox, folder string, filter model.Filter) (int, error)
}

// FocusAssigner classifies an ingested message into a focus bucket.
type FocusAssigner interface {
	Assign(ctx context.Context, m *model.Message) (string, error)
}

// PageRequest identifies one page-sync request. OwnerID is the
// server-trusted identity resolved by the gateway; any client-supplied
// identity has already been discarded by the time a request gets here.
type PageRequest struct {
	OwnerID    string       `json:"-"`
	Mailbox    string       `json:"mailbox"`
	Folder     string       `json:"folder"`
	Page       int          `json:"page"`
	Filter     model.Filter `json:"filter"`
	Connection string       `json:"-"`
}

// RequestKey derives the debounce key from the full request identity, so
// requests differing in any parameter are never collapsed together.
func (r PageRequest) RequestKey() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s",
		r.Connection, r.OwnerID, r.Mailbox, r.Folder, r.Page, r.Filter.Key())
}

type PageResult struct {
	Messages []*model.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
	Folder   string           `json:"folder"`
	Page     int              `json:"page"`
}

// Orchestrator drives the fetch, merge, persist, emit cycle for one folder
// page request.
type Orchestrator struct {
	creds        credential.Resolver
	remote       provider.Client
	store        MessageStore
	focus        FocusAssigner
	providerName string
	pageSize     int
	logger       *zap.Logger
}

func NewOrchestrator(
	creds credential.Resolver,
	remote provider.Client,
	store MessageStore,
	focus FocusAssigner,
	providerName string,
	pageSize int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		creds:        creds,
		remote:       remote,
		store:        store,
		focus:        focus,
		providerName: providerName,
		pageSize:     pageSize,
		logger:       logger,
	}
}

// SyncPage reconciles one remote folder page with the local mirror.
// Filtered requests are served from the store (store-layer filtering is the
// canonical strategy); unfiltered requests fetch from the provider through
// the continuation tracker. Individual bad messages are skipped, never
// fatal to the page; a provider failure surfaces as one page-level error.
func (o *Orchestrator) SyncPage(ctx context.Context, req PageRequest, continuations *Tracker) (*PageResult, error) {
	start := time.Now()
	log := logger.WithTrace(ctx, o.logger)

	if req.Page < 1 {
		req.Page = 1
	}

	if !req.Filter.IsZero() {
		res, err := o.syncFiltered(ctx, req)
		o.observe(req.Folder, start, err)
		return res, err
	}

	cred, err := o.creds.Token(ctx, req.OwnerID, req.Mailbox, o.providerName)
	if err != nil {
		o.observe(req.Folder, start, err)
		return nil, err
	}

	key := Key{Connection: req.Connection, Folder: req.Folder}
	var token string
	if req.Page == 1 {
		continuations.Clear(key)
	} else {
		token, _ = continuations.Get(key)
	}

	page, err := o.remote.ListMessages(ctx, cred, req.Folder, o.pageSize, token)
	if err != nil {
		o.observe(req.Folder, start, err)
		return nil, apperr.Wrap(apperr.KindRemoteFetchFailed, "page fetch failed", err)
	}

	if page.Continuation != "" {
		continuations.Set(key, page.Continuation)
	} else {
		continuations.Clear(key)
	}

	result := &PageResult{
		Folder:  req.Folder,
		Page:    req.Page,
		HasMore: page.Continuation != "",
	}

	for _, incoming := range page.Messages {
		persisted := o.ingest(ctx, log, incoming)
		if persisted != nil {
			result.Messages = append(result.Messages, persisted)
		}
	}

	o.observe(req.Folder, start, nil)
	log.Info("Folder page synced",
		zap.String("folder", req.Folder),
		zap.Int("page", req.Page),
		zap.Int("messages", len(result.Messages)),
		zap.Bool("has_more", result.HasMore),
	)
	return result, nil
}

// ingest runs one raw message through the diff engine and focus assignment.
// Returns the record as persisted, or nil when the message was rejected.
// A rejected or unpersistable message is logged and dropped; the same page
// re-requested later will naturally re-attempt it.
func (o *Orchestrator) ingest(ctx context.Context, log *zap.Logger, incoming *model.Message) *model.Message {
	if err := ValidateIncoming(incoming); err != nil {
		metrics.SyncMessagesProcessed.WithLabelValues("rejected").Inc()
		log.Warn("Dropping invalid message from batch",
			zap.String("message_id", incoming.ID),
			zap.Error(err),
		)
		return nil
	}

	existing, err := o.store.Get(ctx, incoming.OwnerID, incoming.Mailbox, incoming.ID)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		log.Error("Store lookup failed, skipping message",
			zap.String("message_id", incoming.ID),
			zap.Error(err),
		)
		return nil
	}

	merged, changed := Merge(existing, incoming)
	if !changed {
		metrics.SyncMessagesProcessed.WithLabelValues("unchanged").Inc()
		return merged
	}

	if err := o.store.Put(ctx, merged); err != nil {
		metrics.SyncMessagesProcessed.WithLabelValues("rejected").Inc()
		log.Error("Persist failed, dropping message from result",
			zap.String("message_id", merged.ID),
			zap.Error(err),
		)
		return nil
	}
	metrics.SyncMessagesProcessed.WithLabelValues("changed").Inc()

	// Ingest-time classification. Advisory only, so a failure here never
	// drops the message from the page.
	if o.focus != nil {
		if bucket, err := o.focus.Assign(ctx, merged); err != nil {
			log.Warn("Focus assignment failed",
				zap.String("message_id", merged.ID),
				zap.Error(err),
			)
		} else if bucket != "" {
			log.Debug("Message classified",
				zap.String("message_id", merged.ID),
				zap.String("bucket", bucket),
			)
		}
	}

	return merged
}

func (o *Orchestrator) syncFiltered(ctx context.Context, req PageRequest) (*PageResult, error) {
	offset := (req.Page - 1) * o.pageSize
	messages, err := o.store.ListFiltered(ctx, req.OwnerID, req.Mailbox, req.Folder, req.Filter, o.pageSize, offset)
	if err != nil {
		return nil, err
	}

	total, err := o.store.CountFiltered(ctx, req.OwnerID, req.Mailbox, req.Folder, req.Filter)
	if err != nil {
		return nil, err
	}

	return &PageResult{
		Messages: messages,
		HasMore:  total > req.Page*o.pageSize,
		Folder:   req.Folder,
		Page:     req.Page,
	}, nil
}

func (o *Orchestrator) observe(folder string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = string(apperr.KindOf(err))
	}
	metrics.RecordSyncPage(folder, status, time.Since(start))
}
