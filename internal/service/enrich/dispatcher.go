package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailmirror/internal/credential"
	"mailmirror/internal/model"
	"mailmirror/internal/provider"
	"mailmirror/pkg/apperr"
	"mailmirror/pkg/metrics"
	"mailmirror/pkg/trace"
	"mailmirror/pkg/util"
)

// Store is the slice of the persistent store the dispatch queue needs.
type Store interface {
	Get(ctx context.Context, ownerID, mailbox, id string) (*model.Message, error)
	Put(ctx context.Context, m *model.Message) error
	SetEnrichment(ctx context.Context, ownerID, mailbox, id string, meta *model.EnrichmentMetadata, processed bool) error
	ClearEnrichment(ctx context.Context, ownerID, mailbox string, ids []string) error
}

// Publisher delivers enrichment lifecycle events to the events exchange.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

type Config struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Dispatcher is the enrichment dispatch queue. It guarantees at most one
// concurrent enrichment job per message identity: the in-flight set is the
// single shared mutable resource here, and check-and-insert on it is
// atomic under mu.
type Dispatcher struct {
	store        Store
	annotator    Annotator
	events       Publisher
	creds        credential.Resolver
	remote       provider.Client
	providerName string

	cfg  Config
	jobs chan *model.Message

	mu       sync.Mutex
	inflight map[string]struct{}

	retries    *util.RetryCounter
	maxRetries int64

	logger *zap.Logger
	now    func() time.Time
}

func NewDispatcher(
	store Store,
	annotator Annotator,
	events Publisher,
	creds credential.Resolver,
	remote provider.Client,
	providerName string,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		store:        store,
		annotator:    annotator,
		events:       events,
		creds:        creds,
		remote:       remote,
		providerName: providerName,
		cfg:          cfg,
		jobs:         make(chan *model.Message, cfg.QueueSize),
		inflight:     make(map[string]struct{}),
		logger:       logger,
		now:          time.Now,
	}
}

// SetRetryCounter enables a bounded automatic retry of transient annotator
// failures before a job is declared failed. Without it every failure is
// final on the first attempt.
func (d *Dispatcher) SetRetryCounter(rc *util.RetryCounter, maxRetries int64) {
	d.retries = rc
	d.maxRetries = maxRetries
}

// Start launches the worker pool. Workers drain the job queue until ctx is
// cancelled; jobs already picked up run to completion.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		go d.worker(ctx)
	}
	d.logger.Info("Enrichment dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("queue_size", d.cfg.QueueSize),
	)
}

// Submit queues messages for enrichment. Without forceReanalyze only
// messages with absent enrichment metadata are accepted; with it, metadata
// is cleared and is_processed reset for the whole batch first, as a single
// store operation per mailbox. Submission is idempotent: an identity
// already in flight is never queued twice. Returns the number accepted.
func (d *Dispatcher) Submit(ctx context.Context, msgs []*model.Message, forceReanalyze bool) (int, error) {
	candidates := msgs
	if forceReanalyze {
		if err := d.clearBatch(ctx, msgs); err != nil {
			return 0, err
		}
	} else {
		candidates = nil
		for _, m := range msgs {
			if m.Enrichment == nil {
				candidates = append(candidates, m)
			} else {
				metrics.EnrichmentJobs.WithLabelValues("skipped_enriched").Inc()
			}
		}
	}

	accepted := 0
	for _, m := range candidates {
		if !d.acquire(m) {
			metrics.EnrichmentJobs.WithLabelValues("skipped_inflight").Inc()
			continue
		}

		// Mark in flight so observers see "Analyzing..." on reload.
		pending := &model.EnrichmentMetadata{
			Summary: model.SummaryAnalyzing,
			Version: model.EnrichmentVersion,
		}
		if err := d.store.SetEnrichment(ctx, m.OwnerID, m.Mailbox, m.ID, pending, false); err != nil {
			d.release(m)
			d.logger.Error("Failed to mark message in flight",
				zap.String("message_id", m.ID),
				zap.Error(err),
			)
			continue
		}

		select {
		case d.jobs <- m:
			accepted++
		case <-ctx.Done():
			d.release(m)
			return accepted, ctx.Err()
		}
	}

	return accepted, nil
}

// Retry re-queues a single message after clearing its prior enrichment
// metadata and re-fetching the latest content from the provider. Stale
// local content is never re-enriched without a refresh. The in-flight
// slot is claimed before anything is fetched or written, so a concurrent
// job leaves the store untouched.
func (d *Dispatcher) Retry(ctx context.Context, ownerID, mailbox, id string) error {
	claim := &model.Message{OwnerID: ownerID, Mailbox: mailbox, ID: id}
	if !d.acquire(claim) {
		return fmt.Errorf("message %s already in flight", id)
	}
	queued := false
	defer func() {
		if !queued {
			d.release(claim)
		}
	}()

	cred, err := d.creds.Token(ctx, ownerID, mailbox, d.providerName)
	if err != nil {
		return err
	}

	fresh, err := d.remote.GetMessage(ctx, cred, id)
	if err != nil {
		return err
	}

	// Put only refreshes content columns; the prior enrichment is replaced
	// through the explicit path by the in-flight marker below.
	fresh.Enrichment = nil
	fresh.IsProcessed = false
	if err := d.store.Put(ctx, fresh); err != nil {
		return err
	}

	pending := &model.EnrichmentMetadata{
		Summary: model.SummaryAnalyzing,
		Version: model.EnrichmentVersion,
	}
	if err := d.store.SetEnrichment(ctx, ownerID, mailbox, id, pending, false); err != nil {
		return err
	}

	select {
	case d.jobs <- fresh:
		queued = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether the identity currently has a job running.
func (d *Dispatcher) InFlight(mailbox, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[inflightKey(mailbox, id)]
	return ok
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-d.jobs:
			d.process(ctx, m)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, m *model.Message) {
	// A requeued job keeps its in-flight slot so the identity cannot be
	// submitted again while it waits for the next attempt.
	requeued := false
	defer func() {
		if !requeued {
			d.release(m)
		}
	}()

	start := d.now()
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	meta, err := d.annotator.Enrich(callCtx, m)
	cancel()

	if err != nil {
		if d.shouldRequeue(ctx, m, err) {
			select {
			case d.jobs <- m:
				requeued = true
				d.logger.Info("Enrichment requeued after transient failure",
					zap.String("message_id", m.ID),
					zap.Error(err),
				)
				return
			default:
				// Queue full, treat as final.
			}
		}
		d.resetRetries(ctx, m)
		metrics.RecordEnrichment("failed", time.Since(start))
		metrics.EnrichmentJobs.WithLabelValues("failed").Inc()
		d.logger.Warn("Enrichment failed",
			zap.String("message_id", m.ID),
			zap.String("mailbox", m.Mailbox),
			zap.Error(err),
		)

		failed := &model.EnrichmentMetadata{
			Summary: model.SummaryFailed,
			Version: model.EnrichmentVersion,
			Error:   err.Error(),
		}
		if storeErr := d.store.SetEnrichment(ctx, m.OwnerID, m.Mailbox, m.ID, failed, false); storeErr != nil {
			d.logger.Error("Failed to persist enrichment error marker",
				zap.String("message_id", m.ID),
				zap.Error(storeErr),
			)
		}
		d.publish(RoutingKeyFailed, ResultPayload{
			OwnerID:   m.OwnerID,
			Mailbox:   m.Mailbox,
			MessageID: m.ID,
			Metadata:  failed,
			Error:     err.Error(),
		})
		return
	}

	d.resetRetries(ctx, m)
	enrichedAt := d.now()
	meta.EnrichedAt = &enrichedAt
	if storeErr := d.store.SetEnrichment(ctx, m.OwnerID, m.Mailbox, m.ID, meta, true); storeErr != nil {
		d.logger.Error("Failed to persist enrichment result",
			zap.String("message_id", m.ID),
			zap.Error(storeErr),
		)
		return
	}

	metrics.RecordEnrichment("completed", time.Since(start))
	metrics.EnrichmentJobs.WithLabelValues("completed").Inc()
	d.publish(RoutingKeyCompleted, ResultPayload{
		OwnerID:   m.OwnerID,
		Mailbox:   m.Mailbox,
		MessageID: m.ID,
		Metadata:  meta,
	})
}

func (d *Dispatcher) publish(routingKey string, payload ResultPayload) {
	payload.EventID = trace.GenerateTraceID()
	if err := d.events.Publish(routingKey, payload); err != nil {
		d.logger.Error("Failed to publish enrichment event",
			zap.String("routing_key", routingKey),
			zap.String("message_id", payload.MessageID),
			zap.Error(err),
		)
	}
}

// shouldRequeue consults the retry budget for a failed job. Only transient
// failure classes are eligible.
func (d *Dispatcher) shouldRequeue(ctx context.Context, m *model.Message, err error) bool {
	if d.retries == nil {
		return false
	}
	retryable, _ := apperr.IsRetryableError(err)
	if !retryable {
		return false
	}
	count, cerr := d.retries.IncrementAndGet(ctx, retryKey(m))
	if cerr != nil {
		return false
	}
	return apperr.ShouldRetry(count, d.maxRetries, true)
}

func (d *Dispatcher) resetRetries(ctx context.Context, m *model.Message) {
	if d.retries != nil {
		_ = d.retries.Reset(ctx, retryKey(m))
	}
}

func retryKey(m *model.Message) string {
	return util.FormatRetryKey("enrich", inflightKey(m.Mailbox, m.ID))
}

// clearBatch resets enrichment state for a forced re-analysis, one store
// call per mailbox so a batch is never partially cleared.
func (d *Dispatcher) clearBatch(ctx context.Context, msgs []*model.Message) error {
	type scope struct{ owner, mailbox string }
	batches := make(map[scope][]string)
	for _, m := range msgs {
		s := scope{m.OwnerID, m.Mailbox}
		batches[s] = append(batches[s], m.ID)
	}
	for s, ids := range batches {
		if err := d.store.ClearEnrichment(ctx, s.owner, s.mailbox, ids); err != nil {
			return err
		}
	}
	for _, m := range msgs {
		m.Enrichment = nil
		m.IsProcessed = false
	}
	return nil
}

func (d *Dispatcher) acquire(m *model.Message) bool {
	key := inflightKey(m.Mailbox, m.ID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[key]; ok {
		return false
	}
	d.inflight[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(m *model.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, inflightKey(m.Mailbox, m.ID))
}

func inflightKey(mailbox, id string) string {
	return mailbox + "|" + id
}
