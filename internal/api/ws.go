package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"mailmirror/internal/channel"
	"mailmirror/internal/model"
	"mailmirror/internal/repository"
	"mailmirror/internal/service/enrich"
	"mailmirror/internal/service/mailsync"
	"mailmirror/pkg/apperr"
	"mailmirror/pkg/trace"
)

// Request event names accepted over a session.
const (
	EventMailSync     = "mail:sync"
	EventEnrichSubmit = "enrich:submit"
	EventEnrichRetry  = "enrich:retry"
)

// Push event names emitted on a session (enrichment results additionally
// arrive through the bus fan-out, see internal/mqhandler).
const (
	EventMailPage       = "mail:page"
	EventMailError      = "mail:error"
	EventEnrichAccepted = "enrich:accepted"
	EventEnrichError    = "enrich:error"
	EventError          = "error"
)

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Folder  string `json:"folder,omitempty"`
	Page    int    `json:"page,omitempty"`
}

// WSHandler upgrades a client to a delivery channel and routes its request
// frames. Each connection owns its continuation tracker and debouncer;
// both are torn down with the connection.
type WSHandler struct {
	orch          *mailsync.Orchestrator
	dispatcher    *enrich.Dispatcher
	messages      *repository.MessageRepository
	users         *repository.UserRepository
	registry      *channel.Registry
	debounceDelay time.Duration
	logger        *zap.Logger
}

func NewWSHandler(
	orch *mailsync.Orchestrator,
	dispatcher *enrich.Dispatcher,
	messages *repository.MessageRepository,
	users *repository.UserRepository,
	registry *channel.Registry,
	debounceDelay time.Duration,
	logger *zap.Logger,
) *WSHandler {
	return &WSHandler{
		orch:          orch,
		dispatcher:    dispatcher,
		messages:      messages,
		users:         users,
		registry:      registry,
		debounceDelay: debounceDelay,
		logger:        logger,
	}
}

// Handle serves GET /ws.
func (h *WSHandler) Handle(c *gin.Context) {
	owner := ownerID(c)
	if _, err := h.users.FindByID(c.Request.Context(), owner); err != nil {
		respondError(c, err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket accept failed", zap.Error(err))
		return
	}

	session := channel.NewSession(conn)
	connID := trace.GenerateTraceID()
	tracker := mailsync.NewTracker()
	debouncer := mailsync.NewDebouncer(h.debounceDelay)

	h.registry.Register(owner, session)
	h.logger.Info("Delivery channel registered",
		zap.String("owner_id", owner),
		zap.String("connection", connID),
	)

	defer func() {
		h.registry.Deregister(owner, session)
		debouncer.Stop()
		session.Close(websocket.StatusNormalClosure, "")
		h.logger.Info("Delivery channel closed",
			zap.String("owner_id", owner),
			zap.String("connection", connID),
		)
	}()

	for {
		env, err := session.ReadRequest(c.Request.Context())
		if err != nil {
			return
		}
		h.route(owner, connID, session, tracker, debouncer, env)
	}
}

func (h *WSHandler) route(owner, connID string, session *channel.Session, tracker *mailsync.Tracker, debouncer *mailsync.Debouncer, env *channel.Envelope) {
	switch env.Event {
	case EventMailSync:
		h.handleSync(owner, connID, session, tracker, debouncer, env.Payload)
	case EventEnrichSubmit:
		h.handleEnrichSubmit(owner, session, env.Payload)
	case EventEnrichRetry:
		h.handleEnrichRetry(owner, session, env.Payload)
	default:
		h.emitError(session, EventError, "", 0, apperr.Newf(apperr.KindValidationFailed, "unknown event %q", env.Event))
	}
}

// handleSync schedules a debounced page sync. Bursts of identical requests
// collapse into one execution; the page result comes back as a push event.
func (h *WSHandler) handleSync(owner, connID string, session *channel.Session, tracker *mailsync.Tracker, debouncer *mailsync.Debouncer, payload json.RawMessage) {
	var req mailsync.PageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.emitError(session, EventMailError, "", 0, apperr.Wrap(apperr.KindValidationFailed, "bad sync request", err))
		return
	}
	req.OwnerID = owner
	req.Connection = connID

	debouncer.Schedule(req.RequestKey(), func() {
		ctx := trace.WithContext(context.Background(), trace.GenerateTraceID())
		res, err := h.orch.SyncPage(ctx, req, tracker)
		if err != nil {
			h.emitError(session, EventMailError, req.Folder, req.Page, err)
			return
		}
		if err := session.Emit(EventMailPage, res); err != nil {
			h.logger.Warn("Failed to emit page result",
				zap.String("owner_id", owner),
				zap.Error(err),
			)
		}
	})
}

func (h *WSHandler) handleEnrichSubmit(owner string, session *channel.Session, payload json.RawMessage) {
	var req struct {
		Mailbox    string   `json:"mailbox"`
		MessageIDs []string `json:"message_ids"`
		Force      bool     `json:"force"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Mailbox == "" {
		h.emitError(session, EventEnrichError, "", 0, apperr.New(apperr.KindValidationFailed, "bad enrich request"))
		return
	}

	// Submission may block on a full queue; keep the read loop responsive.
	go func() {
		ctx := trace.WithContext(context.Background(), trace.GenerateTraceID())

		var msgs []*model.Message
		for _, id := range req.MessageIDs {
			m, err := h.messages.Get(ctx, owner, req.Mailbox, id)
			if err != nil {
				// Report the missing item and keep going with the rest.
				h.emitError(session, EventEnrichError, "", 0, err)
				continue
			}
			msgs = append(msgs, m)
		}

		accepted, err := h.dispatcher.Submit(ctx, msgs, req.Force)
		if err != nil {
			h.emitError(session, EventEnrichError, "", 0, apperr.Wrap(apperr.KindEnrichmentFailed, "submit failed", err))
			return
		}
		_ = session.Emit(EventEnrichAccepted, gin.H{"accepted": accepted})
	}()
}

func (h *WSHandler) handleEnrichRetry(owner string, session *channel.Session, payload json.RawMessage) {
	var req struct {
		Mailbox   string `json:"mailbox"`
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Mailbox == "" || req.MessageID == "" {
		h.emitError(session, EventEnrichError, "", 0, apperr.New(apperr.KindValidationFailed, "bad retry request"))
		return
	}

	go func() {
		ctx := trace.WithContext(context.Background(), trace.GenerateTraceID())
		if err := h.dispatcher.Retry(ctx, owner, req.Mailbox, req.MessageID); err != nil {
			h.emitError(session, EventEnrichError, "", 0, err)
			return
		}
		_ = session.Emit(EventEnrichAccepted, gin.H{"accepted": 1})
	}()
}

func (h *WSHandler) emitError(session *channel.Session, event, folder string, page int, err error) {
	payload := errorPayload{
		Kind:    string(apperr.KindOf(err)),
		Message: err.Error(),
		Folder:  folder,
		Page:    page,
	}
	if emitErr := session.Emit(event, payload); emitErr != nil {
		h.logger.Warn("Failed to emit error event", zap.Error(emitErr))
	}
}
