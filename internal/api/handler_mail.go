package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailmirror/internal/credential"
	"mailmirror/internal/model"
	"mailmirror/internal/provider"
	"mailmirror/internal/repository"
	"mailmirror/internal/service/mailsync"
	"mailmirror/pkg/apperr"
)

// MailHandler serves the message-level operations: full-message fetch,
// attachments, send/reply, flag changes, category update, delete.
type MailHandler struct {
	creds        credential.Resolver
	remote       provider.Client
	messages     *repository.MessageRepository
	providerName string
	logger       *zap.Logger
}

func NewMailHandler(
	creds credential.Resolver,
	remote provider.Client,
	messages *repository.MessageRepository,
	providerName string,
	logger *zap.Logger,
) *MailHandler {
	return &MailHandler{
		creds:        creds,
		remote:       remote,
		messages:     messages,
		providerName: providerName,
		logger:       logger,
	}
}

func (h *MailHandler) credFor(c *gin.Context) (*model.Credential, bool) {
	mailbox := c.Query("mailbox")
	if mailbox == "" {
		respondError(c, apperr.New(apperr.KindValidationFailed, "mailbox is required"))
		return nil, false
	}
	cred, err := h.creds.Token(c.Request.Context(), ownerID(c), mailbox, h.providerName)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return cred, true
}

// ListFolders handles GET /folders.
func (h *MailHandler) ListFolders(c *gin.Context) {
	cred, ok := h.credFor(c)
	if !ok {
		return
	}

	folders, err := h.remote.ListFolders(c.Request.Context(), cred)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

// GetMessage handles GET /messages/:id. The local mirror is authoritative
// when it has the message; a miss falls through to the provider and the
// fetched record is ingested so the next read is local.
func (h *MailHandler) GetMessage(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	mailbox := c.Query("mailbox")

	stored, err := h.messages.Get(ctx, ownerID(c), mailbox, id)
	if err == nil {
		c.JSON(http.StatusOK, stored)
		return
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		respondError(c, err)
		return
	}

	cred, ok := h.credFor(c)
	if !ok {
		return
	}
	fresh, err := h.remote.GetMessage(ctx, cred, id)
	if err != nil {
		respondError(c, err)
		return
	}

	merged, _ := mailsync.Merge(nil, fresh)
	if err := h.messages.Put(ctx, merged); err != nil {
		h.logger.Warn("Failed to mirror fetched message",
			zap.String("message_id", id),
			zap.Error(err),
		)
	}
	c.JSON(http.StatusOK, merged)
}

// GetAttachment handles GET /messages/:id/attachments/:attachment_id.
func (h *MailHandler) GetAttachment(c *gin.Context) {
	cred, ok := h.credFor(c)
	if !ok {
		return
	}

	att, err := h.remote.GetAttachment(c.Request.Context(), cred, c.Param("id"), c.Param("attachment_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+att.Name+`"`)
	c.Data(http.StatusOK, att.ContentType, att.Data)
}

// Send handles POST /messages/send.
func (h *MailHandler) Send(c *gin.Context) {
	var req provider.Outgoing
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.KindValidationFailed, "invalid request"))
		return
	}

	cred, ok := h.credFor(c)
	if !ok {
		return
	}

	if err := h.remote.Send(c.Request.Context(), cred, req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// Reply handles POST /messages/:id/reply and /messages/:id/reply-all.
func (h *MailHandler) Reply(replyAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Body string `json:"body"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.KindValidationFailed, "invalid request"))
			return
		}

		cred, ok := h.credFor(c)
		if !ok {
			return
		}

		if err := h.remote.Reply(c.Request.Context(), cred, c.Param("id"), req.Body, replyAll); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}

// MarkRead handles POST /messages/:id/read: provider first, then the local
// flag so the mirror stays consistent.
func (h *MailHandler) MarkRead(c *gin.Context) {
	var req struct {
		Read bool `json:"read"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.KindValidationFailed, "invalid request"))
		return
	}

	cred, ok := h.credFor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.remote.MarkRead(ctx, cred, id, req.Read); err != nil {
		respondError(c, err)
		return
	}
	if err := h.messages.SetRead(ctx, ownerID(c), cred.Mailbox, id, req.Read); err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		h.logger.Warn("Local read flag update failed", zap.String("message_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MarkImportant handles POST /messages/:id/important.
func (h *MailHandler) MarkImportant(c *gin.Context) {
	var req struct {
		Important bool `json:"important"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.KindValidationFailed, "invalid request"))
		return
	}

	cred, ok := h.credFor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.remote.MarkImportant(ctx, cred, id, req.Important); err != nil {
		respondError(c, err)
		return
	}
	if err := h.messages.SetImportant(ctx, ownerID(c), cred.Mailbox, id, req.Important); err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		h.logger.Warn("Local importance update failed", zap.String("message_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UpdateCategory handles POST /messages/:id/category. This is the explicit
// overwrite path into enrichment metadata; sync merges never touch it.
func (h *MailHandler) UpdateCategory(c *gin.Context) {
	var req struct {
		Mailbox  string `json:"mailbox"`
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Mailbox == "" || req.Category == "" {
		respondError(c, apperr.New(apperr.KindValidationFailed, "mailbox and category are required"))
		return
	}

	err := h.messages.UpdateCategory(c.Request.Context(), ownerID(c), req.Mailbox, c.Param("id"), req.Category)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Delete handles DELETE /messages/:id: provider delete, then the mirror row.
func (h *MailHandler) Delete(c *gin.Context) {
	cred, ok := h.credFor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.remote.Delete(ctx, cred, id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.messages.Delete(ctx, ownerID(c), cred.Mailbox, id); err != nil {
		h.logger.Warn("Local mirror delete failed", zap.String("message_id", id), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
