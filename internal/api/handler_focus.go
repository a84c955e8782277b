package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailmirror/internal/model"
	"mailmirror/internal/repository"
	"mailmirror/internal/service/focus"
	"mailmirror/pkg/apperr"
)

type FocusHandler struct {
	engine *focus.Engine
	items  *repository.FocusRepository
}

func NewFocusHandler(engine *focus.Engine, items *repository.FocusRepository) *FocusHandler {
	return &FocusHandler{engine: engine, items: items}
}

// GetStatistics handles GET /focus/statistics.
func (h *FocusHandler) GetStatistics(c *gin.Context) {
	mailbox := c.Query("mailbox")
	if mailbox == "" {
		respondError(c, apperr.New(apperr.KindValidationFailed, "mailbox is required"))
		return
	}

	stats, err := h.engine.Statistics(c.Request.Context(), ownerID(c), mailbox)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CreateItem handles POST /focus/items.
func (h *FocusHandler) CreateItem(c *gin.Context) {
	var req struct {
		Mailbox string `json:"mailbox"`
		Type    string `json:"type"`
		Value   string `json:"value"`
		Bucket  string `json:"bucket"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.New(apperr.KindValidationFailed, "invalid request"))
		return
	}

	matchType := model.FocusItemType(req.Type)
	if matchType != model.FocusMatchSubject && matchType != model.FocusMatchSender {
		respondError(c, apperr.Newf(apperr.KindValidationFailed, "unknown focus item type %q", req.Type))
		return
	}
	if req.Mailbox == "" || req.Value == "" || req.Bucket == "" {
		respondError(c, apperr.New(apperr.KindValidationFailed, "mailbox, value and bucket are required"))
		return
	}

	item := &model.FocusItem{
		OwnerID: ownerID(c),
		Mailbox: req.Mailbox,
		Type:    matchType,
		Value:   req.Value,
		Bucket:  req.Bucket,
		Active:  true,
	}
	if _, err := h.items.Create(c.Request.Context(), item); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
