package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/repos"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
	"github.com/ravenmill/tracker-backend/internal/workflow"
)

type ItemHandler struct {
	log    *logger.Logger
	engine *workflow.Engine
	items  repos.ItemRepo
}

func NewItemHandler(engine *workflow.Engine, items repos.ItemRepo, baseLog *logger.Logger) *ItemHandler {
	return &ItemHandler{
		log:    baseLog.With("handler", "ItemHandler"),
		engine: engine,
		items:  items,
	}
}

// POST /api/items
func (h *ItemHandler) Upsert(c *gin.Context) {
	var item domain.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = domain.ItemStatusActive
	}
	if err := h.engine.UpsertItem(c.Request.Context(), &item); err != nil {
		if domain.IsCode(err, domain.CodeValidation) {
			RespondDomainError(c, err)
			return
		}
		h.log.Warn("Item workflow reported failures", "item_id", item.ID, "error", err)
		RespondOK(c, gin.H{"item": item, "workflowError": err.Error()})
		return
	}
	RespondOK(c, gin.H{"item": item})
}

// GET /api/items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_item_id", err)
		return
	}
	item, err := h.items.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"item": item})
}

// GET /api/items
func (h *ItemHandler) List(c *gin.Context) {
	items, err := h.items.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}

// DELETE /api/items/:id
func (h *ItemHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_item_id", err)
		return
	}
	if err := h.engine.DeleteItem(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}
