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

type SaleHandler struct {
	log    *logger.Logger
	engine *workflow.Engine
	sales  repos.SaleRepo
}

func NewSaleHandler(engine *workflow.Engine, sales repos.SaleRepo, baseLog *logger.Logger) *SaleHandler {
	return &SaleHandler{
		log:    baseLog.With("handler", "SaleHandler"),
		engine: engine,
		sales:  sales,
	}
}

// POST /api/sales
func (h *SaleHandler) Upsert(c *gin.Context) {
	var sale domain.Sale
	if err := c.ShouldBindJSON(&sale); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPending
	}
	if err := h.engine.UpsertSale(c.Request.Context(), &sale); err != nil {
		if domain.IsCode(err, domain.CodeValidation) {
			RespondDomainError(c, err)
			return
		}
		h.log.Warn("Sale workflow reported failures", "sale_id", sale.ID, "error", err)
		RespondOK(c, gin.H{"sale": sale, "workflowError": err.Error()})
		return
	}
	RespondOK(c, gin.H{"sale": sale})
}

// GET /api/sales/:id
func (h *SaleHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_sale_id", err)
		return
	}
	sale, err := h.sales.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"sale": sale})
}

// GET /api/sales
func (h *SaleHandler) List(c *gin.Context) {
	sales, err := h.sales.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"sales": sales})
}

// DELETE /api/sales/:id
func (h *SaleHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_sale_id", err)
		return
	}
	if err := h.engine.DeleteSale(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/sales/:id/uncomplete
func (h *SaleHandler) Uncomplete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_sale_id", err)
		return
	}
	sale, err := h.engine.UncompleteSale(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"sale": sale})
}
