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

type RecordHandler struct {
	log     *logger.Logger
	engine  *workflow.Engine
	records repos.RecordRepo
}

func NewRecordHandler(engine *workflow.Engine, records repos.RecordRepo, baseLog *logger.Logger) *RecordHandler {
	return &RecordHandler{
		log:     baseLog.With("handler", "RecordHandler"),
		engine:  engine,
		records: records,
	}
}

// POST /api/records
func (h *RecordHandler) Upsert(c *gin.Context) {
	var rec domain.FinancialRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = domain.RecordStatusCreated
	}
	if err := h.engine.UpsertRecord(c.Request.Context(), &rec); err != nil {
		if domain.IsCode(err, domain.CodeValidation) {
			RespondDomainError(c, err)
			return
		}
		h.log.Warn("Record workflow reported failures", "record_id", rec.ID, "error", err)
		RespondOK(c, gin.H{"record": rec, "workflowError": err.Error()})
		return
	}
	RespondOK(c, gin.H{"record": rec})
}

// GET /api/records/:id
func (h *RecordHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_record_id", err)
		return
	}
	rec, err := h.records.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"record": rec})
}

// GET /api/records
func (h *RecordHandler) List(c *gin.Context) {
	recs, err := h.records.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"records": recs})
}

// DELETE /api/records/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_record_id", err)
		return
	}
	if err := h.engine.DeleteRecord(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}
