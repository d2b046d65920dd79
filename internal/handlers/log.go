package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/eventlog"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type LogHandler struct {
	log    *logger.Logger
	events *eventlog.Log
}

func NewLogHandler(events *eventlog.Log, baseLog *logger.Logger) *LogHandler {
	return &LogHandler{
		log:    baseLog.With("handler", "LogHandler"),
		events: events,
	}
}

// GET /api/log/:type/:id?active=true
func (h *LogHandler) Entries(c *gin.Context) {
	entityType := domain.EntityType(c.Param("type"))
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_entity_id", err)
		return
	}
	var entries []*domain.LogEntry
	if c.Query("active") == "true" {
		entries, err = h.events.ActiveEntriesFor(c.Request.Context(), entityType, id)
	} else {
		entries, err = h.events.EntriesFor(c.Request.Context(), entityType, id)
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"entries": entries})
}

type logActionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// POST /api/log/entries/:entryId/soft-delete
func (h *LogHandler) SoftDelete(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_entry_id", err)
		return
	}
	var req logActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.events.SoftDelete(c.Request.Context(), entryID, req.Actor, req.Reason); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": entryID})
}

// POST /api/log/entries/:entryId/restore
func (h *LogHandler) Restore(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_entry_id", err)
		return
	}
	var req logActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.events.Restore(c.Request.Context(), entryID, req.Actor, req.Reason); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"restored": entryID})
}

type logEditRequest struct {
	Updates map[string]any `json:"updates"`
	Actor   string         `json:"actor"`
	Reason  string         `json:"reason,omitempty"`
}

// POST /api/log/entries/:entryId/edit
func (h *LogHandler) Edit(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_entry_id", err)
		return
	}
	var req logEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.events.Edit(c.Request.Context(), entryID, req.Updates, req.Actor, req.Reason); err != nil {
		RespondDomainError(c, err)
		return
	}
	entry, err := h.events.GetByID(c.Request.Context(), entryID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"entry": entry})
}

// DELETE /api/log/entries/:entryId
func (h *LogHandler) PermanentDelete(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_entry_id", err)
		return
	}
	if err := h.events.PermanentDelete(c.Request.Context(), entryID, c.Query("actor")); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": entryID})
}
