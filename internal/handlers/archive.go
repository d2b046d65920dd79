package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ravenmill/tracker-backend/internal/archive"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type ArchiveHandler struct {
	log     *logger.Logger
	archive *archive.Store
}

func NewArchiveHandler(store *archive.Store, baseLog *logger.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		log:     baseLog.With("handler", "ArchiveHandler"),
		archive: store,
	}
}

// GET /api/archive/:type/:month
func (h *ArchiveHandler) ListMonth(c *gin.Context) {
	entityType := c.Param("type")
	month := c.Param("month")
	snaps, err := h.archive.ListMonth(c.Request.Context(), entityType+"s", month)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"snapshots": snaps})
}

// GET /api/archive/:type/:month/:sourceId
func (h *ArchiveHandler) Get(c *gin.Context) {
	snap, err := h.archive.Get(c.Request.Context(), c.Param("type")+"s", c.Param("month"), c.Param("sourceId"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"snapshot": snap})
}

// GET /api/archive/:type/:month/index/members
func (h *ArchiveHandler) IndexMembers(c *gin.Context) {
	key := "collected:" + c.Param("type") + ":" + c.Param("month")
	members, err := h.archive.IndexMembers(c.Request.Context(), key)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"members": members})
}
