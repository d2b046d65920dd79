package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/jobs/queue"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type QueueHandler struct {
	log   *logger.Logger
	queue *queue.Queue
}

func NewQueueHandler(q *queue.Queue, baseLog *logger.Logger) *QueueHandler {
	return &QueueHandler{
		log:   baseLog.With("handler", "QueueHandler"),
		queue: q,
	}
}

// GET /api/queue/status
func (h *QueueHandler) Status(c *gin.Context) {
	RespondOK(c, gin.H{"status": h.queue.Status()})
}

type enqueueRequest struct {
	EntityType string          `json:"entityType"`
	Priority   int             `json:"priority"`
	Entity     json.RawMessage `json:"entity"`
}

// POST /api/queue/enqueue
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	entity, err := decodeEntity(domain.EntityType(req.EntityType), req.Entity)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_entity", err)
		return
	}
	h.queue.Enqueue(domain.EntityType(req.EntityType), entity, req.Priority)
	RespondOK(c, gin.H{"status": h.queue.Status()})
}

func decodeEntity(t domain.EntityType, raw json.RawMessage) (any, error) {
	switch t {
	case domain.EntityTask:
		var v domain.Task
		return &v, json.Unmarshal(raw, &v)
	case domain.EntitySale:
		var v domain.Sale
		return &v, json.Unmarshal(raw, &v)
	case domain.EntityRecord:
		var v domain.FinancialRecord
		return &v, json.Unmarshal(raw, &v)
	case domain.EntityItem:
		var v domain.Item
		return &v, json.Unmarshal(raw, &v)
	case domain.EntityPlayer:
		var v domain.Player
		return &v, json.Unmarshal(raw, &v)
	case domain.EntityCharacter:
		var v domain.Character
		return &v, json.Unmarshal(raw, &v)
	case domain.EntitySite:
		var v domain.Site
		return &v, json.Unmarshal(raw, &v)
	case domain.EntityBusiness:
		var v domain.Business
		return &v, json.Unmarshal(raw, &v)
	default:
		return nil, domain.NewError(domain.CodeValidation, "Queue.Enqueue", "unknown entity type "+string(t), nil)
	}
}

type configureRequest struct {
	BatchSize        int `json:"batchSize"`
	MaxConcurrency   int `json:"maxConcurrency"`
	MaxRetries       int `json:"maxRetries"`
	DrainIntervalSec int `json:"drainIntervalSec"`
}

// POST /api/queue/configure
func (h *QueueHandler) Configure(c *gin.Context) {
	var req configureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	h.queue.Configure(queue.Options{
		BatchSize:      req.BatchSize,
		MaxConcurrency: req.MaxConcurrency,
		MaxRetries:     req.MaxRetries,
		DrainInterval:  time.Duration(req.DrainIntervalSec) * time.Second,
	})
	RespondOK(c, gin.H{"status": h.queue.Status()})
}

// POST /api/queue/drain
func (h *QueueHandler) Drain(c *gin.Context) {
	n := h.queue.Drain(c.Request.Context())
	RespondOK(c, gin.H{"drained": n, "status": h.queue.Status()})
}

// POST /api/queue/clear
func (h *QueueHandler) Clear(c *gin.Context) {
	n := h.queue.Clear()
	RespondOK(c, gin.H{"cleared": n})
}
