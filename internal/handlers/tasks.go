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

type TaskHandler struct {
	log    *logger.Logger
	engine *workflow.Engine
	tasks  repos.TaskRepo
}

func NewTaskHandler(engine *workflow.Engine, tasks repos.TaskRepo, baseLog *logger.Logger) *TaskHandler {
	return &TaskHandler{
		log:    baseLog.With("handler", "TaskHandler"),
		engine: engine,
		tasks:  tasks,
	}
}

// POST /api/tasks
// The primary write always lands; workflow side-effect failures are
// reported alongside the entity, never as a request failure.
func (h *TaskHandler) Upsert(c *gin.Context) {
	var task domain.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusCreated
	}
	if err := h.engine.UpsertTask(c.Request.Context(), &task); err != nil {
		if domain.IsCode(err, domain.CodeValidation) {
			RespondDomainError(c, err)
			return
		}
		h.log.Warn("Task workflow reported failures", "task_id", task.ID, "error", err)
		RespondOK(c, gin.H{"task": task, "workflowError": err.Error()})
		return
	}
	RespondOK(c, gin.H{"task": task})
}

// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"task": task})
}

// GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.tasks.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"tasks": tasks})
}

// DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	if err := h.engine.DeleteTask(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/tasks/:id/uncomplete
func (h *TaskHandler) Uncomplete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	task, err := h.engine.UncompleteTask(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"task": task})
}
