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

// ActorHandler covers the low-churn entity kinds: players, characters,
// sites and businesses.
type ActorHandler struct {
	log    *logger.Logger
	engine *workflow.Engine
	repos  *repos.Catalog
}

func NewActorHandler(engine *workflow.Engine, catalog *repos.Catalog, baseLog *logger.Logger) *ActorHandler {
	return &ActorHandler{
		log:    baseLog.With("handler", "ActorHandler"),
		engine: engine,
		repos:  catalog,
	}
}

// POST /api/players
func (h *ActorHandler) UpsertPlayer(c *gin.Context) {
	var p domain.Player
	if err := c.ShouldBindJSON(&p); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := h.engine.UpsertPlayer(c.Request.Context(), &p); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"player": p})
}

// GET /api/players/:id
func (h *ActorHandler) GetPlayer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_player_id", err)
		return
	}
	p, err := h.repos.Players.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"player": p})
}

// GET /api/players
func (h *ActorHandler) ListPlayers(c *gin.Context) {
	players, err := h.repos.Players.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"players": players})
}

// DELETE /api/players/:id
func (h *ActorHandler) DeletePlayer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_player_id", err)
		return
	}
	if err := h.engine.DeletePlayer(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/characters
func (h *ActorHandler) UpsertCharacter(c *gin.Context) {
	var ch domain.Character
	if err := c.ShouldBindJSON(&ch); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	if err := h.engine.UpsertCharacter(c.Request.Context(), &ch); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"character": ch})
}

// GET /api/characters/:id
func (h *ActorHandler) GetCharacter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_character_id", err)
		return
	}
	ch, err := h.repos.Characters.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"character": ch})
}

// GET /api/characters
func (h *ActorHandler) ListCharacters(c *gin.Context) {
	chars, err := h.repos.Characters.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"characters": chars})
}

// DELETE /api/characters/:id
func (h *ActorHandler) DeleteCharacter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_character_id", err)
		return
	}
	if err := h.engine.DeleteCharacter(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/sites
func (h *ActorHandler) UpsertSite(c *gin.Context) {
	var s domain.Site
	if err := c.ShouldBindJSON(&s); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if err := h.engine.UpsertSite(c.Request.Context(), &s); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"site": s})
}

// GET /api/sites/:id
func (h *ActorHandler) GetSite(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_site_id", err)
		return
	}
	s, err := h.repos.Sites.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"site": s})
}

// GET /api/sites
func (h *ActorHandler) ListSites(c *gin.Context) {
	sites, err := h.repos.Sites.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"sites": sites})
}

// DELETE /api/sites/:id
func (h *ActorHandler) DeleteSite(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_site_id", err)
		return
	}
	if err := h.engine.DeleteSite(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}

// POST /api/businesses
func (h *ActorHandler) UpsertBusiness(c *gin.Context) {
	var b domain.Business
	if err := c.ShouldBindJSON(&b); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := h.engine.UpsertBusiness(c.Request.Context(), &b); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"business": b})
}

// GET /api/businesses
func (h *ActorHandler) ListBusinesses(c *gin.Context) {
	businesses, err := h.repos.Businesses.GetAll(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"businesses": businesses})
}

// DELETE /api/businesses/:id
func (h *ActorHandler) DeleteBusiness(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_business_id", err)
		return
	}
	if err := h.engine.DeleteBusiness(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": id})
}
