package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ravenmill/tracker-backend/internal/handlers"
)

type RouterConfig struct {
	AllowOrigins   []string
	TaskHandler    *handlers.TaskHandler
	SaleHandler    *handlers.SaleHandler
	RecordHandler  *handlers.RecordHandler
	ItemHandler    *handlers.ItemHandler
	ActorHandler   *handlers.ActorHandler
	LogHandler     *handlers.LogHandler
	ArchiveHandler *handlers.ArchiveHandler
	QueueHandler   *handlers.QueueHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Tasks
		api.POST("/tasks", cfg.TaskHandler.Upsert)
		api.GET("/tasks", cfg.TaskHandler.List)
		api.GET("/tasks/:id", cfg.TaskHandler.Get)
		api.DELETE("/tasks/:id", cfg.TaskHandler.Delete)
		api.POST("/tasks/:id/uncomplete", cfg.TaskHandler.Uncomplete)
		// Sales
		api.POST("/sales", cfg.SaleHandler.Upsert)
		api.GET("/sales", cfg.SaleHandler.List)
		api.GET("/sales/:id", cfg.SaleHandler.Get)
		api.DELETE("/sales/:id", cfg.SaleHandler.Delete)
		api.POST("/sales/:id/uncomplete", cfg.SaleHandler.Uncomplete)
		// Financial records
		api.POST("/records", cfg.RecordHandler.Upsert)
		api.GET("/records", cfg.RecordHandler.List)
		api.GET("/records/:id", cfg.RecordHandler.Get)
		api.DELETE("/records/:id", cfg.RecordHandler.Delete)
		// Items
		api.POST("/items", cfg.ItemHandler.Upsert)
		api.GET("/items", cfg.ItemHandler.List)
		api.GET("/items/:id", cfg.ItemHandler.Get)
		api.DELETE("/items/:id", cfg.ItemHandler.Delete)
		// Players
		api.POST("/players", cfg.ActorHandler.UpsertPlayer)
		api.GET("/players", cfg.ActorHandler.ListPlayers)
		api.GET("/players/:id", cfg.ActorHandler.GetPlayer)
		api.DELETE("/players/:id", cfg.ActorHandler.DeletePlayer)
		// Characters
		api.POST("/characters", cfg.ActorHandler.UpsertCharacter)
		api.GET("/characters", cfg.ActorHandler.ListCharacters)
		api.GET("/characters/:id", cfg.ActorHandler.GetCharacter)
		api.DELETE("/characters/:id", cfg.ActorHandler.DeleteCharacter)
		// Sites
		api.POST("/sites", cfg.ActorHandler.UpsertSite)
		api.GET("/sites", cfg.ActorHandler.ListSites)
		api.GET("/sites/:id", cfg.ActorHandler.GetSite)
		api.DELETE("/sites/:id", cfg.ActorHandler.DeleteSite)
		// Businesses
		api.POST("/businesses", cfg.ActorHandler.UpsertBusiness)
		api.GET("/businesses", cfg.ActorHandler.ListBusinesses)
		api.DELETE("/businesses/:id", cfg.ActorHandler.DeleteBusiness)
		// Event log
		api.GET("/log/:type/:id", cfg.LogHandler.Entries)
		api.POST("/log/entries/:entryId/soft-delete", cfg.LogHandler.SoftDelete)
		api.POST("/log/entries/:entryId/restore", cfg.LogHandler.Restore)
		api.POST("/log/entries/:entryId/edit", cfg.LogHandler.Edit)
		api.DELETE("/log/entries/:entryId", cfg.LogHandler.PermanentDelete)
		// Archive
		api.GET("/archive/:type/:month", cfg.ArchiveHandler.ListMonth)
		api.GET("/archive/:type/:month/index", cfg.ArchiveHandler.IndexMembers)
		api.GET("/archive/:type/:month/snapshots/:sourceId", cfg.ArchiveHandler.Get)
		// Queue
		api.GET("/queue/status", cfg.QueueHandler.Status)
		api.POST("/queue/enqueue", cfg.QueueHandler.Enqueue)
		api.POST("/queue/configure", cfg.QueueHandler.Configure)
		api.POST("/queue/drain", cfg.QueueHandler.Drain)
		api.POST("/queue/clear", cfg.QueueHandler.Clear)
	}

	return router
}
