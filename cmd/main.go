package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/app"
	"github.com/ravenmill/tracker-backend/internal/archive"
	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/data/repos"
	"github.com/ravenmill/tracker-backend/internal/effects"
	"github.com/ravenmill/tracker-backend/internal/eventlog"
	"github.com/ravenmill/tracker-backend/internal/handlers"
	"github.com/ravenmill/tracker-backend/internal/jobs/queue"
	"github.com/ravenmill/tracker-backend/internal/links"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
	"github.com/ravenmill/tracker-backend/internal/propagate"
	"github.com/ravenmill/tracker-backend/internal/rates"
	"github.com/ravenmill/tracker-backend/internal/server"
	"github.com/ravenmill/tracker-backend/internal/workflow"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg := app.Load(log)

	// Store
	log.Info("Setting up store from main...", "backend", cfg.Store.Backend)
	store, err := newStore(cfg, log)
	if err != nil {
		log.Fatal("Store init failed", "backend", cfg.Store.Backend, "error", err)
	}
	defer store.Close()

	// Repos
	log.Info("Setting up repos from main...")
	catalog := repos.NewCatalog(store, log)

	// Workflow plumbing
	log.Info("Setting up workflow engine from main...")
	ledger := effects.NewLedger(store, log)
	events := eventlog.NewLog(store, log)
	linkRegistry := links.NewRegistry(store, log)
	archiveStore := archive.NewStore(store, log)
	propagator := propagate.New(catalog, ledger, events, linkRegistry, log)

	var ratesService rates.Service = rates.StaticService{}
	if cfg.RatesURL != "" {
		ratesService, err = rates.NewHTTPService(cfg.RatesURL, log)
		if err != nil {
			log.Warn("Rates client init failed, using static rates", "error", err)
			ratesService = rates.StaticService{}
		}
	}

	defaultPlayer := workflow.FirstPlayerResolver(catalog.Players)
	if cfg.DefaultPlayerID != "" {
		playerID, err := uuid.Parse(cfg.DefaultPlayerID)
		if err != nil {
			log.Warn("Invalid DEFAULT_PLAYER_ID, using first player", "value", cfg.DefaultPlayerID, "error", err)
		} else {
			defaultPlayer = workflow.StaticPlayerResolver(catalog.Players, playerID)
		}
	}

	engine := workflow.NewEngine(workflow.Deps{
		Log:           log,
		Repos:         catalog,
		Effects:       ledger,
		Events:        events,
		Links:         linkRegistry,
		Archive:       archiveStore,
		Rates:         ratesService,
		Propagator:    propagator,
		DefaultPlayer: defaultPlayer,
	})

	// Queue
	log.Info("Setting up workflow queue from main...")
	workQueue := queue.New(engine, queue.Options{
		BatchSize:      cfg.Queue.BatchSize,
		MaxConcurrency: cfg.Queue.MaxConcurrency,
		MaxRetries:     cfg.Queue.MaxRetries,
		DrainInterval:  cfg.Queue.DrainInterval(),
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go workQueue.Run(ctx)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AllowOrigins:   cfg.AllowOrigins,
		TaskHandler:    handlers.NewTaskHandler(engine, catalog.Tasks, log),
		SaleHandler:    handlers.NewSaleHandler(engine, catalog.Sales, log),
		RecordHandler:  handlers.NewRecordHandler(engine, catalog.Records, log),
		ItemHandler:    handlers.NewItemHandler(engine, catalog.Items, log),
		ActorHandler:   handlers.NewActorHandler(engine, catalog, log),
		LogHandler:     handlers.NewLogHandler(events, log),
		ArchiveHandler: handlers.NewArchiveHandler(archiveStore, log),
		QueueHandler:   handlers.NewQueueHandler(workQueue, log),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown failed", "error", err)
	}
}

func newStore(cfg app.Config, log *logger.Logger) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return kvstore.NewRedisStore(log, cfg.Store.RedisURL, cfg.Store.Namespace)
	case "sqlite":
		return kvstore.NewSQLiteStore(log, cfg.Store.SQLite)
	default:
		return kvstore.NewMemoryStore(), nil
	}
}
