// Command server is the composition root: it loads configuration, wires
// every adapter/engine/worker built under internal/, and serves the HTTP
// API. Grounded on the teacher's cmd/api/main.go + pkg/di/container.go
// (config → infrastructure → repositories → services → scheduler → workers
// init order, graceful shutdown on SIGINT/SIGTERM), collapsed from the
// teacher's DI container into one linear main since this module's
// dependency graph is a fraction of the teacher's.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"driveingest/internal/infrastructure/caption"
	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/ingest"
	"driveingest/internal/interfaces/api/handlers"
	"driveingest/internal/interfaces/api/middleware"
	"driveingest/internal/interfaces/api/routes"
	ws "driveingest/internal/interfaces/api/websocket"
	"driveingest/internal/pkg/config"
	"driveingest/internal/pkg/logger"
	"driveingest/internal/pkg/scheduler"
	"driveingest/internal/pkg/thumbcache"
	"driveingest/internal/ratelimit"
	"driveingest/internal/recovery"
	"driveingest/internal/search"
	"driveingest/internal/sync"
	"driveingest/internal/worker/folderworker"
	"driveingest/internal/worker/imageworker"
)

func main() {
	if err := logger.Init("logs", true); err != nil {
		fmt.Printf("warning: failed to initialize logger: %v\n", err)
	}
	logger.Startup("logger_init", "logger initialized, writing to ./logs", nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.StartupError("config_load_failed", "failed to load configuration", err, nil)
		os.Exit(1)
	}

	db, err := store.NewDatabase(cfg.Database)
	if err != nil {
		logger.StartupError("db_connect_failed", "failed to connect to the database", err, nil)
		os.Exit(1)
	}

	gormStore := store.NewGormStore(db, cfg.Caption.VectorDim)
	if err := gormStore.EnsureVectorExtension(context.Background()); err != nil {
		logger.StartupWarn("vector_extension_unavailable", "vector extension unavailable before migration, the images table's vector column will fail to create", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := store.Migrate(db); err != nil {
		logger.StartupError("db_migrate_failed", "failed to run migrations", err, nil)
		os.Exit(1)
	}
	logger.Startup("db_ready", "database connected and migrated", nil)

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.StartupWarn("redis_connect_failed", "redis unreachable at startup, queue/cache will error until it recovers", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		logger.Startup("redis_ready", "redis connected", nil)
	}

	if err := gormStore.EnsureVectorInfra(context.Background()); err != nil {
		logger.StartupWarn("vector_infra_unavailable", "vector search infrastructure unavailable, falling back to filename search", map[string]interface{}{
			"error": err.Error(),
		})
	}

	q := queue.New(rdb)
	thumbCache := thumbcache.New(rdb)

	driveLimiter := ratelimit.New(ratelimit.Config{
		MaxPerWindow: cfg.RateLimit.DriveMaxPerWindow,
		WindowMs:     cfg.RateLimit.DriveWindowMs,
	})
	captionLimiter := ratelimit.New(ratelimit.Config{
		MaxPerWindow:  cfg.RateLimit.CaptionMaxPerWindow,
		WindowMs:      cfg.RateLimit.CaptionWindowMs,
		BurstMax:      cfg.RateLimit.CaptionBurstMax,
		BurstWindowMs: cfg.RateLimit.CaptionBurstWindowMs,
	})

	driveAdapter, err := drive.NewAdapter(cfg.Drive, driveLimiter, thumbCache)
	if err != nil {
		logger.StartupError("drive_adapter_init_failed", "failed to initialize the drive adapter", err, nil)
		os.Exit(1)
	}

	captionCtx, cancelCaptionInit := context.WithTimeout(context.Background(), 30*time.Second)
	captionAdapter, err := caption.NewAdapter(captionCtx, cfg.Caption, captionLimiter)
	cancelCaptionInit()
	if err != nil {
		logger.StartupError("caption_adapter_init_failed", "failed to initialize the captioning adapter", err, nil)
		os.Exit(1)
	}

	syncEngine := sync.New(gormStore, driveAdapter, q, cfg.Ingest.MaxImagesPerFolder)
	searchEngine := search.New(gormStore, captionAdapter)
	coordinator := ingest.New(gormStore, driveAdapter, q, syncEngine, cfg.Ingest.MaxImagesPerFolder)

	hub := ws.NewHub()

	folderWorker := folderworker.New(q, gormStore, hub)
	imageWorker := imageworker.New(q, gormStore, driveAdapter, captionAdapter, cfg.Ingest.ImageConcurrency, hub)
	folderWorker.Start()
	imageWorker.Start()

	sched := scheduler.New()
	supervisor := recovery.New(gormStore, q)
	if err := supervisor.Schedule(context.Background(), sched); err != nil {
		logger.StartupError("recovery_schedule_failed", "failed to schedule the recovery sweep", err, nil)
	}
	sched.Start()

	h := handlers.New(handlers.Deps{
		Store:        gormStore,
		Queue:        q,
		Drive:        driveAdapter,
		Coordinator:  coordinator,
		SyncEngine:   syncEngine,
		SearchEngine: searchEngine,
		Config:       cfg,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		AppName:      cfg.App.Name,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	routes.SetupRoutes(app, h, hub, cfg)

	go func() {
		addr := ":" + cfg.App.Port
		logger.Startup("server_starting", "server starting", map[string]interface{}{
			"port":      cfg.App.Port,
			"env":       cfg.App.Env,
			"health":    "http://localhost:" + cfg.App.Port + "/health",
			"api":       "http://localhost:" + cfg.App.Port + "/api/v1",
			"websocket": "ws://localhost:" + cfg.App.Port + "/ws",
		})
		if err := app.Listen(addr); err != nil {
			logger.StartupError("server_failed", "server failed to start", err, nil)
			os.Exit(1)
		}
	}()

	waitForShutdown(app, sched, folderWorker, imageWorker, rdb)
}

type stoppable interface{ Stop() }

// waitForShutdown implements spec §5's shutdown rule: stop accepting new
// jobs and let in-flight ones finish or be declared stalled by the next
// recovery sweep, rather than aborting them mid-flight.
func waitForShutdown(app *fiber.App, sched scheduler.Scheduler, folderWorker, imageWorker stoppable, rdb *redis.Client) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Startup("shutdown_started", "graceful shutdown initiated", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.StartupError("http_shutdown_failed", "HTTP server did not shut down cleanly", err, nil)
	}

	folderWorker.Stop()
	imageWorker.Stop()
	sched.Stop()

	if err := rdb.Close(); err != nil {
		logger.StartupError("redis_close_failed", "failed to close redis connection", err, nil)
	}

	logger.Startup("shutdown_complete", "shutdown complete", nil)
}
