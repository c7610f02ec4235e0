package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"connectsprobot/internal/caching"
	"connectsprobot/internal/config"
	"connectsprobot/internal/fleet"
	"connectsprobot/internal/frontdoor"
	"connectsprobot/internal/handlers"
	"connectsprobot/internal/jobs/background"
	"connectsprobot/internal/policy"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/services"
	"connectsprobot/internal/transport"
	"connectsprobot/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	pool, err := database.NewPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := database.InitSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	// Create repositories
	userRepo := repositories.NewUserRepo(pool)
	ownerRepo := repositories.NewOwnerRepo(pool)
	convRepo := repositories.NewConversationRepo(pool)
	msgRepo := repositories.NewMessageRepo(pool)

	// Admission policy
	engine := policy.NewEngine(cfg.DailyMessageLimit, cfg.ActiveStartHour, cfg.ActiveEndHour, cfg.ActiveEndMinute, cfg.TrialDays, cfg.Location)

	// Logo storage
	mediaSvc, err := services.NewMinioMediaService(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO service: %v", err)
	}
	if err := mediaSvc.EnsureBucketExists(ctx); err != nil {
		log.Printf("WARNING: logo bucket unavailable: %v", err)
	}

	// Transports: one opener serves both the shared front door and every
	// dedicated instance.
	opener := transport.NewTelegramOpener(cfg.TelegramAPIBase)
	frontDoor, err := opener.Open(ctx, cfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to open front-door bot: %v", err)
	}

	registry := fleet.NewRegistry()
	router := services.NewRouter(userRepo, ownerRepo, convRepo, msgRepo, cacheSvc, engine, registry, frontDoor, cfg.RequestTimeout)
	orch := fleet.NewOrchestrator(registry, opener, ownerRepo, engine, router.DedicatedHandler)

	onboardingSvc := services.NewOnboarding(ownerRepo, cacheSvc, orch, registry, mediaSvc, frontDoor, frontDoor.Username(), config.Categories, cfg.TrialDays)
	dispatcher := frontdoor.NewDispatcher(router, onboardingSvc, ownerRepo, cacheSvc)
	frontDoor.Subscribe(dispatcher.Handler(frontDoor))

	broadcastSvc := services.NewBroadcastService(userRepo, ownerRepo, frontDoor)
	trialSvc := services.NewTrialService(orch, ownerRepo, engine, cacheSvc, frontDoor)
	cleanupSvc := services.NewCleanupService(msgRepo, cfg.Retention())

	// Background jobs
	scheduler := background.NewJobScheduler(trialSvc, cleanupSvc)

	// Create handlers
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc)
	authHandlers := handlers.NewAuthHandlers(cfg.AdminAPIToken, cfg.JWTSecret)
	adminHandlers := handlers.NewAdminHandlers(ownerRepo, cacheSvc, orch, registry, broadcastSvc, scheduler)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	// API routes
	v1 := e.Group("/v1")

	auth := v1.Group("/auth")
	auth.POST("/login", authHandlers.Login)

	// Protected routes (require JWT)
	protected := v1.Group("")
	protected.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(cfg.JWTSecret),
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(401, "Invalid token")
		},
	}))

	protected.GET("/owners", adminHandlers.ListOwners)
	protected.GET("/owners/:id", adminHandlers.GetOwner)
	protected.PUT("/owners/:id/active", adminHandlers.SetOwnerActive)
	protected.POST("/owners/:id/expire-trial", adminHandlers.ExpireTrial)
	protected.GET("/fleet", adminHandlers.FleetStatus)
	protected.POST("/fleet/trial-sweep", adminHandlers.TriggerTrialSweep)
	protected.POST("/broadcast", adminHandlers.Broadcast)
	protected.GET("/jobs", adminHandlers.JobStatus)
	protected.POST("/jobs/:name/run", adminHandlers.RunJob)

	// Bring the relay up: front door first, then the dedicated fleet.
	if err := frontDoor.Start(ctx); err != nil {
		log.Fatalf("Failed to start front-door bot: %v", err)
	}
	started, failed := orch.StartAll(ctx)
	log.Printf("Relay up: front door @%s, %d dedicated instances (%d failed)", frontDoor.Username(), started, failed)

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop taking HTTP traffic, drain the bots, stop jobs.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Printf("Scheduler shutdown: %v", err)
	}
	orch.StopAll(shutdownCtx)
	if err := frontDoor.Stop(shutdownCtx); err != nil {
		log.Printf("Front door shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}
