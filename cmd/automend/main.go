package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/automend/automend/internal/config"
	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/escalation"
	"github.com/automend/automend/internal/events"
	"github.com/automend/automend/internal/executor"
	"github.com/automend/automend/internal/executor/plugins"
	"github.com/automend/automend/internal/handlers"
	"github.com/automend/automend/internal/jobs"
	"github.com/automend/automend/internal/metrics"
	"github.com/automend/automend/internal/middleware"
	"github.com/automend/automend/internal/patterns"
	"github.com/automend/automend/internal/patterns/detectors"
	"github.com/automend/automend/internal/services"
	slacknotify "github.com/automend/automend/internal/slack"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Automend engine...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/auth/login",
			"/ws/events",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize default database records
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	db := database.GetDB()

	// Apply the operator policy file, if configured
	if cfg.PolicyFile != "" {
		if err := applyPolicy(db, cfg.PolicyFile); err != nil {
			log.Fatalf("Failed to apply policy file %s: %v", cfg.PolicyFile, err)
		}
		log.Printf("Applied engine policy from %s", cfg.PolicyFile)
	}

	// Ambient services
	slackNotifier := slacknotify.NewNotifier(db)
	auditService := services.NewAuditService(db)
	notificationService := services.NewNotificationService(db, slackNotifier)
	directoryService := services.NewDirectoryService(db)

	// Execution engine and its plugins
	registry := executor.NewRegistry()
	engine := executor.NewEngine(db, registry)
	followUpWorker := jobs.NewFollowUpWorker(db, engine)

	for _, plugin := range []executor.ActionExecutor{
		plugins.NewNotifyExecutor(db, notificationService),
		plugins.NewReassignTasksExecutor(db),
		escalation.NewExecutor(db, directoryService, notificationService, followUpWorker),
	} {
		if err := registry.Register(plugin); err != nil {
			log.Fatalf("Failed to register action executor: %v", err)
		}
	}
	log.Printf("Action executors registered: %s", strings.Join(registry.Types(), ", "))

	// Execution events go out over WebSocket and Slack
	hub := events.NewHub()
	engine.SetEventSink(&eventFanout{sinks: []executor.EventSink{hub, slackNotifier}})

	// Pattern detectors
	detectorRegistry := patterns.NewRegistry()
	for _, d := range []patterns.Detector{
		detectors.NewStuckWorkflowDetector(db),
		detectors.NewIntegrationFailureDetector(db),
		detectors.NewWorkloadImbalanceDetector(db),
		detectors.NewApprovalBottleneckDetector(db),
	} {
		if err := detectorRegistry.Register(d); err != nil {
			log.Fatalf("Failed to register detector: %v", err)
		}
	}
	scanner := patterns.NewScanner(detectorRegistry)
	matcher := executor.NewMatcher(db)
	log.Printf("Pattern detectors registered: %s", strings.Join(detectorRegistry.Types(), ", "))

	// Domain services
	actionService := services.NewActionService(db, registry)
	rollbackService := services.NewRollbackService(db, engine, auditService)

	// Background jobs
	stop := make(chan struct{})
	detectionScan := jobs.NewDetectionScan(db, scanner, matcher, engine)
	go detectionScan.Start(stop)
	go followUpWorker.Start(time.Minute, stop)

	// HTTP surface
	apiHandler := handlers.NewAPIHandler(db, actionService, rollbackService, auditService,
		notificationService, scanner, matcher, engine)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)
	httpHandler := handlers.NewHTTPHandler()

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	hub.SetupRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := corsMiddleware.Wrap(middleware.RequestIDMiddleware(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("Engine is running! Press Ctrl+C to exit.")
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)
	log.Printf("Execution events: ws://localhost:%d/ws/events", cfg.HTTPPort)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}

// eventFanout delivers execution events to every configured sink
type eventFanout struct {
	sinks []executor.EventSink
}

func (f *eventFanout) PublishExecution(eventType string, execution *database.ActionExecution, actionType string) {
	for _, sink := range f.sinks {
		sink.PublishExecution(eventType, execution, actionType)
	}
}

// applyPolicy overlays the policy file onto the stored engine settings. Keys
// omitted from the file leave the stored values untouched.
func applyPolicy(db *gorm.DB, path string) error {
	policy, err := config.LoadPolicy(path)
	if err != nil {
		return err
	}

	settings, err := database.GetOrCreateEngineSettings(db)
	if err != nil {
		return err
	}

	if policy.Scan.Enabled != nil {
		settings.ScanEnabled = *policy.Scan.Enabled
	}
	if policy.Scan.IntervalMinutes != nil {
		settings.ScanIntervalMinutes = *policy.Scan.IntervalMinutes
	}
	if policy.Scan.TimeWindowMinutes != nil {
		settings.TimeWindowMinutes = *policy.Scan.TimeWindowMinutes
	}
	if policy.Scan.MinSeverity != nil {
		settings.MinSeverity = *policy.Scan.MinSeverity
	}
	if policy.Execution.DefaultTimeoutSeconds != nil {
		settings.DefaultTimeoutSeconds = *policy.Execution.DefaultTimeoutSeconds
	}
	if policy.Rollback.MaxWindowHours != nil {
		settings.MaxRollbackWindowHours = *policy.Rollback.MaxWindowHours
	}
	if policy.Rollback.RequiresApproval != nil {
		settings.RollbackRequiresApproval = *policy.Rollback.RequiresApproval
	}
	if policy.Rollback.Denylist != nil {
		settings.RollbackDenylist = strings.Join(policy.Rollback.Denylist, ",")
	}
	if policy.Detectors.StuckTaskThresholdMinutes != nil {
		settings.StuckTaskThresholdMinutes = *policy.Detectors.StuckTaskThresholdMinutes
	}
	if policy.Detectors.IntegrationFailureThreshold != nil {
		settings.IntegrationFailureThreshold = *policy.Detectors.IntegrationFailureThreshold
	}
	if policy.Detectors.WorkloadImbalanceRatio != nil {
		settings.WorkloadImbalanceRatio = *policy.Detectors.WorkloadImbalanceRatio
	}
	if policy.Detectors.ApprovalPendingThresholdMinutes != nil {
		settings.ApprovalPendingThresholdMinutes = *policy.Detectors.ApprovalPendingThresholdMinutes
	}

	return database.UpdateEngineSettings(db, settings)
}
