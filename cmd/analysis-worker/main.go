package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pauxiel/goalwhisper/internal/dbosruntime"
	"github.com/pauxiel/goalwhisper/internal/dedupe"
	"github.com/pauxiel/goalwhisper/internal/handlers"
	"github.com/pauxiel/goalwhisper/internal/orchestrator"
	"github.com/pauxiel/goalwhisper/internal/provider"
	"github.com/pauxiel/goalwhisper/internal/store"
	"github.com/pauxiel/goalwhisper/internal/workflows"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	// Configuration from environment
	httpAddr := os.Getenv("WORKER_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	providerURL := os.Getenv("PROVIDER_URL")
	if providerURL == "" {
		log.Fatalf("PROVIDER_URL is required")
	}

	// Record store and dedupe ledger share one Postgres database
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	recordStore, err := store.NewPostgresStore(db)
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}
	dedupeTracker, err := dedupe.NewTracker(db)
	if err != nil {
		log.Fatalf("Failed to initialize dedupe ledger: %v", err)
	}
	log.Printf("✓ Record store and dedupe ledger ready")

	// Capability provider
	kinds := analysis.RequiredKinds()
	if os.Getenv("PROVIDER_TRACKING") == "true" {
		kinds = append(kinds, analysis.KindTrack)
	}
	capProvider := provider.NewHTTPProvider(providerURL, kinds...)
	log.Printf("✓ Capability provider at %s (kinds: %v)", providerURL, kinds)

	orch := orchestrator.New(capProvider, recordStore, log.Default())

	// Initialize DBOS runtime (required)
	dbosURL := os.Getenv("DBOS_SYSTEM_DATABASE_URL")
	if dbosURL == "" {
		log.Fatalf("DBOS_SYSTEM_DATABASE_URL is required")
	}

	queueName := os.Getenv("DBOS_QUEUE_NAME")
	concurrency := 0
	if raw := os.Getenv("DBOS_QUEUE_CONCURRENCY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			concurrency = n
		}
	}

	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL: dbosURL,
		AppName:     "analysis-worker",
		QueueName:   queueName,
		Concurrency: concurrency,
	})
	if err != nil {
		log.Fatalf("Failed to initialize DBOS: %v", err)
	}

	// Initialize workflow runner with DBOS support (registers workflows with DBOS)
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	// Register workflows. The handler records dedupe entries itself, so
	// the workflow runs without a ledger to avoid double counting.
	ingestWorkflow := workflows.NewIngestWorkflow(orch, nil)
	workflowRunner.Register(handlers.JobIngest, ingestWorkflow)
	log.Printf("✓ Registered workflow: %s for job: %s", ingestWorkflow.Name(), handlers.JobIngest)

	// Launch DBOS (must be done after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		log.Fatalf("Failed to launch DBOS: %v", err)
	}
	defer dbosRuntime.Shutdown(10 * time.Second)

	log.Printf("✓ DBOS runtime initialized")
	log.Printf("  Queue: %s", dbosRuntime.QueueName())
	log.Printf("  Concurrency: %d", dbosRuntime.Concurrency())

	// Create HTTP server
	mux := http.NewServeMux()

	analysisHandler := handlers.NewAnalysisHandler(workflowRunner, orch, dedupeTracker)
	analysisHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("✓ Registered analysis endpoints")

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Analysis worker starting on %s", httpAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
