package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pauxiel/goalwhisper/internal/handlers"
	"github.com/pauxiel/goalwhisper/internal/orchestrator"
	"github.com/pauxiel/goalwhisper/internal/provider"
	"github.com/pauxiel/goalwhisper/internal/store"
	"github.com/pauxiel/goalwhisper/internal/workflows"
	"github.com/pauxiel/goalwhisper/pkg/analysis"
)

// Standalone analysis worker for quick testing
// Uses in-memory record store + simulated capability provider
// No Postgres or real inference backend needed
func main() {
	// Configuration from environment
	httpAddr := os.Getenv("ANALYSIS_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	pollsToReady := 2
	if raw := os.Getenv("SIM_POLLS_TO_READY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			pollsToReady = n
		}
	}
	withTracking := os.Getenv("SIM_TRACKING") == "true"

	log.Printf("Analysis Standalone Worker")
	log.Printf("  Mode: Embedded (in-memory store + simulated provider)")
	log.Printf("  Jobs succeed after %d polls, tracking=%v", pollsToReady, withTracking)
	log.Printf("  HTTP address: %s", httpAddr)

	capProvider := provider.NewSimulatedProvider(pollsToReady, withTracking)
	recordStore := store.NewMemoryStore()
	orch := orchestrator.New(capProvider, recordStore, log.Default())

	// Initialize workflow runner (no DBOS - workflows run inline)
	workflowRunner := workflows.NewWorkflowRunner(nil)

	// Register workflows
	ingestWorkflow := workflows.NewIngestWorkflow(orch, nil)
	workflowRunner.Register(handlers.JobIngest, ingestWorkflow)
	log.Printf("✓ Registered workflow: %s for job: %s", ingestWorkflow.Name(), handlers.JobIngest)

	// Create HTTP server
	mux := http.NewServeMux()

	analysisHandler := handlers.NewAnalysisHandler(&inlineRunner{runner: workflowRunner}, orch, nil)
	analysisHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/demo", demoHandler(orch))

	server := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	// Start server in goroutine
	go func() {
		log.Printf("✓ Analysis worker ready on %s", httpAddr)
		log.Printf("")
		log.Printf("Quick test:")
		log.Printf("  curl -X POST http://localhost%s/v1/demo", httpAddr)
		log.Printf("")
		log.Printf("Available endpoints:")
		log.Printf("  GET  /health                     - Health check")
		log.Printf("  POST /v1/videos                  - Report an upload event")
		log.Printf("  GET  /v1/videos                  - List analyses")
		log.Printf("  GET  /v1/videos/{id}             - Poll one analysis")
		log.Printf("  POST /v1/videos/{id}/refresh     - Re-check outstanding jobs")
		log.Printf("  POST /v1/notifications           - Apply a pushed job status")
		log.Printf("  POST /v1/demo                    - Run end-to-end demo (submit + refresh to report)")
		log.Printf("")

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

// inlineRunner executes the ingest workflow synchronously so the
// standalone binary works without a DBOS database.
type inlineRunner struct {
	runner *workflows.WorkflowRunner
}

func (r *inlineRunner) RunAsync(ctx context.Context, job string, req analysis.SubmitRequest) (string, error) {
	runID := uuid.New().String()
	wctx := &workflows.WorkflowContext{
		Ctx:     ctx,
		Request: req,
		RunID:   runID,
	}
	result, err := r.runner.Run(job, wctx)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", result.Error
	}
	return runID, nil
}

// demoHandler submits a sample video and drives refreshes until the
// analysis reaches a terminal state.
func demoHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("demo/match-%s.mp4", uuid.New().String()[:8])

		rec, err := orch.SubmitJobs(r.Context(), analysis.SubmitRequest{VideoKey: key})
		if err != nil {
			http.Error(w, fmt.Sprintf("Submit failed: %v", err), http.StatusInternalServerError)
			return
		}

		for i := 0; i < 20; i++ {
			outcome, refreshed, err := orch.Refresh(r.Context(), rec.VideoID)
			if err != nil {
				http.Error(w, fmt.Sprintf("Refresh failed: %v", err), http.StatusInternalServerError)
				return
			}
			if outcome != orchestrator.OutcomeStillPending {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"video_id": refreshed.VideoID,
					"status":   refreshed.Status,
					"report":   json.RawMessage(refreshed.Report),
				})
				return
			}
		}

		http.Error(w, "Demo did not finish in time", http.StatusGatewayTimeout)
	}
}
