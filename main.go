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

	"github.com/vrsandeep/catalog-importer/internal/api"
	"github.com/vrsandeep/catalog-importer/internal/core"
	"github.com/vrsandeep/catalog-importer/internal/jobs"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()
	logger := app.Log()

	go app.WsHub().Run()
	defer app.WsHub().Stop()

	// Import workers stop when workCtx is cancelled.
	workCtx, stopWorkers := context.WithCancel(context.Background())
	pool := app.NewPool()
	if err := pool.Start(workCtx); err != nil {
		logger.Fatalf("Could not start import workers: %v", err)
	}

	scheduler := jobs.StartJobs(app)
	defer scheduler.Stop()

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config().Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}
	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		logger.Infof("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// A running import sees the cancellation at its next row and is
	// recorded as failed.
	stopWorkers()
	pool.Wait()
	app.JobManager().Wait()

	logger.Info("Server exiting.")
}
