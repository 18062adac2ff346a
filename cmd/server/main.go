// Command server runs the local Piper training API with simulated jobs, so
// the console and piperctl can be exercised without a GPU box.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"piper-console/pkg/devserver"
)

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", name, v, err)
		return def
	}
	return d
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("skipping .env: %v", err)
	}
	// Clients expect plain JSON numbers, not quoted decimals.
	decimal.MarshalJSONWithoutQuotes = true

	dataDir := envOr("PIPER_DATA_DIR", "piper-data")
	srv, err := devserver.New(devserver.Options{
		DataDir:       dataDir,
		StepDelay:     envDuration("PIPER_STEP_DELAY", time.Second),
		EpochDuration: envDuration("PIPER_EPOCH_DURATION", 3*time.Second),
		Logger:        log.Default(),
	})
	if err != nil {
		log.Fatalf("Failed to init server: %v", err)
	}

	port := envOr("PORT", "5000")
	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting Piper dev server on port %s (data: %s)...", port, dataDir)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	srv.Close()
}
