package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cexll/issuedesk/internal/config"
	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/tracker"
	"github.com/cexll/issuedesk/internal/transport"
	"github.com/cexll/issuedesk/internal/web"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

var (
	loadDotEnv         = godotenv.Load
	newTransport       = func(cfg *config.Config) (transport.Transport, error) { return cfg.NewTransport() }
	newWebHandler      = web.NewHandler
	defaultListenServe = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Printf("Starting issuedesk server...")
	log.Printf("Port: %d", cfg.Port)
	log.Printf("Transport: %s", cfg.Transport)
	switch cfg.Transport {
	case "github":
		log.Printf("GitHub repository: %s/%s", cfg.GitHubOwner, cfg.GitHubRepo)
	default:
		log.Printf("API base: %s", cfg.APIBaseURL)
	}
	if cfg.ActiveDatabase != "" {
		log.Printf("Active database: %s", cfg.ActiveDatabase)
	}

	backend, err := newTransport(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}

	// Caches and the mutation loop
	issueTracker := tracker.New(backend,
		tracker.WithMapper(dto.Mapper{Database: cfg.ActiveDatabase}),
		tracker.WithQueueSize(cfg.LoopQueueSize),
	)
	defer issueTracker.Close(context.WithoutCancel(ctx))

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	refreshAll(refreshCtx, issueTracker)
	if cfg.RefreshInterval > 0 {
		log.Printf("Refreshing every %s", cfg.RefreshInterval)
		go refreshLoop(refreshCtx, issueTracker, cfg.RefreshInterval)
	}

	// Initialize web UI handler
	webHandler, err := newWebHandler(issueTracker)
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	// Setup router
	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Service info
	r.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"service":"issuedesk","status":"running","transport":"%s","issues":%d}`,
			cfg.Transport, len(issueTracker.Issues().Issues))
	}).Methods("GET")

	// Board and API
	webHandler.RegisterRoutes(r)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Board: http://localhost%s/", addr)
	log.Printf("API: http://localhost%s/api/issues", addr)
	log.Printf("Health check: http://localhost%s/health", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// refreshAll loads issues and the tag catalog. Failures are logged; the
// board starts empty and the next refresh retries.
func refreshAll(ctx context.Context, t *tracker.Tracker) {
	if err := t.Refresh(ctx); err != nil && !errors.Is(err, tracker.ErrRefreshInFlight) {
		log.Printf("Warning: issue refresh failed: %v", err)
	}
	if err := t.RefreshTags(ctx); err != nil && !errors.Is(err, tracker.ErrRefreshInFlight) {
		log.Printf("Warning: tag refresh failed: %v", err)
	}
}

func refreshLoop(ctx context.Context, t *tracker.Tracker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshAll(ctx, t)
		}
	}
}
