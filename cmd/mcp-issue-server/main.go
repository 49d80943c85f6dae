package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cexll/issuedesk/internal/config"
	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/tracker"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	_ = godotenv.Load()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[MCP Issue Server] Invalid configuration: %v", err)
	}
	backend, err := cfg.NewTransport()
	if err != nil {
		log.Fatalf("[MCP Issue Server] Failed to initialize transport: %v", err)
	}

	log.Println("[MCP Issue Server] Starting issue tracker MCP Server v1.0.0")
	log.Printf("[MCP Issue Server] Transport: %s", cfg.Transport)

	// 2. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[MCP Issue Server] Received shutdown signal")
		cancel()
	}()

	// 3. Warm the caches
	issueTracker := tracker.New(backend,
		tracker.WithMapper(dto.Mapper{Database: cfg.ActiveDatabase}),
		tracker.WithQueueSize(cfg.LoopQueueSize),
	)
	defer issueTracker.Close(context.Background())
	if err := issueTracker.Refresh(ctx); err != nil {
		log.Printf("[MCP Issue Server] Warning: initial refresh failed: %v", err)
	}
	if err := issueTracker.RefreshTags(ctx); err != nil {
		log.Printf("[MCP Issue Server] Warning: initial tag refresh failed: %v", err)
	}

	// 4. Create MCP server
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "issuedesk-server",
		Version: "v1.0.0",
	}, nil)
	NewHandlers(issueTracker).Register(server)

	// 5. Start server with stdio transport
	log.Println("[MCP Issue Server] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Printf("[MCP Issue Server] Server error: %v", err)
		return
	}
	log.Println("[MCP Issue Server] Server stopped gracefully")
}
