package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"claude-chat/internal/api"
	"claude-chat/internal/config"
	"claude-chat/internal/core"
	"claude-chat/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup structured logging
	level := slog.LevelInfo
	if config.AppConfig.LogLevel == "DEBUG" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM service (OpenRouter-backed completion streamer)
	llmService := core.NewLLMService()

	// Initialize services
	authService := core.NewAuthService(dbStore, logger)
	chatService := core.NewChatService(dbStore, llmService, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(authService, chatService, logger)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: completion streams stay open for the full generation.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give active connections (including open streams) time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exiting gracefully")
}
