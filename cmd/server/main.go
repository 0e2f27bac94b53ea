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

	"coedit/internal/api"
	"coedit/internal/auth"
	"coedit/internal/collab"
	"coedit/internal/config"
	"coedit/internal/db"
	"coedit/internal/repository"
	"coedit/internal/telemetry"
)

func main() {
	log.Println("Starting coedit collaboration server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Tracing first so every startup step below is traced.
	jaegerShutdown, err := telemetry.InitJaeger("coedit", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("failed to shutdown Jaeger: %v", err)
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	sessions, err := auth.NewRedisVerifier(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer sessions.Close()
	log.Println("✓ Redis session store connected")

	docRepo := repository.NewDocumentRepository(database.DB)
	commentRepo := repository.NewCommentRepository(database.DB)

	// The hub owns all realtime state on a single goroutine.
	hub := collab.NewHub(docRepo, commentRepo,
		cfg.ContentDebounce, cfg.TitleDebounce, cfg.AccessCacheTTL)
	hub.Start()

	wsHandler := collab.NewWebSocketHandler(hub, sessions)

	handler := api.NewHandler(docRepo, commentRepo, sessions, wsHandler, hub)
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("✓ Server listening on http://%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	// Stop the event loop after the HTTP listener so no new connections race
	// shutdown; this also flushes pending debounced writes.
	hub.Shutdown()

	log.Println("✓ Server shutdown complete")
}
