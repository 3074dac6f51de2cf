// Package main provides the API server entry point
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fmpfmp/mediaforge/pkg/api"
	"github.com/fmpfmp/mediaforge/pkg/auth"
	"github.com/fmpfmp/mediaforge/pkg/config"
	"github.com/fmpfmp/mediaforge/pkg/store"
)

var configPath = flag.String("config", "", "Path to config file (default: ~/.config/mediaforge/config.toml)")

func main() {
	flag.Parse()

	cfg, found, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if !found {
		log.Println("No config file found, using defaults")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Setup error: %v", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Store error: %v", err)
	}
	defer s.Close()

	var serverOpts []api.ServerOption
	if cfg.Tools.FFmpegPath != "" {
		serverOpts = append(serverOpts, api.WithFFmpegPath(cfg.Tools.FFmpegPath))
	}
	if cfg.Tools.FFprobePath != "" {
		serverOpts = append(serverOpts, api.WithFFprobePath(cfg.Tools.FFprobePath))
	}
	if cfg.Staging.WorkDir != "" {
		serverOpts = append(serverOpts, api.WithWorkDir(cfg.Staging.WorkDir))
	}

	server := api.NewServer(s, serverOpts...)
	defer server.Close()

	handler := withAuth(cfg, server.Routes())

	httpServer := &http.Server{
		Addr:         cfg.Server.Bind,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Bind)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		log.Printf("Opening job store at %s", cfg.Store.Path)
		return store.OpenSQLite(cfg.Store.Path)
	default:
		log.Println("Using in-memory job store")
		return store.NewMemoryStore(), nil
	}
}

// withAuth wraps the API routes in the authentication middleware. The
// health endpoint stays open for probes.
func withAuth(cfg *config.Config, routes http.Handler) http.Handler {
	jwtManager := auth.NewJWTManager(cfg.Server.JWTSecret, time.Duration(cfg.Server.TokenTTLMinutes)*time.Minute)
	apiKeyManager := auth.NewAPIKeyManager()
	apiKeyManager.Seed("configured", cfg.Server.APIKeys)

	protected := auth.NewMiddleware(jwtManager, apiKeyManager, cfg.Server.AuthOptional).Handler(routes)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			routes.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}
