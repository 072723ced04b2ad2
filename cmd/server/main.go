package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realtime-voice-agent/backend/pkg/config"
	"realtime-voice-agent/backend/pkg/di"
	"realtime-voice-agent/backend/pkg/router"
)

func main() {
	// Environment and .env are read here
	cfg := config.New()

	container, err := di.New(cfg, nil)
	if err != nil {
		di.NewLogger(cfg).LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	log := container.Logger

	log.Info("Starting session broker",
		"version", router.Version,
		"env", cfg.Server.Env,
		"model", cfg.OpenAI.Model,
		"redis_quota", container.Redis != nil,
	)

	container.Health.Start()

	r := router.New(container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	r.Close()
	if err := container.Close(ctx); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}
