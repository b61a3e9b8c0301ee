package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-analytics/cache"
	"portfolio-analytics/config"
	"portfolio-analytics/handler"
	appLogger "portfolio-analytics/logger"
	"portfolio-analytics/middleware"
	redisClient "portfolio-analytics/redis"
	"portfolio-analytics/refdata"
	"portfolio-analytics/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize logger
	appLogger.Initialize()

	// Load configuration (fails fast on incomplete store credentials)
	cfg := config.MustLoadConfig()
	log.Info().Msg("Configuration loaded successfully")

	// Initialize Redis client and the document store on top of it
	rdb := redisClient.NewClient(cfg.Redis)
	docStore := store.NewRedis(rdb)

	// User-document cache in front of the store
	userCache := cache.NewBounded(cfg.Cache)

	// Referral reference data resolver
	referrals, err := refdata.NewResolver(rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize referral resolver")
	}

	// Create handlers with dependency injection
	clickHandler := handler.NewClickHandler(docStore, userCache, cfg)
	healthHandler := handler.NewHealthHandler(docStore, userCache)

	// Set up router
	r := mux.NewRouter()

	// Apply global middleware
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)
	r.Use(rateLimiter.Limit)

	// Register routes
	r.HandleFunc("/health", healthHandler.Check).Methods("GET")
	r.HandleFunc("/cache/metrics", healthHandler.CacheMetrics).Methods("GET")
	r.HandleFunc("/track-external", clickHandler.TrackExternal).Methods("POST", "OPTIONS")

	// Configure HTTP server
	serverAddress := fmt.Sprintf("%s:%s", cfg.WebServer.IP, cfg.WebServer.Port)
	server := &http.Server{
		Addr:         serverAddress,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.WebServer.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WebServer.WriteTimeout) * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("address", serverAddress).
			Msg("Starting server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.WebServer.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	referrals.Close()

	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Redis connection")
	}

	log.Info().Msg("Server stopped gracefully")
}
