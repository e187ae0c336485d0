package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wpchill/sessypress/internal/api"
	"github.com/wpchill/sessypress/internal/awsip"
	"github.com/wpchill/sessypress/internal/config"
	"github.com/wpchill/sessypress/internal/pkg/ttlcache"
	"github.com/wpchill/sessypress/internal/ratelimit"
	"github.com/wpchill/sessypress/internal/repository/postgres"
	"github.com/wpchill/sessypress/internal/sns"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Webhook.SecretKey == "" {
		log.Fatal("webhook secret_key (or SNS_SECRET_KEY) is required")
	}

	db, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	limiter, err := ratelimit.NewLimiterFromURL(cfg.Redis.URL, ratelimit.Limits{
		PerMinute: cfg.Webhook.MaxRequestsPerMinute,
		PerHour:   cfg.Webhook.MaxRequestsPerHour,
	})
	if err != nil {
		log.Fatalf("rate limiter: %v", err)
	}

	cache, err := ttlcache.NewRedisCacheFromURL(cfg.Redis.URL, "sessypress")
	if err != nil {
		log.Fatalf("redis cache: %v", err)
	}

	httpClient := &http.Client{Timeout: cfg.Webhook.HTTPTimeout()}
	validator := awsip.NewValidator(cache, httpClient)
	verifier := sns.NewVerifier(cache, httpClient)
	repo := postgres.NewEventRepo(db)

	handlers := api.NewHandlers(cfg.Webhook, limiter, validator, verifier, repo, repo, db, httpClient)
	router := api.SetupRoutes(handlers, cfg)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("sessypress listening on %s (webhook /webhook/%s)", srv.Addr, cfg.Webhook.EndpointSlug)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
