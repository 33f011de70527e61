package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/telemetry/internal/api"
	"example.com/telemetry/internal/config"
	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/events"
	"example.com/telemetry/internal/limiter"
	persistence "example.com/telemetry/internal/persistence/postgres"
	"example.com/telemetry/internal/provider"
	"example.com/telemetry/internal/scheduler"
	httptransport "example.com/telemetry/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := persistence.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	repo := persistence.NewRepository(pool)
	rateLimiter := limiter.New(cfg.RequestsPerMinute)

	var upstream scheduler.Provider
	switch cfg.ProviderMode {
	case "sample":
		upstream = provider.NewSampleClient()
	default:
		upstream = provider.NewHTTPClient(provider.Config{
			BaseURL: cfg.ProviderBaseURL,
			APIKey:  cfg.ProviderAPIKey,
			Timeout: cfg.ProviderTimeout,
		})
	}

	var publisher scheduler.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	syncer := scheduler.New(repo, upstream, rateLimiter, publisher, scheduler.Config{
		Interval:         cfg.SyncInterval,
		BatchSize:        cfg.SyncBatchSize,
		ChunkWidth:       time.Duration(cfg.ChunkDays) * 24 * time.Hour,
		MaxFetchAttempts: cfg.FetchMaxRetries,
		RetryBaseDelay:   cfg.FetchBaseDelay,
	})
	go syncer.Start(ctx)

	service := domain.NewService(repo)

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address: cfg.HTTPAddress,
	}, logger(cors(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("telemetry-sync listening on %s (provider=%s, budget=%d req/min)", cfg.HTTPAddress, cfg.ProviderMode, cfg.RequestsPerMinute)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	syncer.Wait()
}
