// Command syncd runs the background fetch loop without the query API. It is
// meant for deployments where the API and the worker scale separately.
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

	"example.com/telemetry/internal/config"
	"example.com/telemetry/internal/events"
	"example.com/telemetry/internal/limiter"
	persistence "example.com/telemetry/internal/persistence/postgres"
	"example.com/telemetry/internal/provider"
	"example.com/telemetry/internal/scheduler"
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

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("syncd metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("syncd started (provider=%s, budget=%d req/min, interval=%s)", cfg.ProviderMode, cfg.RequestsPerMinute, cfg.SyncInterval)
	go syncer.Start(ctx)

	<-stop
	log.Println("syncd shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	syncer.Wait()
}
