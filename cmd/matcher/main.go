package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetmates/matcher/internal/matcher"
	"github.com/meetmates/matcher/internal/messaging"
	"github.com/meetmates/matcher/internal/metrics"
	"github.com/meetmates/matcher/internal/profile"
)

func main() {
	log.Println("Starting meetmates matcher...")

	config := matcher.DefaultConfig()
	if v := os.Getenv("RANK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Workers = n
		}
	}
	if v := os.Getenv("RANK_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Limit = n
		}
	}
	if v := os.Getenv("MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			config.MinScore = f
		}
	}
	if v := os.Getenv("PROFILE_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.MaxProfileAge = d
		}
	}

	metricsAddr := ":9102"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- PostgreSQL (optional) ---
	var store *profile.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		store, err = profile.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open profile database: %v", err)
		}
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "meetmates-matcher"
	config.QueueGroup = natsConfig.QueueGroup

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	var svc *matcher.Service
	if store != nil {
		svc = matcher.NewService(rdb, natsClient, store, config)

		warmCtx, warmCancel := context.WithTimeout(context.Background(), time.Minute)
		if _, err := svc.Warm(warmCtx, store); err != nil {
			log.Printf("warm-up failed, continuing with current pool: %v", err)
		}
		warmCancel()
	} else {
		svc = matcher.NewService(rdb, natsClient, nil, config)
	}

	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start matcher service: %v", err)
	}

	// --- Metrics ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	log.Printf("meetmates matcher running")
	log.Printf("  redis_addr:   %s", redisAddr)
	log.Printf("  nats_url:     %s", natsConfig.URL)
	log.Printf("  metrics_addr: %s", metricsAddr)
	log.Printf("  database:     %t", store != nil)
	log.Printf("  workers=%d min_score=%.2f limit=%d max_profile_age=%s",
		config.Workers, config.MinScore, config.Limit, config.MaxProfileAge)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	svc.Stop()
	natsClient.Close()
	if store != nil {
		store.Close()
	}
	rdb.Close()
}
