// Command consumer ingests ride lifecycle and lead events published by the
// ride management service and appends them to the activity feed.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/config"
	"github.com/pwnchaurasia/WayFind-backend/internal/db"
	"github.com/pwnchaurasia/WayFind-backend/internal/logging"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/stream"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("consumer stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	pool, err := db.ConnectPostgres(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := db.ConnectRedis(cfg)
	hub := stream.NewHub(rdb, logger)
	defer func() {
		_ = hub.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	publisher := activity.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaActivityTopic)
	defer publisher.Close()

	feed := activity.NewFeed(activity.NewPostgresStore(pool), activity.FeedOptions{
		Hub:       hub,
		Publisher: publisher,
		Logger:    logger,
	})
	h := &handler{dir: ride.NewPostgresDirectory(pool), feed: feed, log: logger.Named("consumer")}

	metrics := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaLifecycleTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	logger.Info("consumer listening",
		zap.String("topic", cfg.KafkaLifecycleTopic),
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("group", cfg.KafkaGroupID),
	)

	consume(ctx, r, h, time.Second, 30*time.Second)
	_ = r.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metrics.Shutdown(shutdownCtx)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
