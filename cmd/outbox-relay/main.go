package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/outbox-relay/publisher"
	"github.com/radieske/prediction-market-poc/internal/outbox-relay/relay"
	"github.com/radieske/prediction-market-poc/internal/shared/config"
	"github.com/radieske/prediction-market-poc/internal/shared/db"
	"github.com/radieske/prediction-market-poc/internal/shared/kafka"
	"github.com/radieske/prediction-market-poc/internal/shared/logger"
	"github.com/radieske/prediction-market-poc/internal/shared/metrics"
	"github.com/radieske/prediction-market-poc/internal/shared/outbox"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: mesma base do market-service, lendo a tabela outbox_messages
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	gdb, err := db.OpenGorm(pg, log)
	if err != nil {
		log.Fatal("gorm open", zap.Error(err))
	}
	if err := gdb.AutoMigrate(&outbox.Message{}); err != nil {
		log.Fatal("migrate outbox", zap.Error(err))
	}

	// Kafka producer: tópico vem de cada mensagem; DLQ para as que esgotaram tentativas
	pub, err := publisher.NewKafkaPublisher(kafka.Brokers(cfg.KafkaBrokers), cfg.Env, log,
		cfg.TopicMarketEvents, cfg.TopicMarketEventsDLQ)
	if err != nil {
		log.Fatal("kafka publisher", zap.Error(err))
	}
	defer pub.Close()

	published := prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_messages_published_total", Help: "mensagens publicadas no Kafka"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_publish_failures_total", Help: "falhas de publicação (serão retentadas)"})
	dead := prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_messages_dead_total", Help: "mensagens enviadas ao DLQ"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "outbox_batch_size", Help: "mensagens por lote", Buckets: []float64{1, 5, 10, 25, 50, 100}})
	prometheus.MustRegister(published, failed, dead, batch)

	proc := &relay.Processor{
		Log:         log,
		Repo:        outbox.NewRepo(gdb),
		Pub:         pub,
		DLQTopic:    cfg.TopicMarketEventsDLQ,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		Interval:    cfg.OutboxPollInterval,
		OnPublished: func() { published.Inc() },
		OnFailed:    func() { failed.Inc() },
		OnDead:      func() { dead.Inc() },
		OnBatch:     func(n int) { batch.Observe(float64(n)) },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := db.Ping(ctx, gdb); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		return nil
	}, func(err error) { log.Error("metrics server", zap.Error(err)) })

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("outbox-relay started",
		zap.String("topic", cfg.TopicMarketEvents),
		zap.String("dlq", cfg.TopicMarketEventsDLQ),
		zap.Duration("interval", cfg.OutboxPollInterval),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("relay stopped with error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("outbox-relay stopped")
}
