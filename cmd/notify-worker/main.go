package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	mcache "github.com/radieske/prediction-market-poc/internal/market-service/cache"
	"github.com/radieske/prediction-market-poc/internal/notify-worker/consumer"
	"github.com/radieske/prediction-market-poc/internal/notify-worker/pubsub"
	sharedcache "github.com/radieske/prediction-market-poc/internal/shared/cache"
	"github.com/radieske/prediction-market-poc/internal/shared/config"
	"github.com/radieske/prediction-market-poc/internal/shared/kafka"
	"github.com/radieske/prediction-market-poc/internal/shared/logger"
	"github.com/radieske/prediction-market-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumer group próprio: cada mudança do mercado vira um update no canal Redis
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMarketEvents, "notify-worker")
	defer reader.Close()

	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketEventsDLQ)
	defer dlq.Close()

	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notify_messages_consumed_total", Help: "mensagens consumidas por tipo"}, []string{"type"})
	broadcast := prometheus.NewCounter(prometheus.CounterOpts{Name: "notify_broadcasts_total", Help: "updates publicados no Redis"})
	dlqSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "notify_dlq_total", Help: "mensagens inválidas enviadas ao DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notify_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, broadcast, dlqSent, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		DLQ:         dlq,
		Pub:         pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		Cache:       mcache.New(redisClient, cfg.EventCacheTTL, log),
		OnConsumed:  func(t string) { consumed.WithLabelValues(t).Inc() },
		OnBroadcast: func() { broadcast.Inc() },
		OnDLQ:       func() { dlqSent.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}, func(err error) { log.Error("metrics server", zap.Error(err)) })

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("notify-worker started", zap.String("channel", cfg.RedisPubSubChannel))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("notify-worker stopped")
}
