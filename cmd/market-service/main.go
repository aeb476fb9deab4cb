package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mcache "github.com/radieske/prediction-market-poc/internal/market-service/cache"
	"github.com/radieske/prediction-market-poc/internal/market-service/auth"
	"github.com/radieske/prediction-market-poc/internal/market-service/betting"
	"github.com/radieske/prediction-market-poc/internal/market-service/catalog"
	httpapi "github.com/radieske/prediction-market-poc/internal/market-service/http"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/market-service/settlement"
	"github.com/radieske/prediction-market-poc/internal/market-service/wallet"
	"github.com/radieske/prediction-market-poc/internal/market-service/ws"
	sharedcache "github.com/radieske/prediction-market-poc/internal/shared/cache"
	"github.com/radieske/prediction-market-poc/internal/shared/config"
	"github.com/radieske/prediction-market-poc/internal/shared/db"
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

	if cfg.SessionSecret == "" {
		log.Fatal("SESSION_SECRET is required outside local/test", zap.String("env", cfg.Env))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres (lib/pq) + gorm por cima do mesmo pool
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	gdb, err := db.OpenGorm(pg, log)
	if err != nil {
		log.Fatal("gorm open", zap.Error(err))
	}

	store := repo.NewStore(gdb)
	if err := store.Migrate(ctx, &outbox.Message{}); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Redis: cache de leitura + pub/sub do WS
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	eventCache := mcache.New(rdb, cfg.EventCacheTTL, log)

	// Métricas Prometheus
	httpReqs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_http_requests_total", Help: "requisições por rota e status"}, []string{"method", "route", "status"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "market_http_request_duration_seconds", Help: "latência por rota", Buckets: prometheus.DefBuckets}, []string{"method", "route"})
	betsPlaced := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_bets_placed_total", Help: "apostas aceitas"})
	stakeTotal := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_stake_amount_total", Help: "soma dos valores apostados"})
	betsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_bets_rejected_total", Help: "apostas recusadas por motivo"}, []string{"reason"})
	resolved := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_events_resolved_total", Help: "eventos resolvidos"})
	settledBets := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_bets_settled_total", Help: "apostas liquidadas"})
	payoutTotal := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_payout_amount_total", Help: "soma dos prêmios pagos"})
	resolveLatency := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "market_resolve_duration_seconds", Help: "duração da liquidação", Buckets: prometheus.DefBuckets})
	resolveErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "market_resolve_errors_total", Help: "falhas de liquidação por motivo"}, []string{"reason"})
	wsDelivered := prometheus.NewCounter(prometheus.CounterOpts{Name: "market_ws_messages_delivered_total", Help: "mensagens entregues a clientes WS"})
	prometheus.MustRegister(httpReqs, httpLatency, betsPlaced, stakeTotal, betsRejected, resolved, settledBets, payoutTotal, resolveLatency, resolveErrors, wsDelivered)

	// Domínio
	catalogSvc := catalog.NewService(store, log, cfg.TopicMarketEvents, eventCache)
	if cfg.SeedEvents {
		if _, err := catalogSvc.Seed(ctx); err != nil {
			log.Fatal("seed events", zap.Error(err))
		}
	}

	placer := betting.NewPlacer(store, log, cfg.TopicMarketEvents)
	placer.OnPlaced = func(stake decimal.Decimal) {
		betsPlaced.Inc()
		stakeTotal.Add(stake.InexactFloat64())
	}
	placer.OnRejected = func(reason string) { betsRejected.WithLabelValues(reason).Inc() }

	engine := settlement.NewEngine(store, log, cfg.TopicMarketEvents)
	engine.OnResolved = func(bets int, payout decimal.Decimal, took time.Duration) {
		resolved.Inc()
		settledBets.Add(float64(bets))
		payoutTotal.Add(payout.InexactFloat64())
		resolveLatency.Observe(took.Seconds())
	}
	engine.OnError = func(reason string) { resolveErrors.WithLabelValues(reason).Inc() }

	walletSvc := wallet.NewService(store, log, cfg.StartingBalance)

	// WebSocket: hub local alimentado pelo canal Redis
	hub := ws.NewHub(func(r *http.Request) bool { return true }, log)
	hub.OnBroadcast = func(delivered int) { wsDelivered.Add(float64(delivered)) }
	if err := ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log); err != nil {
		log.Fatal("redis subscribe", zap.Error(err))
	}

	api := httpapi.NewServer(httpapi.Deps{
		Log:      log,
		Auth:     auth.NewVerifier(cfg.SessionSecret, cfg.AllowedEmailDomain, cfg.AdminEmails),
		Catalog:  catalogSvc,
		Placer:   placer,
		Engine:   engine,
		Wallet:   walletSvc,
		Cache:    eventCache,
		WS:       http.HandlerFunc(hub.HandleWS),
		BetStake: cfg.BetStake,
		Observe: func(method, route string, status int, took time.Duration) {
			httpReqs.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
			httpLatency.WithLabelValues(method, route).Observe(took.Seconds())
		},
	})

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := db.Ping(ctx, gdb); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}, func(err error) { log.Error("metrics server", zap.Error(err)) })
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("market-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("market-service stopped")
}
