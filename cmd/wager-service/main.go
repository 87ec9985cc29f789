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
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/shared/cache"
	"github.com/radieske/roulette-vrf-client/internal/shared/chain"
	"github.com/radieske/roulette-vrf-client/internal/shared/config"
	"github.com/radieske/roulette-vrf-client/internal/shared/db"
	"github.com/radieske/roulette-vrf-client/internal/shared/kafka"
	"github.com/radieske/roulette-vrf-client/internal/shared/logger"
	"github.com/radieske/roulette-vrf-client/internal/shared/metrics"
	"github.com/radieske/roulette-vrf-client/internal/shared/pubsub"
	whttp "github.com/radieske/roulette-vrf-client/internal/wager-service/http"
	kpub "github.com/radieske/roulette-vrf-client/internal/wager-service/producer"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/repo"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	// Postgres: journal de apostas
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis: portão de rate limit compartilhado + pub/sub de status
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic wager_placed)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerPlaced)
	defer writer.Close()

	m := metrics.NewRoulette(prometheus.DefaultRegisterer)

	rpcLedger, client, err := chain.Connect(cfg.Ledger, rdb, m, log)
	if err != nil {
		log.Fatal("ledger", zap.Error(err))
	}
	log.Info("ledger ready",
		zap.String("rpc", cfg.Ledger.RPCURL),
		zap.String("payer", client.Payer().String()),
		zap.String("program", client.Config().Program.String()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// WebSocket: status das apostas vindos do settlement-worker via Redis
	hub := ws.NewHub(func(*http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	api := whttp.NewServer(log, client, repo.NewPostgres(pg), kpub.NewKafkaPublisher(writer),
		pubsub.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel), m).
		WithWebSocket(hub.HandleWS)
	api.PollInterval = cfg.Ledger.PollInterval

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return rpcLedger.Health(ctx)
	})
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = apiSrv.Shutdown(sctx)
		_ = metricsSrv.Shutdown(sctx)
	}()

	log.Info("wager-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api", zap.Error(err))
	}
	log.Info("wager-service stopped")
}
