package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/roulette/settlement"
	"github.com/radieske/roulette-vrf-client/internal/settlement-worker/consumer"
	"github.com/radieske/roulette-vrf-client/internal/settlement-worker/producer"
	"github.com/radieske/roulette-vrf-client/internal/shared/cache"
	"github.com/radieske/roulette-vrf-client/internal/shared/chain"
	"github.com/radieske/roulette-vrf-client/internal/shared/config"
	"github.com/radieske/roulette-vrf-client/internal/shared/db"
	"github.com/radieske/roulette-vrf-client/internal/shared/kafka"
	"github.com/radieske/roulette-vrf-client/internal/shared/logger"
	"github.com/radieske/roulette-vrf-client/internal/shared/metrics"
	"github.com/radieske/roulette-vrf-client/internal/shared/pubsub"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/repo"
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

	// Postgres: journal de transições
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: portão de rate limit compartilhado + pub/sub de status
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka consumer: consome wager_placed (consumer group settlement-worker)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicWagerPlaced, "settlement-worker")
	defer reader.Close()

	// Kafka producer: publica wager_settled e, opcionalmente, envia para DLQ
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicWagerPlacedDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerPlacedDLQ)
		defer dlqWriter.Close()
	}

	m := metrics.NewRoulette(prometheus.DefaultRegisterer)

	rpcLedger, client, err := chain.Connect(cfg.Ledger, rdb, m, log)
	if err != nil {
		log.Fatal("ledger", zap.Error(err))
	}

	// Servidor HTTP para métricas Prometheus e healthcheck
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return rpcLedger.Health(ctx)
	})
	defer metricsSrv.Close()
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	w := &consumer.Worker{
		Log:         log,
		Reader:      reader,
		Proto:       client,
		Journal:     repo.NewPostgres(pg),
		Status:      pubsub.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel),
		Events:      producer.NewKafkaPublisher(settledWriter, dlqWriter),
		Metrics:     m,
		Concurrency: cfg.Ledger.SettleConcurrency,
		Orchestrator: settlement.Options{
			PollInterval: cfg.Ledger.PollInterval,
			Window:       cfg.Ledger.PollWindow,
			AutoReclaim:  cfg.Ledger.AutoReclaim,
		},
		// passada a expiração só resta reclamar; sem AutoReclaim a aposta vai para a DLQ
		MaxWait: protocol.BetTimeout + 2*cfg.Ledger.PollWindow + time.Minute,
	}

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicWagerPlaced),
		zap.String("publish", cfg.TopicWagerSettled),
		zap.Int("concurrency", cfg.Ledger.SettleConcurrency),
		zap.Bool("auto_reclaim", cfg.Ledger.AutoReclaim),
	)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("worker stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
