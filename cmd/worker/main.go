package main

import (
	"context"
	"docuvault/config"
	"docuvault/internal/client"
	"docuvault/internal/logging"
	"docuvault/internal/mq"
	"docuvault/internal/reclaim"
	"docuvault/internal/repo"
	"docuvault/internal/worker"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// main starts the reclamation worker.
func main() {
	if err := config.InitConfig(); err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg := config.AppConfig
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := repo.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	shards := repo.NewShardingManager(cfg, len(config.TopologyConfigInstance.Shards), log)
	defer shards.CloseShardConnections()
	repos, err := shards.Repositories()
	if err != nil {
		log.Fatalf("open shard repositories: %v", err)
	}
	if err := shards.Ping(ctx); err != nil {
		log.Fatalf("reach shard databases: %v", err)
	}

	reclaimer := reclaim.New(
		repo.NewShardedIndex(repos),
		client.NewProxyClient(cfg.ProxyURL, cfg.ReclaimTimeout),
		reclaim.RedisLocks(rdb, cfg.ReclaimLockTTL),
		log.WithField("module", "reclaim"),
	)

	mqClient, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("connect rabbitmq: %v", err)
	}
	defer mqClient.Close()

	log.Info("reclaim worker started")
	if err := worker.RunReclaimWorker(ctx, mqClient, reclaimer, worker.OptionsFromConfig(cfg), log.WithField("module", "worker")); err != nil {
		log.Fatalf("reclaim worker stopped: %v", err)
	}
}
