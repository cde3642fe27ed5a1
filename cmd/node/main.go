package main

import (
	"context"
	"docuvault/config"
	"docuvault/internal/cache"
	"docuvault/internal/handler"
	"docuvault/internal/logging"
	"docuvault/internal/pool"
	"docuvault/internal/repo"
	"docuvault/internal/service"
	"docuvault/internal/storage"
	"docuvault/router"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// main starts one storage node serving shard SHARD_INDEX.
func main() {
	if err := config.InitConfig(); err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg := config.AppConfig
	log := logging.New(cfg.LogLevel, cfg.LogFormat).WithField("shard", cfg.ShardIndex)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := repo.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	store, err := storage.NewStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open blob store: %v", err)
	}
	objects, closeRepo, err := repo.NewObjectRepository(cfg, cfg.ShardIndex)
	if err != nil {
		log.Fatalf("open metadata store: %v", err)
	}
	defer closeRepo()

	workers := pool.New(pool.Config{Workers: cfg.NodeWorkers, Queue: cfg.NodeQueue}, log.WithField("module", "pool"))
	node := service.NewNode(
		service.NodeConfig{
			ShardIndex: cfg.ShardIndex,
			Layout:     cfg.NodeLayout,
			StageTTL:   cfg.StageCacheTTL,
			ReadTTL:    cfg.ReadCacheTTL,
		},
		objects,
		store,
		cache.NewObjectCache(cache.NewRedisCache(rdb)),
		workers,
		log.WithField("module", "node"),
	)

	r := router.InitNodeRouter(handler.NewNodeHandler(node), cfg.InternalTokenSecret, log.WithField("module", "http"))
	srv := &http.Server{Addr: cfg.NodeAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.NodeAddr).Info("storage node listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.NodeShutdownGrace)
		defer cancel()
		// stop taking requests first, then drain background writes and discards
		httpErr := srv.Shutdown(shutdownCtx)
		if err := node.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("background work did not drain in time")
		}
		return httpErr
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("storage node stopped: %v", err)
	}
	log.Info("storage node stopped")
}
