package main

import (
	"context"
	"docuvault/config"
	"docuvault/internal/client"
	"docuvault/internal/handler"
	"docuvault/internal/logging"
	"docuvault/internal/proxy"
	"docuvault/internal/shard"
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

// main starts the routing proxy.
func main() {
	if err := config.InitConfig(); err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg := config.AppConfig
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	topo, err := shard.FromConfig(config.TopologyConfigInstance)
	if err != nil {
		log.Fatalf("build topology: %v", err)
	}
	tokens := client.ServiceTokens(cfg.InternalTokenSecret, "proxy")
	p := proxy.New(
		shard.NewHolder(topo),
		func(ep shard.Endpoint) proxy.NodeClient {
			return client.NewHTTPNodeClient(ep.Addr, cfg.ShardRPCTimeout, tokens)
		},
		proxy.Config{CallTimeout: cfg.ShardRPCTimeout, DiscardTimeout: cfg.DiscardTimeout},
		log.WithField("module", "proxy"),
	)

	r := router.InitProxyRouter(handler.NewProxyHandler(p, cfg.MaxUploadBytes), log.WithField("module", "http"))
	srv := &http.Server{Addr: cfg.ProxyAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.ProxyAddr, "shards": topo.Len()}).Info("proxy listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("proxy stopped: %v", err)
	}
	log.Info("proxy stopped")
}
