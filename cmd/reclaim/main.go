package main

import (
	"context"
	"docuvault/config"
	"docuvault/internal/logging"
	"docuvault/internal/mq"
	"docuvault/internal/task"
	"flag"
	"time"

	"github.com/sirupsen/logrus"
)

// main enqueues a reclamation for one owner, the same message the
// application publishes after a document create or update.
func main() {
	owner := flag.Uint64("owner", 0, "owner_user_id whose uncommitted objects should be reclaimed")
	flag.Parse()

	if err := config.InitConfig(); err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	cfg := config.AppConfig
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	publisher, err := mq.GetPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("connect rabbitmq: %v", err)
	}
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := task.DispatchReclaim(ctx, publisher, *owner); err != nil {
		log.Fatalf("dispatch reclaim: %v", err)
	}
	log.WithField("owner_user_id", *owner).Info("reclaim dispatched")
}
