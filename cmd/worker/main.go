package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/broadcast-engine/internal/app"
	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/logger"
	"github.com/unclebandit/broadcast-engine/internal/queue"
	"github.com/unclebandit/broadcast-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetAppLogger().WithError(err).Fatal("❌ Invalid configuration")
	}
	log := logger.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("❌ Startup failed")
	}
	defer a.Close()

	q, err := queue.DialAMQP(cfg.AMQP.URL, log)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to RabbitMQ")
	}
	defer q.Close()

	worker := service.NewWorker(a.Dispatcher, log)
	if err := queue.StartBroadcastSendSubscriber(q, cfg.AMQP.Queue, worker.Handle, log); err != nil {
		log.WithError(err).Fatal("❌ Failed to register consumer")
	}

	log.WithField("queue", cfg.AMQP.Queue).Info("👷 Worker running, waiting for broadcasts...")
	<-ctx.Done()
	log.Info("🛑 Worker stopping")
}
