// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/broadcast-engine/internal/app"
	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/controller"
	"github.com/unclebandit/broadcast-engine/internal/handler"
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

	// Prefer RabbitMQ so a separate worker can drain sends; without it the
	// queue lives in-process and this server is its own worker.
	var q queue.Queue
	if amqpQueue, err := queue.DialAMQP(cfg.AMQP.URL, log); err == nil {
		defer amqpQueue.Close()
		q = amqpQueue
		log.Info("📨 Using RabbitMQ for queued sends")
	} else {
		log.WithError(err).Warn("⚠️ RabbitMQ unavailable, using in-memory queue")
		mem := queue.NewInMemoryQueue(log)
		worker := service.NewWorker(a.Dispatcher, log)
		if err := queue.StartBroadcastSendSubscriber(mem, cfg.AMQP.Queue, worker.Handle, log); err != nil {
			log.WithError(err).Fatal("❌ Queue subscriber failed")
		}
		defer mem.Wait()
		q = mem
	}

	broadcastService := &service.BroadcastService{
		BroadcastRepo: a.Broadcasts,
		DeliveryRepo:  a.Deliveries,
		Queue:         q,
		Topic:         cfg.AMQP.Queue,
	}

	broadcastController := &controller.BroadcastController{
		Broadcasts: broadcastService,
		Sender:     a.Dispatcher,
		Sweeper:    a.Sweeper,
		Log:        log,
	}
	inboxHandler := handler.NewInboxHandler(a.Inbox, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Broadcast routes
	broadcastController.Routes(r)
	// Recipient inbox routes
	inboxHandler.Routes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("🚀 Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ Server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ Graceful shutdown failed")
	}
}
