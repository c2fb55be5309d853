package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/unclebandit/broadcast-engine/internal/app"
	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/logger"
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

	cronLog := cron.PrintfLogger(log)
	c := cron.New(cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	_, err = c.AddFunc(cfg.App.SweepSchedule, func() {
		result, err := a.Sweeper.ProcessDue(ctx)
		if err != nil {
			log.WithError(err).Error("❌ [SWEEP] Sweep failed")
			return
		}
		log.WithField("processed", result.ProcessedCount).WithField("errors", len(result.Errors)).Debug("⏰ [SWEEP] Tick")
	})
	if err != nil {
		log.WithError(err).WithField("schedule", cfg.App.SweepSchedule).Fatal("❌ Invalid sweep schedule")
	}

	c.Start()
	log.WithField("schedule", cfg.App.SweepSchedule).Info("⏰ Scheduler running")

	<-ctx.Done()
	log.Info("🛑 Scheduler stopping, waiting for the running sweep")
	<-c.Stop().Done()
}
