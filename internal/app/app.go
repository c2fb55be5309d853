// Package app wires configuration into the repositories, adapters and
// services shared by the server, worker and scheduler binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/broadcast-engine/internal/cache"
	"github.com/unclebandit/broadcast-engine/internal/channel"
	"github.com/unclebandit/broadcast-engine/internal/config"
	"github.com/unclebandit/broadcast-engine/internal/db"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/repository"
	"github.com/unclebandit/broadcast-engine/internal/service"
)

type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *sql.DB

	Broadcasts *repository.BroadcastRepository
	Deliveries *repository.DeliveryRepository
	Recipients *repository.RecipientRepository

	Channels   channel.Registry
	Dispatcher *service.Dispatcher
	Sweeper    *service.ScheduleSweeper
	Inbox      *service.InboxService

	chat    *channel.ChatAdapter
	chatIDs *cache.RedisChatIDCache
}

// New connects to Postgres, applies the schema and builds the dispatch stack.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	conn, err := db.Init(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Log:        log,
		DB:         conn,
		Broadcasts: &repository.BroadcastRepository{DB: conn},
		Deliveries: &repository.DeliveryRepository{DB: conn},
		Recipients: &repository.RecipientRepository{DB: conn},
	}

	a.chatIDs, err = cache.NewRedisChatIDCache(cfg.Redis.URL, cfg.Redis.TTL, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	// A nil *RedisChatIDCache must not reach the adapter as a non-nil interface.
	var ids channel.ChatIDCache
	if a.chatIDs != nil {
		ids = a.chatIDs
	}

	a.chat = channel.NewChatAdapter(cfg.Slack, ids, log)
	a.Channels = channel.NewRegistry(
		a.chat,
		channel.NewEmailAdapter(cfg.SMTP),
		channel.NewSMSAdapter(cfg.Twilio),
	)
	for _, ch := range model.AllChannels {
		_, ok := a.Channels.Get(ch)
		log.WithFields(logrus.Fields{"channel": ch, "configured": ok}).Info("🔌 [APP] Channel adapter")
	}

	loc, err := cfg.App.Location()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("rate limit timezone: %w", err)
	}

	a.Dispatcher = &service.Dispatcher{
		Broadcasts: a.Broadcasts,
		Resolver:   &service.RecipientResolver{Recipients: a.Recipients},
		Limiter: &service.DailyLimiter{
			Deliveries: a.Deliveries,
			Limit:      cfg.App.DailySendLimit,
			Location:   loc,
		},
		Tracker:        &service.DeliveryTracker{Deliveries: a.Deliveries, Channels: a.Channels},
		Channels:       a.Channels,
		Links:          service.Links{BaseURL: cfg.App.BaseURL},
		AdapterTimeout: cfg.App.AdapterTimeout,
		Log:            log,
	}
	a.Sweeper = &service.ScheduleSweeper{Broadcasts: a.Broadcasts, Sender: a.Dispatcher, Log: log}
	a.Inbox = &service.InboxService{BroadcastRepo: a.Broadcasts, DeliveryRepo: a.Deliveries, RecipientRepo: a.Recipients, Log: log}
	return a, nil
}

// Close waits for detached producer-channel posts, then releases connections.
func (a *App) Close() {
	if a.chat != nil {
		a.chat.Wait()
	}
	if a.chatIDs != nil {
		if err := a.chatIDs.Close(); err != nil {
			a.Log.WithError(err).Warn("⚠️ [APP] Redis close failed")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.WithError(err).Warn("⚠️ [APP] DB close failed")
		}
	}
}
