package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Worker turns queued broadcast ids into dispatch passes.
type Worker struct {
	Sender Sender
	Log    *logrus.Logger
}

// Constructor
func NewWorker(sender Sender, log *logrus.Logger) *Worker {
	return &Worker{
		Sender: sender,
		Log:    log,
	}
}

// Handle sends one broadcast. It matches queue.Handler.
func (w *Worker) Handle(ctx context.Context, broadcastID string) error {
	entry := w.Log.WithField("broadcastId", broadcastID)
	entry.Info("📩 [WORKER] Processing queued broadcast")

	stats, err := w.Sender.Send(ctx, broadcastID)
	if err != nil {
		entry.WithError(err).Warn("⚠️ [WORKER] Broadcast send failed")
		return err
	}
	entry.WithField("recipients", stats.TotalRecipients).Info("✅ [WORKER] Broadcast processed")
	return nil
}
