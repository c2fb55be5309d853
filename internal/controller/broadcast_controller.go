// internal/controller/broadcast_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/broadcast-engine/internal/errors"
	"github.com/unclebandit/broadcast-engine/internal/model"
	"github.com/unclebandit/broadcast-engine/internal/service"
)

// BroadcastManager is the authoring side of the broadcast service.
type BroadcastManager interface {
	CreateBroadcast(ctx context.Context, req model.CreateBroadcastRequest) (*model.Broadcast, error)
	ListBroadcasts(ctx context.Context, page, pageSize int, status string) ([]model.Broadcast, map[string]int, error)
	GetBroadcastDetails(ctx context.Context, id string) (*service.BroadcastDetails, error)
	ListDeliveries(ctx context.Context, id string) ([]*model.Delivery, error)
	Schedule(ctx context.Context, id string, at time.Time) (*model.Broadcast, error)
	Unschedule(ctx context.Context, id string) (*model.Broadcast, error)
	Enqueue(ctx context.Context, id string) error
}

type DueProcessor interface {
	ProcessDue(ctx context.Context) (*service.SweepResult, error)
}

type BroadcastController struct {
	Broadcasts BroadcastManager
	Sender     service.Sender
	Sweeper    DueProcessor
	Log        *logrus.Logger
}

// Routes mounts the admin endpoints.
func (c *BroadcastController) Routes(r chi.Router) {
	r.Post("/broadcasts", c.CreateBroadcast)
	r.Get("/broadcasts", c.ListBroadcasts)
	r.Post("/broadcasts/process-due", c.ProcessDue)
	r.Get("/broadcasts/{id}", c.GetBroadcastDetails)
	r.Get("/broadcasts/{id}/deliveries", c.ListDeliveries)
	r.Post("/broadcasts/{id}/schedule", c.Schedule)
	r.Post("/broadcasts/{id}/unschedule", c.Unschedule)
	r.Post("/broadcasts/{id}/send", c.SendBroadcast)
	r.Post("/broadcasts/{id}/enqueue", c.EnqueueBroadcast)
}

func (c *BroadcastController) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var body model.CreateBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	b, err := c.Broadcasts.CreateBroadcast(r.Context(), body)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.Log.WithField("broadcastId", b.ID).Info("📝 [API] Broadcast created")
	writeJSON(w, http.StatusCreated, b)
}

func (c *BroadcastController) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	broadcasts, pagination, err := c.Broadcasts.ListBroadcasts(r.Context(), page, pageSize, status)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       broadcasts,
		"pagination": pagination,
	})
}

func (c *BroadcastController) GetBroadcastDetails(w http.ResponseWriter, r *http.Request) {
	details, err := c.Broadcasts.GetBroadcastDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *BroadcastController) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := c.Broadcasts.ListDeliveries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": deliveries})
}

func (c *BroadcastController) Schedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ScheduledAt == nil {
		http.Error(w, "scheduled_at is required", http.StatusBadRequest)
		return
	}

	b, err := c.Broadcasts.Schedule(r.Context(), chi.URLParam(r, "id"), *body.ScheduledAt)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (c *BroadcastController) Unschedule(w http.ResponseWriter, r *http.Request) {
	b, err := c.Broadcasts.Unschedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type sendResponse struct {
	Success bool         `json:"success"`
	Stats   *model.Stats `json:"stats,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// SendBroadcast runs the dispatch pass inline. The pass is detached from the
// request so a dropped client does not fail the remaining recipients.
func (c *BroadcastController) SendBroadcast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stats, err := c.Sender.Send(context.WithoutCancel(r.Context()), id)
	if err != nil {
		c.Log.WithError(err).WithField("broadcastId", id).Warn("📤 [API] Send failed")
		writeJSON(w, appErrors.HTTPStatus(err), sendResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Success: true, Stats: stats})
}

func (c *BroadcastController) EnqueueBroadcast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.Broadcasts.Enqueue(r.Context(), id); err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"broadcast_id": id,
		"queued":       true,
	})
}

// ProcessDue is the trigger an external cron hits when the in-process
// scheduler is disabled.
func (c *BroadcastController) ProcessDue(w http.ResponseWriter, r *http.Request) {
	result, err := c.Sweeper.ProcessDue(context.WithoutCancel(r.Context()))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *BroadcastController) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := appErrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		c.Log.WithError(err).WithField("path", r.URL.Path).Error("❌ [API] Request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
