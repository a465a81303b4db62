package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/talentdesk/talentdesk/internal/jobs"
)

const (
	// QueueDefault is the queue used when none is configured.
	QueueDefault = "notifications"
	// TaskTypeNotify is the task type for user notifications.
	TaskTypeNotify = "notify:send"
)

// NotifyPayload describes one notification for one recipient.
type NotifyPayload struct {
	RecipientID int64          `json:"recipient_id"`
	EventKind   string         `json:"event_kind"`
	Data        map[string]any `json:"data,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewNotifyTask constructs an Asynq task.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	if payload.RecipientID <= 0 || payload.EventKind == "" {
		return nil, fmt.Errorf("jobs: notify task requires recipient and event kind")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// Deliverer hands a notification to its channel.
type Deliverer interface {
	Deliver(ctx context.Context, n NotifyPayload) error
}

// NotifyHandler processes TaskTypeNotify tasks.
type NotifyHandler struct {
	deliverer Deliverer
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewNotifyHandler constructs the handler.
func NewNotifyHandler(deliverer Deliverer, metrics *jobmetrics.Metrics, logger *slog.Logger) *NotifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyHandler{deliverer: deliverer, metrics: metrics, logger: logger}
}

// ProcessTask delivers the notification. Malformed payloads are not retried.
func (h *NotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("notify payload", slog.Any("error", err))
		return fmt.Errorf("jobs: decode notify payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := h.metrics.Track(TaskTypeNotify)
	err := h.deliverer.Deliver(ctx, payload)
	if err != nil {
		h.logger.Warn("notify deliver",
			slog.Int64("recipient_id", payload.RecipientID),
			slog.String("event_kind", payload.EventKind),
			slog.String("trace_id", payload.TraceID),
			slog.Any("error", err))
	}
	return tracker.End(err)
}
