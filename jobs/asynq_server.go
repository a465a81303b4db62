package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/talentdesk/talentdesk/internal/platform/httpx"
	"github.com/talentdesk/talentdesk/internal/shared"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.Handler
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Queue       string
	Handlers    []TaskHandler
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if len(cfg.Handlers) == 0 {
		return nil, errors.New("worker: no task handlers")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	queue := cfg.Queue
	if queue == "" {
		queue = QueueDefault
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			cfg.Logger.Warn("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.Handle(h.Type, h.Handler)
	}
	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// ClientOptions tunes enqueued notifications.
type ClientOptions struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
	// EnqueueTimeout bounds the broker round trip made by Notify.
	EnqueueTimeout time.Duration
}

// Client submits jobs to the queue. It implements the workflow notifier.
type Client struct {
	enqueuer Enqueuer
	opts     ClientOptions
	now      func() time.Time
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt, opts ClientOptions) *Client {
	return newClient(asynq.NewClient(redisOpts), opts)
}

func newClient(enqueuer Enqueuer, opts ClientOptions) *Client {
	if opts.Queue == "" {
		opts.Queue = QueueDefault
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 2 * time.Second
	}
	return &Client{enqueuer: enqueuer, opts: opts, now: time.Now}
}

// EnqueueNotify enqueues a notify task.
func (c *Client) EnqueueNotify(ctx context.Context, payload NotifyPayload) (*asynq.TaskInfo, error) {
	task, err := NewNotifyTask(payload)
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout))
}

// Notify enqueues a notification for actorID and returns without waiting for delivery.
// The enqueue itself is capped at EnqueueTimeout so a slow broker cannot hold the caller.
func (c *Client) Notify(ctx context.Context, actorID int64, eventKind string, payload map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.EnqueueTimeout)
	defer cancel()
	trace, _ := payload["trace_id"].(string)
	_, err := c.EnqueueNotify(ctx, NotifyPayload{
		RecipientID: actorID,
		EventKind:   eventKind,
		Data:        payload,
		TraceID:     trace,
		CreatedAt:   c.now().UTC(),
	})
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.enqueuer.Close()
}

// QueueInspector reports queue depth. Satisfied by *asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for queue health and the notification inbox.
type Handler struct {
	inspector QueueInspector
	inbox     *Inbox
	queue     string
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, inbox *Inbox, queue string, logger *slog.Logger) *Handler {
	if queue == "" {
		queue = QueueDefault
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, inbox: inbox, queue: queue, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/jobs/health", h.health)
	r.Get("/notifications", h.notifications)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"queue": h.queue, "pending": 0})
		return
	}
	info, err := h.inspector.GetQueueInfo(h.queue)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	pending := 0
	queueName := h.queue
	if info != nil {
		pending = info.Pending
		queueName = info.Queue
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queue": queueName, "pending": pending})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if h.inbox == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"notifications": []NotifyPayload{}})
		return
	}
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	items, err := h.inbox.List(r.Context(), actorID, limit)
	if err != nil {
		h.logger.Error("notification inbox", slog.Any("error", err))
		httpx.RespondError(w, shared.Unavailable("notification inbox", err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}
