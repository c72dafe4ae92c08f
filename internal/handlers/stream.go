package handlers

import (
	"context"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/queue"
)

// JobFeedHandler pushes job status changes over a WebSocket until the job finishes
type JobFeedHandler struct {
	workerPool *queue.WorkerPool
	interval   time.Duration
	logger     zerolog.Logger
}

// NewJobFeedHandler creates a new job feed handler
func NewJobFeedHandler(workerPool *queue.WorkerPool, logger zerolog.Logger) *JobFeedHandler {
	return &JobFeedHandler{
		workerPool: workerPool,
		interval:   500 * time.Millisecond,
		logger:     logger,
	}
}

// Upgrade rejects plain HTTP requests on WebSocket routes
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle processes WebSocket connections
func (h *JobFeedHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	id := c.Params("id")
	job, ok := h.workerPool.Get(id)
	if !ok {
		c.WriteJSON(fiber.Map{"error": "Job not found", "code": "ERR_JOB_NOT_FOUND"})
		return
	}

	// The client never sends anything; a read error means it went away
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := feedJob(ctx, job, h.interval, func(s queue.Status) error { return c.WriteJSON(s) }); err != nil {
		h.logger.Debug().Err(err).Str("job_id", id).Msg("Job feed closed")
	}
}

// feedJob sends the job status on every change and returns after sending a terminal status
func feedJob(ctx context.Context, job *queue.Job, interval time.Duration, send func(queue.Status) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *queue.Status
	for {
		s := job.Snapshot()
		if last == nil || changed(*last, s) {
			if err := send(s); err != nil {
				return err
			}
			last = &s
		}
		if s.Done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func changed(a, b queue.Status) bool {
	return a.Status != b.Status ||
		a.Error != b.Error ||
		a.GDriveURL != b.GDriveURL ||
		!slices.Equal(a.Outputs, b.Outputs) ||
		!slices.Equal(a.Warnings, b.Warnings)
}
