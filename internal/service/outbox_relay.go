package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/pkg/jobs"
)

type outboxReader interface {
	Pending(ctx context.Context, limit, maxAttempts int) ([]models.ScoreEvent, error)
	Backlog(ctx context.Context) (int, error)
}

// OutboxRelayConfig tunes polling and the delivery worker pool.
type OutboxRelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	MaxAttempts  int
}

// OutboxRelay redelivers score events whose inline delivery did not complete. It polls the
// outbox and hands events to a jobs.Queue keyed by event id, so an event is never in flight
// twice within this process.
type OutboxRelay struct {
	outbox   outboxReader
	notifier eventDeliverer
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      OutboxRelayConfig
	queue    *jobs.Queue

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutboxRelay constructs the relay and its worker pool.
func NewOutboxRelay(outbox outboxReader, notifier eventDeliverer, metrics *MetricsService, cfg OutboxRelayConfig, logger *zap.Logger) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	r := &OutboxRelay{outbox: outbox, notifier: notifier, metrics: metrics, logger: logger, cfg: cfg}
	// Failed jobs are not retried in memory; the next poll picks the event up again.
	r.queue = jobs.NewQueue("outbox", r.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BatchSize,
		MaxRetries: 0,
		Logger:     logger,
		OnExhausted: func(job jobs.Job, err error) {
			r.metrics.RecordNotifierFailure("relay")
		},
	})
	return r
}

// Start launches the worker pool and the polling loop. It returns immediately.
func (r *OutboxRelay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.queue.Start(ctx)

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		r.Poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Poll(ctx)
			}
		}
	}()
}

// Stop cancels polling and waits for in-flight deliveries to finish.
func (r *OutboxRelay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.queue.Stop()
}

// Poll reads one batch of pending events and enqueues them. It returns how many were enqueued.
func (r *OutboxRelay) Poll(ctx context.Context) int {
	if backlog, err := r.outbox.Backlog(ctx); err != nil {
		r.logger.Sugar().Warnw("outbox backlog read failed", "error", err)
	} else {
		r.metrics.SetOutboxBacklog(backlog)
	}

	events, err := r.outbox.Pending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		r.logger.Sugar().Warnw("outbox poll failed", "error", err)
		return 0
	}
	enqueued := 0
	for _, event := range events {
		err := r.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: string(event.Kind), Payload: event, Attempt: event.Attempts})
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, jobs.ErrDuplicate):
			continue
		case errors.Is(err, jobs.ErrQueueFull):
			return enqueued
		default:
			r.logger.Sugar().Warnw("outbox enqueue failed", "event_id", event.ID, "error", err)
			return enqueued
		}
	}
	return enqueued
}

func (r *OutboxRelay) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.ScoreEvent)
	if !ok {
		return errors.New("outbox job carries no score event")
	}
	if err := r.notifier.Deliver(ctx, event); err != nil {
		attempt := event.Attempts + 1
		r.logger.Error("score event redelivery failed",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt >= r.cfg.MaxAttempts {
			r.deadLetter(event, attempt, err)
		}
		return err
	}
	return nil
}

// deadLetter reports an event that Pending will no longer return. It runs once per event,
// on the attempt that reaches the limit.
func (r *OutboxRelay) deadLetter(event models.ScoreEvent, attempts int, cause error) {
	r.metrics.RecordOutboxDeadLetter()
	r.logger.Error("score event dead-lettered, notification not delivered",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("student_id", event.StudentID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
}

// Pending reports events currently held by the worker pool.
func (r *OutboxRelay) Pending() int {
	return r.queue.Pending()
}
