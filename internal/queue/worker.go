package queue

import (
	"context"
	"errors"
	"time"

	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
)

// Handler processes one delivered unit of work. Returning nil acknowledges
// the message; returning an error leaves it unacked so the visibility
// timeout redelivers it (bounded by the queue's max-receive cap).
type Handler func(ctx context.Context, delivery *interfaces.QueueDelivery) error

// WorkerPool runs a bounded pool of polling workers over one queue,
// dispatching messages to handlers registered by unit kind.
type WorkerPool struct {
	queue        interfaces.Queue
	name         string
	concurrency  int
	pollInterval time.Duration
	handlers     map[string]Handler
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool over a queue
func NewWorkerPool(q interfaces.Queue, name string, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	return &WorkerPool{
		queue:        q,
		name:         name,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		handlers:     make(map[string]Handler),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a unit kind handler
func (wp *WorkerPool) RegisterHandler(unitKind string, handler Handler) {
	wp.handlers[unitKind] = handler
	wp.logger.Debug().
		Str("queue", wp.name).
		Str("unit_kind", unitKind).
		Msg("Handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Str("queue", wp.name).
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Str("queue", wp.name).Msg("Stopping worker pool")
	wp.cancel()
}

// worker is the main polling loop
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to reduce database contention
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Str("queue", wp.name).
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Str("queue", wp.name).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil {
				if !errors.Is(err, models.ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Str("queue", wp.name).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
			}
		}
	}
}

// processMessage receives and dispatches a single message
func (wp *WorkerPool) processMessage(workerID int) error {
	delivery, err := wp.queue.Receive(wp.ctx)
	if err != nil {
		return err
	}

	msg := delivery.Message

	handler, exists := wp.handlers[msg.UnitKind]
	if !exists {
		wp.logger.Error().
			Str("queue", wp.name).
			Str("unit_kind", msg.UnitKind).
			Str("unit_id", msg.UnitID).
			Msg("No handler registered for unit kind")
		// Unroutable message: ack so it does not loop forever
		if ackErr := delivery.Ack(); ackErr != nil {
			wp.logger.Warn().Err(ackErr).Msg("Failed to ack unroutable message")
		}
		return nil
	}

	wp.logger.Debug().
		Str("queue", wp.name).
		Str("scan_id", msg.ScanID).
		Str("unit_id", msg.UnitID).
		Int("attempt", msg.AttemptCount).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := handler(wp.ctx, delivery)
	duration := time.Since(startTime)

	if handlerErr != nil {
		// Leave the message unacked; redelivery happens after the
		// visibility timeout, capped by max-receive
		wp.logger.Error().
			Err(handlerErr).
			Str("queue", wp.name).
			Str("unit_id", msg.UnitID).
			Int("attempt", msg.AttemptCount).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Handler failed, message will be redelivered")
		return handlerErr
	}

	// Ack only after the handler has persisted its results
	if err := delivery.Ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("queue", wp.name).
			Str("unit_id", msg.UnitID).
			Msg("Failed to ack message after successful processing")
		return err
	}

	wp.logger.Debug().
		Str("queue", wp.name).
		Str("unit_id", msg.UnitID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Unit processed")

	return nil
}
