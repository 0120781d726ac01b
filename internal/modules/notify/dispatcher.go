// README: Worker pool fanning notifications out to every configured sink.
package notify

import (
	"context"

	"buggy/internal/logger"
	"buggy/internal/metrics"
)

// Dispatcher manages a pool of workers for sending notifications.
type Dispatcher struct {
	size  int
	jobs  chan Message
	sinks []Notifier
	log   logger.ILogger
}

func NewDispatcher(size, queue int, log logger.ILogger, sinks ...Notifier) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if queue < size {
		queue = size
	}
	return &Dispatcher{
		size:  size,
		jobs:  make(chan Message, queue),
		sinks: sinks,
		log:   log,
	}
}

// Start launches the worker goroutines; they exit when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	d.log.Debug("notify worker started", logger.Int("worker", id))
	for {
		select {
		case msg := <-d.jobs:
			d.deliver(ctx, msg)
		case <-ctx.Done():
			d.log.Debug("notify worker shutting down", logger.Int("worker", id))
			return
		}
	}
}

// Dispatch never blocks: when the queue is full the message is dropped.
func (d *Dispatcher) Dispatch(msg Message) {
	select {
	case d.jobs <- msg:
	default:
		metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
		d.log.Warning("notification queue full, dropping message", logger.String("recipient", msg.Recipient))
	}
}

// Jobs returns the jobs channel for testing.
func (d *Dispatcher) Jobs() chan Message {
	return d.jobs
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, msg); err != nil {
			metrics.NotificationsSent.WithLabelValues(sink.Name(), "error").Inc()
			d.log.Warning("notification failed",
				logger.String("sink", sink.Name()),
				logger.String("recipient", msg.Recipient),
				logger.Error(err),
			)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(sink.Name(), "ok").Inc()
	}
}
