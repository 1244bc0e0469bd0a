package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

const (
	deliveryTimeout   = 5 * time.Second
	deliveryRetries   = 2
	deliveryBaseDelay = 100 * time.Millisecond
)

// Dispatcher hands notification events from request handlers to a pool of
// workers calling the Notifier. Delivery never reports back to the producer.
type Dispatcher struct {
	notifier port.Notifier
	queue    chan domain.Event
	log      *slog.Logger
	metrics  port.Metrics
	now      func() time.Time

	baseDelay time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(notifier port.Notifier, queueSize int, opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		notifier:  notifier,
		queue:     make(chan domain.Event, queueSize),
		log:       o.log,
		metrics:   o.metrics,
		now:       o.now,
		baseDelay: deliveryBaseDelay,
	}
}

// Enqueue never blocks. Events arriving on a full or closed queue are dropped.
func (d *Dispatcher) Enqueue(event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher closed")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

func (d *Dispatcher) drop(event domain.Event, reason string) {
	d.metrics.NotificationDropped()
	d.log.Warn("notification dropped", "event_id", event.ID, "type", event.Type, "reason", reason)
}

// Run starts workers and blocks until the queue is closed and drained.
func (d *Dispatcher) Run(workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.workerLoop(id)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)

		backoff := retry.WithMaxRetries(deliveryRetries, retry.NewExponential(d.baseDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := d.notifier.Notify(ctx, event); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			d.metrics.NotificationFailed()
			d.log.Error("notification failed", "worker", id, "event_id", event.ID, "type", event.Type, "err", err)
		} else {
			d.metrics.NotificationSent()
		}

		cancel()
	}
}

// Close stops accepting events. Workers finish what is already queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}
