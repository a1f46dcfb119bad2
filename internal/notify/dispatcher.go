package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultDropped = "dropped"
)

type DispatcherOptions struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
	SendTimeout    time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	Logger         *slog.Logger
	// Registerer receives the delivery counter; nil skips registration.
	Registerer prometheus.Registerer
}

func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		Workers:        5,
		QueueSize:      100,
		EnqueueTimeout: 5 * time.Second,
		SendTimeout:    10 * time.Second,
		MaxAttempts:    3,
		RetryDelay:     500 * time.Millisecond,
	}
}

// Dispatcher delivers notifications asynchronously through a worker pool.
type Dispatcher struct {
	provider Provider
	opts     DispatcherOptions
	logger   *slog.Logger
	jobs     chan loyalty.Notification
	results  *prometheus.CounterVec
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(provider Provider, opts DispatcherOptions) (*Dispatcher, error) {
	defaults := DefaultDispatcherOptions()
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = defaults.EnqueueTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaults.SendTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	results := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierledger_notifications_total",
			Help: "Settlement notifications by delivery result",
		},
		[]string{"result"},
	)
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(results); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			results = already.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	d := &Dispatcher{
		provider: provider,
		opts:     opts,
		logger:   logger,
		jobs:     make(chan loyalty.Notification, opts.QueueSize),
		results:  results,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d, nil
}

// Notify queues n. It waits up to the enqueue timeout for room in the queue.
func (d *Dispatcher) Notify(ctx context.Context, n loyalty.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	timer := time.NewTimer(d.opts.EnqueueTimeout)
	defer timer.Stop()

	select {
	case d.jobs <- n:
		return nil
	case <-ctx.Done():
		d.results.WithLabelValues(resultDropped).Inc()
		return ctx.Err()
	case <-timer.C:
		d.results.WithLabelValues(resultDropped).Inc()
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued notifications to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.jobs {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n loyalty.Notification) {
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
		err = d.provider.Send(ctx, n)
		cancel()
		if err == nil {
			d.results.WithLabelValues(resultSent).Inc()
			return
		}
		if attempt < d.opts.MaxAttempts && d.opts.RetryDelay > 0 {
			time.Sleep(d.opts.RetryDelay * time.Duration(attempt))
		}
	}
	d.results.WithLabelValues(resultFailed).Inc()
	d.logger.Warn("notification failed", "id", n.ID, "to", n.Recipient, "attempts", d.opts.MaxAttempts, "error", err)
}
