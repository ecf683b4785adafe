// Package sender delivers outbound Telegram calls from a small worker pool
// with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/metrics"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the chat's worker has no free slot.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	// QueueSize is the buffer of each worker.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

func (o *Options) withDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	out := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		out = append(out, slog.String("endpoint", j.endpoint))
	}
	return append(out, extra...)
}

// Dispatcher runs outbound calls on a fixed set of workers. Jobs of one
// chat always go to the same worker so replies keep their order.
type Dispatcher struct {
	opts    Options
	workers []chan job
	closed  atomic.Bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
	failed  atomic.Uint64
}

// NewDispatcher starts the workers. Zero options take defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts.withDefaults()
	d := &Dispatcher{opts: opts, workers: make([]chan job, opts.Workers)}
	d.wg.Add(len(d.workers))
	for i := range d.workers {
		d.workers[i] = make(chan job, opts.QueueSize)
		go func(jobs <-chan job) {
			defer d.wg.Done()
			for j := range jobs {
				d.deliver(j)
			}
		}(d.workers[i])
	}
	return d
}

// Enqueue schedules run on the worker of the chat in ctx. run may be
// called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case d.workerFor(logger.ChatIDFrom(ctx)) <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) workerFor(chatID int64) chan job {
	if chatID < 0 {
		chatID = -chatID
	}
	return d.workers[chatID%int64(len(d.workers))]
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failed.Load()
}

// Close rejects new jobs and waits for the queued ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed.Swap(true) {
		d.mu.Unlock()
		return
	}
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			logger.Debug(j.ctx, "tg.sender", "send.success", j.attrs(
				slog.Int("attempts", attempt),
				slog.Duration("elapsed", time.Since(start)),
			)...)
			return
		}
		if attempt == attempts || !Retryable(err) {
			break
		}
		delay := d.backoff(err, attempt)
		logger.Debug(j.ctx, "tg.sender", "send.retry", j.attrs(
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			slog.String("err", redact(err)),
		)...)
		if waitErr := sleep(ctx, delay); waitErr != nil {
			err = waitErr
			break
		}
	}

	d.failed.Add(1)
	metrics.SendFailed()
	logger.Error(j.ctx, "tg.sender", "send.fail", j.attrs(
		slog.String("status", "fail"),
		slog.String("err", redact(err)),
		slog.String("err_code", classifyError(err)),
		slog.Duration("elapsed", time.Since(start)),
	)...)
}

// backoff grows linearly with the attempt, or follows Telegram's
// retry_after when flood control kicked in.
func (d *Dispatcher) backoff(err error, attempt int) time.Duration {
	if wait, ok := floodWait(err); ok && wait > 0 {
		return wait
	}
	return d.opts.RetryBackoff * time.Duration(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
