// Package jobs runs background work off the request path: a fixed set of
// workers drains a bounded queue of CBOR-encoded jobs, dispatching each to
// the handler registered for its kind. Failed jobs are redelivered with
// exponential backoff until MaxAttempts is reached.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/config"
	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrPoolClosed  = errors.New("job pool is closed")
	ErrUnknownKind = errors.New("no handler for job kind")
)

// Job is one unit of queued work.
type Job struct {
	ID      string
	Kind    string
	Payload []byte
	Attempt int
}

// Handler processes the payload of one job. A returned error schedules a
// redelivery.
type Handler func(ctx context.Context, payload []byte) error

// HandleFunc adapts a typed function to a Handler. Payloads that do not
// decode into T are dropped without retry.
func HandleFunc[T any](fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, payload []byte) error {
		var v T
		if err := Unmarshal(payload, &v); err != nil {
			return permanent(err)
		}
		return fn(ctx, v)
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// Backoff is the delay before the first redelivery; it doubles on each
	// further attempt.
	Backoff time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{Workers: cfg.Workers, QueueSize: cfg.QueueSize, MaxAttempts: cfg.JobMaxAttempts, Backoff: time.Second}
}

// Stats are cumulative counters of a pool.
type Stats struct {
	Succeeded int64
	Failed    int64
	Retried   int64
	Dropped   int64
}

type Pool struct {
	config   Config
	queue    chan Job
	logger   logging.Logger
	handlers map[string]Handler

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
}

func NewPool(cfg Config, logger logging.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Pool{
		config:   cfg,
		queue:    make(chan Job, cfg.QueueSize),
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds h to kind. It must be called before Start.
func (p *Pool) Register(kind string, h Handler) {
	p.handlers[kind] = h
}

// Start launches the workers. Handlers run with a context derived from ctx
// that is cancelled by Stop.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info(ctx, "job pool started", "workers", p.config.Workers, "queue", p.config.QueueSize)
}

// Enqueue encodes payload and queues it without blocking. A full queue is
// reported as ErrQueueFull.
func (p *Pool) Enqueue(ctx context.Context, kind string, payload any) error {
	if _, ok := p.handlers[kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	data, err := Marshal(payload)
	if err != nil {
		return err
	}
	return p.push(Job{ID: uuid.NewString(), Kind: kind, Payload: data, Attempt: 1})
}

func (p *Pool) push(j Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(j)
	}
}

func (p *Pool) run(j Job) {
	ctx := p.ctx
	err := p.call(ctx, j)
	if err == nil {
		p.succeeded.Add(1)
		return
	}

	var perm *permanentError
	if errors.As(err, &perm) || j.Attempt >= p.config.MaxAttempts || ctx.Err() != nil {
		p.failed.Add(1)
		p.logger.Error(ctx, "job failed", "job_id", j.ID, "kind", j.Kind, "attempt", j.Attempt, "error", err)
		return
	}

	delay := p.config.Backoff << (j.Attempt - 1)
	p.logger.Warn(ctx, "job will be retried", "job_id", j.ID, "kind", j.Kind, "attempt", j.Attempt, "delay", delay, "error", err)
	p.retried.Add(1)
	j.Attempt++
	p.wg.Add(1)
	go p.redeliver(j, delay)
}

func (p *Pool) call(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	h, ok := p.handlers[j.Kind]
	if !ok {
		return permanent(fmt.Errorf("%w: %s", ErrUnknownKind, j.Kind))
	}
	return h(ctx, j.Payload)
}

func (p *Pool) redeliver(j Job, delay time.Duration) {
	defer p.wg.Done()
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.ctx.Done():
		p.dropped.Add(1)
		return
	}
	if err := p.push(j); err != nil {
		p.dropped.Add(1)
		p.logger.Error(p.ctx, "job dropped", "job_id", j.ID, "kind", j.Kind, "error", err)
	}
}

// Every enqueues a job of kind each interval until Stop. payload is called
// with the tick time. It must be called after Start.
func (p *Pool) Every(kind string, interval time.Duration, payload func(now time.Time) any) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case now := <-t.C:
				if err := p.Enqueue(p.ctx, kind, payload(now)); err != nil {
					p.logger.Warn(p.ctx, "scheduled job not enqueued", "kind", kind, "error", err)
				}
			}
		}
	}()
}

// Stop cancels running handlers and pending redeliveries, lets the workers
// drain the queue and waits for them.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Stats() Stats {
	return Stats{
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Retried:   p.retried.Load(),
		Dropped:   p.dropped.Load(),
	}
}
