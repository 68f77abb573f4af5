package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campuslink/realtime/internal/api"
)

// Source lists the current notifications.
type Source interface {
	Notifications(ctx context.Context) ([]api.Notification, error)
}

// Handler receives newly seen notifications.
type Handler interface {
	HandleNotification(n api.Notification) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(api.Notification) error

func (f HandlerFunc) HandleNotification(n api.Notification) error {
	return f(n)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 30s)
	Timeout  time.Duration // Per-request timeout (default: 10s)
	Backfill bool          // Deliver notifications already unread at the first poll
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Stats counts poller activity.
type Stats struct {
	Polls     int64
	Errors    int64
	Delivered int64
}

// Poller periodically fetches notifications via the REST API.
type Poller struct {
	cfg     Config
	source  Source
	handler Handler
	logger  *slog.Logger

	seen   map[int64]struct{}
	primed bool

	polls     atomic.Int64
	errors    atomic.Int64
	delivered atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source Source, handler Handler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger,
		seen:    make(map[int64]struct{}),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("notification poller started",
		"interval", p.cfg.Interval,
		"backfill", p.cfg.Backfill,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("notification poller stopped", "delivered", p.delivered.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:     p.polls.Load(),
		Errors:    p.errors.Load(),
		Delivered: p.delivered.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll fetches notifications once and delivers the unread ones not seen yet.
// Only the run goroutine touches seen.
func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	p.polls.Add(1)
	items, err := p.source.Notifications(ctx)
	if err != nil {
		if p.ctx.Err() == nil {
			p.logger.Warn("failed to poll notifications", "err", err)
			p.errors.Add(1)
		}
		return
	}

	deliver := p.primed || p.cfg.Backfill
	p.primed = true

	current := make(map[int64]struct{}, len(items))
	delivered := 0
	for _, n := range items {
		current[n.ID] = struct{}{}
		if _, ok := p.seen[n.ID]; ok || n.Read {
			continue
		}
		if !deliver {
			continue
		}
		if err := p.handler.HandleNotification(n); err != nil {
			p.logger.Warn("notification handler failed", "id", n.ID, "err", err)
			p.errors.Add(1)
			// Not marked seen, so the next poll retries it.
			delete(current, n.ID)
			continue
		}
		delivered++
	}

	// Forget ids the API no longer returns.
	p.seen = current
	p.delivered.Add(int64(delivered))

	p.logger.Debug("poll cycle complete",
		"notifications", len(items),
		"delivered", delivered,
	)
}
