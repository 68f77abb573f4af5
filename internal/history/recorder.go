package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuslink/realtime/internal/connection"
)

// Recorder consumes manager events and writes message events to a Store.
type Recorder struct {
	cfg    Config
	store  Store
	logger *slog.Logger

	// Input from the connection manager
	input <-chan connection.Event

	// Batching
	batch       []Record
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
}

// NewRecorder creates a new Recorder.
func NewRecorder(cfg Config, store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	return &Recorder{
		cfg:    cfg,
		store:  store,
		logger: logger,
		batch:  make([]Record, 0, cfg.BatchSize),
	}
}

// Start begins consuming events. The recorder stops on its own when
// events is closed.
func (r *Recorder) Start(ctx context.Context, events <-chan connection.Event) error {
	r.input = events
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	// Consumer goroutine
	r.wg.Add(1)
	go r.consumeLoop()

	// Flush ticker goroutine
	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("history recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the recorder and flushes what is pending.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping history recorder")

	if r.cancel != nil {
		r.cancel()
	}

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("history recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("history recorder stop timed out")
	}

	// Final flush
	r.flush()

	return nil
}

// Stats returns current counters.
func (r *Recorder) Stats() Stats {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.stats
}

// consumeLoop reads events until the context ends or the channel closes.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-r.input:
			if !ok {
				r.flush()
				return
			}
			r.handleEvent(ev)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush()
		}
	}
}

// handleEvent adds message events to the batch.
func (r *Recorder) handleEvent(ev connection.Event) {
	if ev.Kind != connection.EventMessage {
		return
	}

	row := r.transform(ev)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	r.stats.Received++
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// transform converts a message event to a Record.
func (r *Recorder) transform(ev connection.Event) Record {
	payload, err := json.Marshal(ev.Message)
	if err != nil {
		payload = json.RawMessage(`{}`)
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return Record{
		ID:         uuid.New(),
		UserID:     r.cfg.UserID,
		ChatID:     ev.Message.ChatID,
		Type:       ev.Message.Type,
		Content:    ev.Message.Content,
		Payload:    payload,
		ReceivedAt: at.UTC(),
	}
}

// flush writes the current batch to the store.
func (r *Recorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]Record, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	// Outlives r.ctx so the final flush in Stop still lands.
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.FlushTimeout)
	defer cancel()

	conflicts, err := r.store.Insert(ctx, batch)
	if err != nil {
		r.logger.Error("history insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.stats.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.stats.Inserts += int64(len(batch) - conflicts)
	r.stats.Conflicts += int64(conflicts)
	r.stats.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed history",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}
