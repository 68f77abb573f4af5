// Package health serves the liveness endpoint of a running session.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/campuslink/realtime/internal/connection"
)

// Overall states reported by /health.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger is a dependency that can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SessionSource exposes session state.
type SessionSource interface {
	Snapshot() connection.Snapshot
}

// Report is the /health response body.
type Report struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

type sessionView struct {
	Status            connection.Status `json:"status"`
	UserID            string            `json:"user_id,omitempty"`
	ReconnectAttempts int               `json:"reconnect_attempts"`
	QueueLen          int               `json:"queue_len"`
	LastPongAt        *time.Time        `json:"last_pong_at,omitempty"`
	LastError         string            `json:"last_error,omitempty"`
}

// NewHandler creates the HTTP handler for /health and /debug/session.
func NewHandler(session SessionSource, deps map[string]Pinger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := Check(ctx, session, deps)
		if report.Status != StatusHealthy {
			logger.Debug("health check", "status", report.Status)
		}

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})

	mux.HandleFunc("/debug/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(viewOf(session.Snapshot()))
	})

	return mux
}

// Check builds a report from the session and every dependency.
func Check(ctx context.Context, session SessionSource, deps map[string]Pinger) Report {
	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]any),
	}

	snap := session.Snapshot()
	report.Components["websocket"] = viewOf(snap)
	switch snap.Status {
	case connection.StatusConnected:
	case connection.StatusConnecting:
		report.Status = StatusDegraded
	default:
		report.Status = StatusUnhealthy
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := deps[name].Ping(ctx); err != nil {
			report.Status = StatusUnhealthy
			report.Components[name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
			continue
		}
		report.Components[name] = "connected"
	}

	return report
}

func viewOf(snap connection.Snapshot) sessionView {
	v := sessionView{
		Status:            snap.Status,
		UserID:            snap.UserID,
		ReconnectAttempts: snap.ReconnectAttempts,
		QueueLen:          snap.QueueLen,
		LastError:         snap.LastError,
	}
	if !snap.LastPongAt.IsZero() {
		t := snap.LastPongAt.UTC()
		v.LastPongAt = &t
	}
	return v
}

// Serve runs an HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting health server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
