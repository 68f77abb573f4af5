package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/campuslink/realtime/internal/connection"
	"github.com/campuslink/realtime/internal/database"
	"github.com/campuslink/realtime/internal/health"
	"github.com/campuslink/realtime/internal/history"
)

var errSessionLost = errors.New("session lost")

type ListenCmd struct {
	flags *Flags

	// Command-specific flags
	json   bool
	record bool
	health bool
}

// NewListenCmd creates a new listen command
func NewListenCmd(flags *Flags) *ListenCmd {
	return &ListenCmd{flags: flags}
}

// Register adds the listen command to the application
func (cmd *ListenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "listen",
		Usage:     "Stream real-time events until interrupted",
		UsageText: "campuslink listen [options]",
		Description: `Opens the WebSocket session and prints every status change and inbound
message. The session reconnects on its own; the command exits non-zero once
reconnect attempts are exhausted.

With --record (or history.enabled) inbound messages are stored in PostgreSQL.
With --health (or health.enabled) /health and /debug/session are served.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print events as JSON lines",
				Destination: &cmd.json,
			},
			&cli.BoolFlag{
				Name:        "record",
				Aliases:     []string{"r"},
				Usage:       "record inbound messages to PostgreSQL",
				Destination: &cmd.record,
			},
			&cli.BoolFlag{
				Name:        "health",
				Usage:       "serve the health endpoint",
				Destination: &cmd.health,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ListenCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	logger := cmd.flags.Logger

	sess, err := openSession(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer sess.Close()

	events, unsubscribe := sess.Manager.Subscribe(256)
	defer unsubscribe()

	deps := sess.Pingers()

	var recorder *history.Recorder
	var recEvents <-chan connection.Event
	if cmd.record || cfg.History.Enabled {
		pool, err := database.Connect(ctx, cfg.History.Database)
		if err != nil {
			return fmt.Errorf("connect history database: %w", err)
		}
		defer pool.Close()

		store := history.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		deps["postgres"] = pool

		var recUnsubscribe func()
		recEvents, recUnsubscribe = sess.Manager.Subscribe(cfg.History.BufferSize)
		defer recUnsubscribe()

		recorder = history.NewRecorder(history.Config{
			UserID:        sess.UserID,
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
		}, store, logger.With("component", "history"))
	}

	if err := sess.Manager.Connect(sess.UserID, sess.Token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return cmd.printEvents(gctx, c.Root().Writer, events)
	})

	if recorder != nil {
		if err := recorder.Start(gctx, recEvents); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return recorder.Stop(stopCtx)
		})
	}

	if cmd.health || cfg.Health.Enabled {
		handler := health.NewHandler(sess.Manager, deps, logger)
		g.Go(func() error {
			return health.Serve(gctx, cfg.Health.Addr, handler, logger)
		})
	}

	// Disconnect with a normal closure on the way out.
	g.Go(func() error {
		<-gctx.Done()
		sess.Manager.Disconnect()
		return nil
	})

	return g.Wait()
}

// printEvents writes events until ctx ends or the session is lost.
func (cmd *ListenCmd) printEvents(ctx context.Context, w io.Writer, events <-chan connection.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev, cmd.json); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			if ev.Kind == connection.EventStatus && ev.Status == connection.StatusError {
				return fmt.Errorf("%w: %s", errSessionLost, ev.Err)
			}
		}
	}
}
