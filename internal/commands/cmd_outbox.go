package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/campuslink/realtime/internal/outbox"
)

var errOutboxDisabled = errors.New("outbox is disabled (set outbox.enabled in config)")

type OutboxCmd struct {
	flags *Flags

	// Command-specific flags
	clear bool
}

// NewOutboxCmd creates a new outbox command
func NewOutboxCmd(flags *Flags) *OutboxCmd {
	return &OutboxCmd{flags: flags}
}

// Register adds the outbox command to the application
func (cmd *OutboxCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "outbox",
		Usage:     "Inspect the durable outbound queue",
		UsageText: "campuslink outbox [--clear]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "clear",
				Usage:       "discard every queued message",
				Destination: &cmd.clear,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *OutboxCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	if !cfg.Outbox.Enabled {
		return errOutboxDisabled
	}
	if cfg.Connection.UserID == "" {
		return errNoUser
	}

	rdb, err := outbox.Open(ctx, outboxConfig(cfg.Outbox))
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer rdb.Close()

	user := cfg.Connection.UserID
	q := outbox.NewRedisQueue(rdb, cfg.Outbox.KeyPrefix, outbox.WithLogger(cmd.flags.Logger))
	key := q.Key(user)

	n, err := q.Len(ctx, user)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.clear {
		if err := q.Clear(ctx, user); err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %d queued message(s) from %s\n", n, key)
		return nil
	}
	fmt.Fprintf(out, "%s: %d queued message(s)\n", key, n)
	return nil
}
