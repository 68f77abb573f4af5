package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/campuslink/realtime/internal/api"
	"github.com/campuslink/realtime/internal/poller"
)

type NotificationsCmd struct {
	flags *Flags

	// Command-specific flags
	unread   bool
	watch    bool
	interval string
}

// NewNotificationsCmd creates a new notifications command
func NewNotificationsCmd(flags *Flags) *NotificationsCmd {
	return &NotificationsCmd{flags: flags}
}

// Register adds the notifications command to the application
func (cmd *NotificationsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "notifications",
		Aliases:   []string{"notif"},
		Usage:     "List notifications or mark them read",
		UsageText: "campuslink notifications [--unread]\n   campuslink notifications read <id> [id...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "unread",
				Usage:       "only show unread notifications",
				Destination: &cmd.unread,
			},
			&cli.BoolFlag{
				Name:        "watch",
				Aliases:     []string{"w"},
				Usage:       "keep polling and print new notifications as they arrive",
				Destination: &cmd.watch,
			},
			&cli.StringFlag{
				Name:        "interval",
				Usage:       "poll interval for --watch (e.g., 30s, 2m)",
				Value:       "30s",
				Destination: &cmd.interval,
			},
		},
		Action: cmd.list,
		Commands: []*cli.Command{
			{
				Name:      "read",
				Usage:     "Mark notifications as read",
				UsageText: "campuslink notifications read <id> [id...]",
				Action:    cmd.markRead,
			},
		},
	})

	return app
}

func (cmd *NotificationsCmd) list(ctx context.Context, c *cli.Command) error {
	if cmd.watch {
		return cmd.runWatch(ctx, c)
	}

	items, err := newAPIClient(cmd.flags).Notifications(ctx)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}

	out := c.Root().Writer
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTYPE\tREAD\tTITLE")
	shown := 0
	for _, n := range items {
		if cmd.unread && n.Read {
			continue
		}
		read := "no"
		if n.Read {
			read = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			n.ID,
			n.CreatedAt.Local().Format(time.DateTime),
			n.Type,
			read,
			truncate(n.Title, 50),
		)
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d notification(s)\n", shown)
	return nil
}

func (cmd *NotificationsCmd) markRead(ctx context.Context, c *cli.Command) error {
	if c.NArg() == 0 {
		return cli.Exit("Error: at least one notification id is required", 1)
	}

	ids := make([]int64, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid notification id %q", arg)
		}
		ids = append(ids, id)
	}

	client := newAPIClient(cmd.flags)
	for _, id := range ids {
		if err := client.MarkNotificationRead(ctx, id); err != nil {
			return fmt.Errorf("mark notification %d read: %w", id, err)
		}
		fmt.Fprintf(c.Root().Writer, "Marked %d as read\n", id)
	}
	return nil
}

// runWatch prints unread notifications as the poller discovers them until ctx ends.
func (cmd *NotificationsCmd) runWatch(ctx context.Context, c *cli.Command) error {
	interval, err := time.ParseDuration(cmd.interval)
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", cmd.interval, err)
	}

	out := c.Root().Writer
	p := poller.New(poller.Config{
		Interval: interval,
		Backfill: true,
	}, newAPIClient(cmd.flags), poller.HandlerFunc(func(n api.Notification) error {
		return printNotification(out, n)
	}), cmd.flags.Logger.With("component", "poller"))

	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Stop(stopCtx)
}

func printNotification(w io.Writer, n api.Notification) error {
	_, err := fmt.Fprintf(w, "[%s] #%d %s: %s\n",
		n.CreatedAt.Local().Format(time.DateTime), n.ID, n.Type, n.Title)
	return err
}
