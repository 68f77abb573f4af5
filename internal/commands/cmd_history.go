package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/campuslink/realtime/internal/database"
	"github.com/campuslink/realtime/internal/history"
)

type HistoryCmd struct {
	flags *Flags

	// Command-specific flags
	chatID int
	limit  int
	remote bool
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "Show recent chat messages",
		UsageText: "campuslink history [options]",
		Description: `Lists messages recorded by 'campuslink listen --record', oldest first.
With --remote the chat history is fetched from the REST API instead.

Examples:
  campuslink history --chat 12 --limit 20
  campuslink history --remote --chat 12`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "chat",
				Usage:       "chat id (0 lists all recorded messages)",
				Destination: &cmd.chatID,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "maximum number of messages",
				Value:       50,
				Destination: &cmd.limit,
			},
			&cli.BoolFlag{
				Name:        "remote",
				Usage:       "fetch from the REST API instead of the local record",
				Destination: &cmd.remote,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.remote {
		return cmd.runRemote(ctx, c)
	}

	pool, err := database.Connect(ctx, cmd.flags.Config.History.Database)
	if err != nil {
		return fmt.Errorf("connect history database: %w", err)
	}
	defer pool.Close()

	records, err := history.NewPostgresStore(pool).Recent(ctx, int64(cmd.chatID), cmd.limit)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if len(records) == 0 {
		fmt.Fprintln(out, "No recorded messages")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIVED\tCHAT\tTYPE\tCONTENT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.ReceivedAt.Local().Format(time.DateTime),
			chatLabel(r.ChatID),
			r.Type,
			truncate(r.Content, 60),
		)
	}
	return w.Flush()
}

func (cmd *HistoryCmd) runRemote(ctx context.Context, c *cli.Command) error {
	if cmd.chatID <= 0 {
		return fmt.Errorf("--remote needs --chat")
	}

	msgs, err := newAPIClient(cmd.flags).ChatHistory(ctx, int64(cmd.chatID), cmd.limit)
	if err != nil {
		return fmt.Errorf("fetch chat history: %w", err)
	}

	out := c.Root().Writer
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSENT\tSENDER\tCONTENT")
	for _, m := range msgs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
			m.ID,
			m.CreatedAt.Local().Format(time.DateTime),
			m.SenderID,
			truncate(m.Content, 60),
		)
	}
	return w.Flush()
}

func chatLabel(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

// truncate shortens s to n runes and flattens newlines.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
