package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/campuslink/realtime/internal/connection"
)

type SendCmd struct {
	flags *Flags

	// Command-specific flags
	chatID  int
	msgType string
	timeout string
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send one message over the real-time session",
		UsageText: "campuslink send [options] <text>",
		Description: `Connects, sends the message, and waits until every queued message has
been written. With the outbox enabled an undelivered message stays queued in
Redis and goes out on the next connection.

Examples:
  campuslink send --chat 12 "see you at the library"
  campuslink send --type typing --chat 12 ""`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "chat",
				Usage:       "chat id to address",
				Destination: &cmd.chatID,
			},
			&cli.StringFlag{
				Name:        "type",
				Usage:       "message type",
				Value:       "chat",
				Destination: &cmd.msgType,
			},
			&cli.StringFlag{
				Name:        "timeout",
				Usage:       "how long to wait for delivery (e.g., 10s, 1m)",
				Value:       "15s",
				Destination: &cmd.timeout,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) message(args []string) (connection.Message, error) {
	if cmd.msgType == "" {
		return connection.Message{}, errors.New("--type must not be empty")
	}
	msg := connection.Message{
		Type:    cmd.msgType,
		Content: strings.Join(args, " "),
	}
	if cmd.chatID > 0 {
		id := int64(cmd.chatID)
		msg.ChatID = &id
	}
	if msg.Type == "chat" && (msg.ChatID == nil || msg.Content == "") {
		return connection.Message{}, errors.New("chat messages need --chat and text")
	}
	return msg, nil
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	msg, err := cmd.message(c.Args().Slice())
	if err != nil {
		return err
	}
	timeout, err := time.ParseDuration(cmd.timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", cmd.timeout, err)
	}

	sess, err := openSession(ctx, cmd.flags)
	if err != nil {
		return err
	}
	defer sess.Close()

	events, unsubscribe := sess.Manager.Subscribe(64)
	defer unsubscribe()

	if err := sess.Manager.Connect(sess.UserID, sess.Token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	// Usually still connecting, so this lands in the user's queue and goes
	// out with the drain.
	if sess.Manager.SendMessage(msg) {
		sess.Manager.Disconnect()
		fmt.Fprintln(c.Root().Writer, "sent")
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-waitCtx.Done():
			pending := sess.Manager.Snapshot().QueueLen
			if sess.outbox != nil && pending > 0 {
				fmt.Fprintf(c.Root().Writer, "not delivered yet, %d message(s) kept in outbox\n", pending)
			}
			return fmt.Errorf("message not delivered: %w", waitCtx.Err())
		case ev, ok := <-events:
			if !ok {
				return errors.New("session closed")
			}
			if ev.Kind != connection.EventStatus {
				continue
			}
			switch ev.Status {
			case connection.StatusConnected:
				if sess.Manager.Snapshot().QueueLen == 0 {
					sess.Manager.Disconnect()
					fmt.Fprintln(c.Root().Writer, "sent")
					return nil
				}
			case connection.StatusError:
				return fmt.Errorf("%w: %s", errSessionLost, ev.Err)
			case connection.StatusDisconnected:
				return errors.New("server closed the session before delivery")
			}
		}
	}
}
