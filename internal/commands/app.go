package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/campuslink/realtime/internal/config"
	"github.com/campuslink/realtime/internal/version"
)

// NewApp builds the campuslink command tree around flags.
func NewApp(flags *Flags) *cli.Command {
	app := &cli.Command{
		Name:      "campuslink",
		Usage:     "Real-time client for the CampusLink backend",
		UsageText: "campuslink [global options] command [command options]",
		Description: `campuslink keeps a WebSocket session to the CampusLink backend open,
reconnecting with backoff when it drops and queueing outbound messages
until the connection is back.

Run 'campuslink listen' to stream chat messages and notifications.
Run 'campuslink send --chat ID text' to send a chat message.`,
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("CAMPUSLINK_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("CAMPUSLINK_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user id for the session (overrides config)",
				Destination: &flags.UserID,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "access token (overrides config)",
				Destination: &flags.Token,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, err := setupLogger(flags.LogLevel, os.Stderr)
			if err != nil {
				return ctx, err
			}
			flags.Logger = logger

			cfg, err := config.LoadAndValidate(resolveConfigPath(flags.ConfigPath))
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if flags.UserID != "" {
				cfg.Connection.UserID = flags.UserID
			}
			if flags.Token != "" {
				cfg.API.Token = flags.Token
			}
			flags.Config = cfg

			logger.Debug("configuration loaded",
				"api_url", cfg.API.BaseURL,
				"ws_url", cfg.Connection.URL,
				"outbox", cfg.Outbox.Enabled,
				"history", cfg.History.Enabled,
			)
			return ctx, nil
		},
	}

	app = NewListenCmd(flags).Register(app)
	app = NewSendCmd(flags).Register(app)
	app = NewHistoryCmd(flags).Register(app)
	app = NewNotificationsCmd(flags).Register(app)
	app = NewLoginCmd(flags).Register(app)
	app = NewOutboxCmd(flags).Register(app)

	return app
}
