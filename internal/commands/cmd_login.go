package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type LoginCmd struct {
	flags *Flags

	// Command-specific flags
	email    string
	password string
}

// NewLoginCmd creates a new login command
func NewLoginCmd(flags *Flags) *LoginCmd {
	return &LoginCmd{flags: flags}
}

// Register adds the login command to the application
func (cmd *LoginCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "login",
		Usage:     "Log in and print the session environment",
		UsageText: "campuslink login --email EMAIL --password PASSWORD",
		Description: `Authenticates against the REST API and prints shell exports for the
access token and user id, so later commands pick them up:

  eval "$(campuslink login --email me@uni.edu --password secret)"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "email",
				Usage:       "account email",
				Required:    true,
				Destination: &cmd.email,
			},
			&cli.StringFlag{
				Name:        "password",
				Usage:       "account password",
				Sources:     cli.EnvVars("CAMPUSLINK_PASSWORD"),
				Required:    true,
				Destination: &cmd.password,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *LoginCmd) run(ctx context.Context, c *cli.Command) error {
	res, err := newAPIClient(cmd.flags).Login(ctx, cmd.email, cmd.password)
	if err != nil {
		return err
	}

	cmd.flags.Logger.Info("logged in", "user_id", res.User.ID, "username", res.User.Username)

	out := c.Root().Writer
	fmt.Fprintf(out, "export CAMPUSLINK_TOKEN=%q\n", res.AccessToken)
	fmt.Fprintf(out, "export CAMPUSLINK_USER_ID=%q\n", fmt.Sprint(res.User.ID))
	return nil
}
