package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
)

// UserCommand returns the user subcommand group.
func UserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage panel users",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
					&cli.StringFlag{
						Name:     "password",
						Usage:    "Initial password",
						EnvVars:  []string{"TALORIX_USER_PASSWORD"},
						Required: true,
					},
				},
				Action: userAdd,
			},
			{
				Name:      "grant",
				Usage:     "Give a user subuser access to a server",
				ArgsUsage: "USER SERVER_ID",
				Action:    userGrant,
			},
			{
				Name:      "revoke",
				Usage:     "Remove a user's subuser access to a server",
				ArgsUsage: "USER SERVER_ID",
				Action:    userRevoke,
			},
			{
				Name:   "list",
				Usage:  "List users",
				Action: userList,
			},
		},
	}
}

func userAdd(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	u, err := domain.NewUser(c.String("email"), c.String("username"), c.String("password"))
	if err != nil {
		return err
	}
	if err := repo.CreateUser(c.Context, u); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("a user with email %s already exists", u.Email)
		}
		return err
	}
	return render(c, newUserView(u))
}

func userGrant(c *cli.Context) error {
	return changeGrant(c, (*domain.User).Grant)
}

func userRevoke(c *cli.Context) error {
	return changeGrant(c, (*domain.User).Revoke)
}

func changeGrant(c *cli.Context, apply func(*domain.User, string)) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: %s USER SERVER_ID", c.Command.HelpName)
	}
	repo, err := repository(c)
	if err != nil {
		return err
	}
	u, err := lookupUser(c.Context, repo, c.Args().Get(0))
	if err != nil {
		return err
	}
	serverID := c.Args().Get(1)
	if _, err := repo.GetServer(c.Context, serverID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("server %s not found", serverID)
		}
		return err
	}

	apply(u, serverID)
	if err := repo.UpdateUser(c.Context, u); err != nil {
		return err
	}
	return render(c, newUserView(u))
}

func userList(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	users, err := repo.ListUsers(c.Context)
	if err != nil {
		return err
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	return render(c, views)
}

// lookupUser accepts a user id or an email address.
func lookupUser(ctx context.Context, repo service.Repository, ref string) (*domain.User, error) {
	var (
		u   *domain.User
		err error
	)
	if strings.Contains(ref, "@") {
		u, err = repo.FindUserByEmail(ctx, strings.ToLower(ref))
	} else {
		u, err = repo.GetUser(ctx, ref)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("user %s not found", ref)
	}
	return u, err
}
