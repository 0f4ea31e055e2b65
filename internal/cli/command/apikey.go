package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Talorix/panel/internal/core/domain"
)

// APIKeyCommand returns the apikey subcommand group.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Manage API keys",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an API key; the token is printed once",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "Owning user id or email", Required: true},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
				},
				Action: apikeyCreate,
			},
			{
				Name:      "revoke",
				Usage:     "Revoke an API key",
				ArgsUsage: "KEY_ID",
				Action:    apikeyRevoke,
			},
			{
				Name:  "list",
				Usage: "List API keys",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "Only keys of this user id or email"},
				},
				Action: apikeyList,
			},
		},
	}
}

// createdKey is printed once by apikey create.
type createdKey struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func apikeyCreate(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	u, err := lookupUser(c.Context, repo, c.String("user"))
	if err != nil {
		return err
	}

	key, raw, err := domain.NewAPIKey(c.String("name"), u.ID)
	if err != nil {
		return err
	}
	if err := repo.CreateAPIKey(c.Context, key); err != nil {
		return err
	}

	notice(c, "store this token now, it cannot be shown again")
	return render(c, createdKey{ID: key.ID, Name: key.Name, UserID: key.UserID, Token: raw})
}

func apikeyRevoke(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return fmt.Errorf("key ID required")
	}
	repo, err := repository(c)
	if err != nil {
		return err
	}
	keys, err := repo.ListAPIKeys(c.Context, "")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID != keyID {
			continue
		}
		if k.Status == domain.KeyStatusRevoked {
			notice(c, "key %s is already revoked", keyID)
			return render(c, newAPIKeyView(k))
		}
		k.Revoke()
		if err := repo.UpdateAPIKey(c.Context, k); err != nil {
			return err
		}
		return render(c, newAPIKeyView(k))
	}
	return fmt.Errorf("api key %s not found", keyID)
}

func apikeyList(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	userID := ""
	if ref := c.String("user"); ref != "" {
		u, err := lookupUser(c.Context, repo, ref)
		if err != nil {
			return err
		}
		userID = u.ID
	}
	keys, err := repo.ListAPIKeys(c.Context, userID)
	if err != nil {
		return err
	}
	views := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, newAPIKeyView(k))
	}
	return render(c, views)
}
