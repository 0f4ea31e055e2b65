package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Talorix/panel/internal/core/domain"
)

// ServerCommand returns the server subcommand group.
func ServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Manage servers",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a server hosted on a node",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Server id (generated when empty)"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
					&cli.StringFlag{Name: "owner", Usage: "Owner user id or email", Required: true},
					&cli.StringFlag{Name: "workload", Usage: "Container id on the node", Required: true},
					&cli.StringFlag{Name: "node-ip", Usage: "IP of the hosting node", Required: true},
				},
				Action: serverAdd,
			},
			{
				Name:   "list",
				Usage:  "List servers",
				Action: serverList,
			},
		},
	}
}

func serverAdd(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	owner, err := lookupUser(c.Context, repo, c.String("owner"))
	if err != nil {
		return err
	}

	id := c.String("id")
	if id == "" {
		if id, err = domain.NewID(domain.ServerIDPrefix); err != nil {
			return err
		}
	}
	s := &domain.Server{
		ID:          id,
		Name:        c.String("name"),
		OwnerUserID: owner.ID,
		WorkloadID:  c.String("workload"),
		Node:        domain.NodeRef{IP: c.String("node-ip")},
		CreatedAt:   domain.NowMillis(),
	}
	if err := repo.CreateServer(c.Context, s); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("server %s already exists", s.ID)
		}
		return err
	}

	if !nodeExists(c, s.Node.IP) {
		notice(c, "warning: no node registered with ip %s; relays to this server will fail", s.Node.IP)
	}
	return render(c, newServerView(s))
}

func nodeExists(c *cli.Context, ip string) bool {
	repo, err := repository(c)
	if err != nil {
		return false
	}
	nodes, err := repo.ListNodes(c.Context)
	if err != nil {
		return false
	}
	for _, n := range nodes {
		if n.IP == ip {
			return true
		}
	}
	return false
}

func serverList(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	servers, err := repo.ListServers(c.Context)
	if err != nil {
		return err
	}
	views := make([]serverView, 0, len(servers))
	for _, s := range servers {
		views = append(views, newServerView(s))
	}
	return render(c, views)
}
