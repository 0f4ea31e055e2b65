package command

import (
	"github.com/urfave/cli/v2"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/pkg/token"
)

const nodeKeyLength = 32

// NodeCommand returns the node subcommand group.
func NodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "node",
		Usage: "Manage agent nodes",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a node agent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true},
					&cli.StringFlag{Name: "ip", Usage: "Agent address; servers reference nodes by this value", Required: true},
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 3001},
					&cli.StringFlag{
						Name:    "key",
						Usage:   "Agent shared secret (generated when empty)",
						EnvVars: []string{"TALORIX_NODE_KEY"},
					},
				},
				Action: nodeAdd,
			},
			{
				Name:   "list",
				Usage:  "List nodes",
				Action: nodeList,
			},
		},
	}
}

func nodeAdd(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	id, err := domain.NewID(domain.NodeIDPrefix)
	if err != nil {
		return err
	}

	key, generated := c.String("key"), false
	if key == "" {
		if key, err = token.GenerateWithLength(nodeKeyLength); err != nil {
			return err
		}
		generated = true
	}

	n := &domain.Node{
		ID:        id,
		Name:      c.String("name"),
		IP:        c.String("ip"),
		Port:      c.Int("port"),
		Key:       key,
		CreatedAt: domain.NowMillis(),
	}
	if err := repo.CreateNode(c.Context, n); err != nil {
		return err
	}
	if generated {
		notice(c, "agent key (configure it on the node, it is not shown again): %s", key)
	}
	return render(c, newNodeView(n))
}

func nodeList(c *cli.Context) error {
	repo, err := repository(c)
	if err != nil {
		return err
	}
	nodes, err := repo.ListNodes(c.Context)
	if err != nil {
		return err
	}
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, newNodeView(n))
	}
	return render(c, views)
}
