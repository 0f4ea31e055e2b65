// Package main provides the entry point for talorix-cli.
//
// talorix-cli administers the panel's users, nodes, servers and API keys
// directly in the configured store:
//
//	talorix-cli -c /etc/talorix/panel.yaml user add --email a@example.com --username a --password ...
//	talorix-cli -c /etc/talorix/panel.yaml apikey create --user a@example.com --name ci
package main

import (
	"fmt"
	"os"

	"github.com/Talorix/panel/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
