package command

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/Talorix/panel/internal/cli/output"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/infra/buildinfo"
	"github.com/Talorix/panel/internal/infra/confloader"
	"github.com/Talorix/panel/internal/server/config"
	"github.com/Talorix/panel/internal/storage"
	"github.com/Talorix/panel/internal/telemetry/logger"
)

const repoKey = "repo"

// RepoOpener opens the repository the commands operate on.
type RepoOpener func(c *cli.Context) (service.Repository, error)

// App creates the CLI application backed by the configured store.
func App() *cli.App {
	return NewApp(OpenFromConfig)
}

// NewApp creates the CLI application with a custom repository opener.
func NewApp(open RepoOpener) *cli.App {
	return &cli.App{
		Name:    "talorix-cli",
		Usage:   "Talorix panel administration tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			UserCommand(),
			NodeCommand(),
			ServerCommand(),
			APIKeyCommand(),
		},
		Metadata: map[string]any{
			"opener": open,
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
		After: func(c *cli.Context) error {
			if repo, ok := c.App.Metadata[repoKey].(service.Repository); ok {
				delete(c.App.Metadata, repoKey)
				return repo.Close()
			}
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Panel configuration file",
			EnvVars: []string{"TALORIX_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Override storage.backend (memory, badger, sqlite)",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Override storage.data_dir",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// OpenFromConfig loads the panel configuration and opens its store. Only
// the storage section is used.
func OpenFromConfig(c *cli.Context) (service.Repository, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	overrides := map[string]any{}
	if b := c.String("backend"); b != "" {
		overrides["storage.backend"] = b
	}
	if d := c.String("data-dir"); d != "" {
		overrides["storage.data_dir"] = d
	}
	if len(overrides) > 0 {
		opts = append(opts, confloader.WithOverrides(overrides))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: "warn", Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return nil, err
	}
	return storage.Open(c.Context, storage.Config{
		Backend:   cfg.Storage.Backend,
		DataDir:   cfg.Storage.DataDir,
		SQLiteDSN: cfg.Storage.SQLiteDSN,
	}, logger.Slog(log), nil)
}

// repository returns the open repository, opening it on first use.
func repository(c *cli.Context) (service.Repository, error) {
	if repo, ok := c.App.Metadata[repoKey].(service.Repository); ok {
		return repo, nil
	}
	open, ok := c.App.Metadata["opener"].(RepoOpener)
	if !ok {
		return nil, fmt.Errorf("no repository configured")
	}
	repo, err := open(c)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	c.App.Metadata[repoKey] = repo
	return repo, nil
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.NewFormatter(format, c.Bool("wide")).Format(c.App.Writer, data)
}

// notice writes an informational line that is not part of the result.
func notice(c *cli.Context, format string, args ...any) {
	w := c.App.ErrWriter
	if w == nil {
		w = io.Discard
	}
	fmt.Fprintf(w, format+"\n", args...)
}
