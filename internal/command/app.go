package command

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/vasialek/openaio-api/internal/config"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// InitApp builds the root command. The config file is resolved before the
// flags are parsed so that flags can read their values from it.
func InitApp(_ context.Context, args []string) (*cli.Command, error) {
	explicit := configFlagValue(args)
	cfg, err := config.Load(explicit)
	if err != nil {
		// Only a file that was asked for has to exist.
		if !errors.Is(err, config.ErrNotFound) || explicit != "" || os.Getenv(config.EnvVar) != "" {
			return nil, err
		}
	}
	for _, key := range unknownKeys(cfg) {
		log.WithFields(log.Fields{"config": cfg.Source, "key": key}).Warn("unknown config key")
	}
	return newApp(cfg, serve), nil
}

func newApp(cfg config.Type, action func(context.Context, settings) error) *cli.Command {
	app := &cli.Command{
		Name:    "openaio-api",
		Usage:   "cached JSON API over the drop list and shop pages",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(cfg, action),
		},
	}

	// Make sure flags are sorted for the --help text.
	for _, cmd := range app.Commands {
		sort.Slice(cmd.Flags, func(i, j int) bool {
			return cmd.Flags[i].Names()[0] < cmd.Flags[j].Names()[0]
		})
	}
	return app
}

// configFlagValue finds --config in args ahead of flag parsing.
func configFlagValue(args []string) string {
	for i, a := range args {
		for _, name := range []string{"--config", "-config"} {
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(a, name+"="); ok {
				return v
			}
		}
	}
	return ""
}
