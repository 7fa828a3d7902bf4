// salesfeed subscribes to live marketplace sales and fans them out to
// notification, persistence and stats consumers.
//
// Usage:
//
//	salesfeed run --config configs/salesfeed.yaml
//	salesfeed stream --config configs/salesfeed.yaml --topic madlads
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/salesfeed/internal/version"
)

const serviceName = "salesfeed"

func main() {
	app := &cli.App{
		Name:    serviceName,
		Usage:   "Live marketplace sales feed",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/salesfeed.yaml",
				Usage:   "path to config file",
				EnvVars: []string{"SALESFEED_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "text or json",
			},
		},
		Commands: []*cli.Command{
			runCmd(),
			streamCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the global flags and installs it as the default.
func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.String("log-level"), err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", c.String("log-format"))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
