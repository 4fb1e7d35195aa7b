package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/NamanBalaji/otad/internal/config"
	"github.com/NamanBalaji/otad/internal/logger"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "otad",
		Usage:   "Firmware update agent",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file",
				Value:   config.Path(),
				EnvVars: []string{"OTAD_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "override the configured rotating log file",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			fetchCommand(),
			statusCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Errorf("%v", err)
		logger.Close()
		fmt.Fprintln(os.Stderr, "otad:", err)
		os.Exit(1)
	}

	logger.Close()
}

// setup loads the configuration and starts logging.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.GetConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	if file := c.String("log-file"); file != "" {
		cfg.Log.File = file
	}

	if err := logger.InitLogging(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, err
	}

	return cfg, nil
}
