package main

import (
	"github.com/urfave/cli/v3"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "trianswer",
		Usage: "Answer every question in several styles at once",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"f"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("TRIANSWER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Base URL of a running server (client commands)",
				Value:   "http://127.0.0.1:8080",
				Sources: cli.EnvVars("TRIANSWER_URL"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key sent by client commands",
				Sources: cli.EnvVars("TRIANSWER_CLIENT_KEY"),
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newAskCommand(),
			newHistoryCommand(),
			newClearCommand(),
			newThemeCommand(),
		},
	}
}
