package cmd

import (
	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/keywords/internal/cmd/run"
	"github.com/vinceanalytics/keywords/internal/cmd/serve"
	"github.com/vinceanalytics/keywords/internal/config"
	"github.com/vinceanalytics/keywords/version"
)

func App() *cli.Command {
	return &cli.Command{
		Name:      "keywords",
		Usage:     "Attributes e-commerce purchase revenue to the search engine keywords that first brought each visitor",
		Copyright: "@2024-present",
		Version:   version.VERSION,
		Authors: []any{
			"Geofrey Ernest",
		},
		Commands: []*cli.Command{run.CMD(), serve.CMD()},
		Flags:    config.Flags(),
	}
}
