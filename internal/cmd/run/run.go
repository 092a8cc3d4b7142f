package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/keywords/internal/attr"
	"github.com/vinceanalytics/keywords/internal/config"
	"github.com/vinceanalytics/keywords/internal/hits"
	"github.com/vinceanalytics/keywords/internal/log"
	"github.com/vinceanalytics/keywords/internal/report"
	"github.com/vinceanalytics/keywords/internal/system"
)

func CMD() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Builds the keyword performance report from a hit export",
		ArgsUsage: "<hits.tsv>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Where to write the report, - for stdout",
				Sources: cli.EnvVars("KEYWORDS_OUTPUT"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			input := c.Args().First()
			if input == "" {
				return errors.New("missing hit export argument")
			}
			cfg, err := config.Load(c)
			if err != nil {
				return err
			}
			log.Level(cfg.Level())

			start := time.Now()
			src := hits.NewSource(hits.File(input), cfg.BatchSize)
			acc, stats, err := attr.Run(ctx, src, cfg.Workers)
			if err != nil {
				return err
			}
			res := report.Materialize(acc, stats)

			out := c.String("output")
			if out == "" {
				out = report.DefaultName(time.Now())
			}
			if out == "-" {
				err = res.WriteTSV(os.Stdout)
			} else {
				err = write(res, out)
			}
			if err != nil {
				return err
			}
			system.Observe(res.Stats, time.Since(start))
			log.Get().Info().
				Str("input", input).
				Str("output", out).
				Int64("rows", res.Stats.RowsProcessed).
				Int64("purchases", res.Stats.PurchasesFound).
				Int("keywords", res.Stats.UniqueKeywords).
				Float64("total_revenue", res.Stats.TotalRevenue).
				Dur("elapsed", time.Since(start)).
				Msg("report written")
			return nil
		},
	}
}

func write(res *report.Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	err = res.WriteTSV(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
