package serve

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/keywords/internal/api"
	"github.com/vinceanalytics/keywords/internal/config"
	"github.com/vinceanalytics/keywords/internal/log"
)

func CMD() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Runs attribution as an HTTP job service over object storage",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "HTTP address to listen",
				Value:   ":8080",
				Sources: cli.EnvVars("KEYWORDS_LISTEN"),
			},
		}, config.StoreFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(c)
			if err != nil {
				return err
			}
			log.Level(cfg.Level())
			lg := log.Get()
			ctx = log.Set(ctx, lg)
			ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			defer cancel()

			svr := &http.Server{
				Addr:        cfg.Listen,
				Handler:     api.New(cfg).Handler(),
				BaseContext: func(l net.Listener) context.Context { return ctx },
			}
			go func() {
				defer cancel()
				lg.Info().Str("addr", cfg.Listen).Msg("starting job server")
				err = svr.ListenAndServe()
			}()
			<-ctx.Done()
			svr.Shutdown(context.Background())
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
}
