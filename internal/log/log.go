package log

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

func Get() *zerolog.Logger {
	return &Logger
}

func Level(l zerolog.Level) {
	Logger = Logger.Level(l)
}

type loggerKey struct{}

func Set(ctx context.Context, lg *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, lg)
}

// Ctx returns the logger carried by ctx, falling back to the package logger
// for contexts that never went through Set.
func Ctx(ctx context.Context) *zerolog.Logger {
	if lg, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok {
		return lg
	}
	return &Logger
}
