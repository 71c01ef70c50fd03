package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the zerolog output.
type Config struct {
	// Level is debug, info, warn or error. Default: info.
	Level string
	// Format is json or console. Default: json.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New returns a zerolog-backed Logger.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

type zeroLogger struct {
	zl zerolog.Logger
}

func (l *zeroLogger) Debug(msg string, ctx Fields) { l.zl.Debug().Fields(map[string]any(ctx)).Msg(msg) }
func (l *zeroLogger) Info(msg string, ctx Fields)  { l.zl.Info().Fields(map[string]any(ctx)).Msg(msg) }
func (l *zeroLogger) Warn(msg string, ctx Fields)  { l.zl.Warn().Fields(map[string]any(ctx)).Msg(msg) }
func (l *zeroLogger) Error(msg string, ctx Fields) { l.zl.Error().Fields(map[string]any(ctx)).Msg(msg) }

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
