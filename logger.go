package auth

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger adapts a zerolog.Logger to Logger.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

// NewConsoleLogger returns a human friendly zerolog logger writing to out.
func NewConsoleLogger(out io.Writer, level string) Logger {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	zl := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}).Level(lvl).With().Timestamp().Logger()

	return NewZerologLogger(zl)
}

func (l *zerologLogger) Trace(msg string, args ...any) { l.zl.Trace().Fields(args).Msg(msg) }
func (l *zerologLogger) Debug(msg string, args ...any) { l.zl.Debug().Fields(args).Msg(msg) }
func (l *zerologLogger) Info(msg string, args ...any)  { l.zl.Info().Fields(args).Msg(msg) }
func (l *zerologLogger) Warn(msg string, args ...any)  { l.zl.Warn().Fields(args).Msg(msg) }
func (l *zerologLogger) Error(msg string, args ...any) { l.zl.Error().Fields(args).Msg(msg) }

func (l *zerologLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	return &zerologLogger{zl: l.zl.With().Ctx(ctx).Logger()}
}

type zerologProvider struct {
	zl zerolog.Logger
}

// NewZerologProvider returns a LoggerProvider tagging each logger with its name.
func NewZerologProvider(zl zerolog.Logger) LoggerProvider {
	return zerologProvider{zl: zl}
}

func (p zerologProvider) GetLogger(name string) Logger {
	return NewZerologLogger(p.zl.With().Str("logger", name).Logger())
}

// ProviderFromLogger returns a provider that hands out the same logger for every name.
func ProviderFromLogger(logger Logger) LoggerProvider {
	return staticProvider{logger: logger}
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

type noopLogger struct{}

func (noopLogger) Trace(string, ...any)                 {}
func (noopLogger) Debug(string, ...any)                 {}
func (noopLogger) Info(string, ...any)                  {}
func (noopLogger) Warn(string, ...any)                  {}
func (noopLogger) Error(string, ...any)                 {}
func (n noopLogger) WithContext(context.Context) Logger { return n }

// NoopLogger discards everything.
func NoopLogger() Logger {
	return noopLogger{}
}

func defaultLogger() Logger {
	return NewConsoleLogger(os.Stderr, "info")
}

// ResolveLogger picks the logger for a named component. A provider wins over
// the fallback logger, unless it hands back nil for that name.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if resolved := provider.GetLogger(name); resolved != nil {
			return provider, resolved
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return ProviderFromLogger(logger), logger
}
