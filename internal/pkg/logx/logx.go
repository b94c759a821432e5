/*
Package logx provides a structured logging wrapper based on zerolog.

It initializes the global logger for the chat server, selects console or JSON output
depending on the environment, and offers key-value helpers for the common log levels.
*/
package logx

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger configures the global zerolog instance.
// Pretty output writes human-readable lines to stderr; otherwise JSON is written to stdout.
// An unparsable level falls back to info.
func InitGlobalLogger(level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	log.Logger = logger.Level(lvl).With().Caller().Logger()
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Ctx returns the request-scoped logger stored by RequestLogger, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return Logger()
}

// checkFields drops an odd-length key-value list so zerolog never receives a dangling key.
func checkFields(level string, fields []any) []any {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_level", level).
			Msg("logx call received an odd number of fields, fields ignored")
		return nil
	}
	return fields
}

// Info records a message at the Info level with optional key-value fields.
func Info(msg string, fields ...any) {
	fields = checkFields("info", fields)

	Logger().Info().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Warn records a message at the Warn level with optional key-value fields.
func Warn(msg string, fields ...any) {
	fields = checkFields("warn", fields)

	Logger().Warn().
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Error records an error at the Error level with optional key-value fields.
func Error(err error, msg string, fields ...any) {
	fields = checkFields("error", fields)

	Logger().Error().
		Err(err).
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}

// Fatal records an error at the Fatal level and exits the process.
func Fatal(err error, msg string, fields ...any) {
	fields = checkFields("fatal", fields)

	Logger().Fatal().
		Err(err).
		Fields(fields).
		CallerSkipFrame(1).
		Msg(msg)
}
