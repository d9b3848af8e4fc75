// Package logging provides structured logging for syncbridge using zerolog.
//
// A sync cycle carries its logger in the context, enriched with the
// integration, cycle and order identifiers as the cycle progresses:
//
//	ctx = logging.WithIntegration(ctx, "hubspot")
//	ctx = logging.WithCycleID(ctx, cycleID)
//	logging.FromContext(ctx).Debug().Msg("resolving identity")
package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultLogger is used when a context carries no logger.
var defaultLogger = NewLoggerFromConfig(EnvConfig())

// Default returns the default global logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the default logger and zerolog's global logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

// Info starts an info event on the default logger.
func Info() *zerolog.Event {
	return defaultLogger.Info()
}

// Warn starts a warn event on the default logger.
func Warn() *zerolog.Event {
	return defaultLogger.Warn()
}

// Err starts an error event for err on the default logger.
func Err(err error) *zerolog.Event {
	return defaultLogger.Err(err)
}
