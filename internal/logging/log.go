package logging

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	current.Store(&l)
}

// SetLogger installs l as the process logger and as zerolog's global
// log.Logger.
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
	log.Logger = l
}

// Logger returns the process logger.
func Logger() *zerolog.Logger {
	return current.Load()
}

func Tracef(format string, args ...any) {
	Logger().Trace().Msgf(format, args...)
}

func Debugf(format string, args ...any) {
	Logger().Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	Logger().Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	Logger().Warn().Msgf(format, args...)
}

func Errf(format string, args ...any) {
	Logger().Error().Msgf(format, args...)
}

// Logf writes without a level so it survives any level filter.
func Logf(format string, args ...any) {
	Logger().Log().Msgf(format, args...)
}
