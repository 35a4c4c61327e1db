// Package logger holds the CLI's user-facing logger.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// L writes human readable messages to stderr.
var L = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
	With().Timestamp().Logger()

// SetVerbose switches L between info and debug output.
func SetVerbose(verbose bool) {
	if verbose {
		L = L.Level(zerolog.DebugLevel)
		return
	}
	L = L.Level(zerolog.InfoLevel)
}
