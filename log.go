package mmip

import (
	"os"

	"github.com/rs/zerolog"
)

// log is the package-level logger. The codec logs sparsely, at debug
// level, the same way the teacher's encoder stays silent unless something
// noteworthy happens — milestones only, never per-block chatter.
var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
	With().Timestamp().Logger().
	Level(zerolog.InfoLevel)

// SetLogLevel adjusts the package logger's verbosity. Valid values are the
// zerolog level names ("debug", "info", "warn", "error", "disabled").
func SetLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	log = log.Level(lvl)
	return nil
}
