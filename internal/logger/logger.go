// Package logger configures the process-wide structured logger used by
// every other package in this repository.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the global logger's level and output format.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for local development
	Output     io.Writer
	WithCaller bool
}

// Init configures the global zerolog logger (github.com/rs/zerolog/log)
// from cfg. Every package in this repository logs through that global
// logger rather than carrying its own *zerolog.Logger, matching the
// convention already used by pkg/engine and pkg/storesource.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).With().Timestamp().Str("service", "idxadvisor").Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	log.Logger = zlog
}
