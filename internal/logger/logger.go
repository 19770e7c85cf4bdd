package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const appName = "aviation-risk"

var once sync.Once

// Init configures the global zerolog logger. Only the first call has any effect.
func Init(level string, console bool) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(level))

		base := log.With().Str("app", appName).Logger()
		if console {
			base = base.Output(zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: "02-01-2006 15:04:05.000",
			})
		}
		log.Logger = base
		log.Debug().Str("level", zerolog.GlobalLevel().String()).Msg("logger initialized")
	})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO", "":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "DISABLED", "OFF":
		return zerolog.Disabled
	default:
		log.Warn().Str("level", level).Msg("unknown log level, defaulting to INFO")
		return zerolog.InfoLevel
	}
}
