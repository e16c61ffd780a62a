package observability

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process logger. TOOLHOST_LOG_LEVEL selects
// the level (default info); TOOLHOST_LOG_FORMAT=json skips the console
// writer for machine-readable output.
func InitLogger(app string) zerolog.Logger {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(os.Getenv("TOOLHOST_LOG_LEVEL")); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var logger zerolog.Logger
	if strings.EqualFold(os.Getenv("TOOLHOST_LOG_FORMAT"), "json") {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
	logger = logger.Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
