package rescue

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger zerolog.Logger
	maxLvl int
)

func init() {
	InitLogger(2)
}

// InitLogger configures the package logger. Levels range from 1 (errors
// only) to 4 (spam).
func InitLogger(logLvl int) {
	maxLvl = logLvl
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger = zerolog.New(writer).With().Timestamp().Logger()
}

func Log(msgLvl int, printF string, args ...interface{}) {
	if msgLvl > maxLvl {
		return
	}
	switch msgLvl {
	case 1:
		logger.Error().Msgf(printF, args...)
	case 2:
		logger.Info().Msgf(printF, args...)
	case 3:
		logger.Debug().Msgf(printF, args...)
	default:
		logger.Trace().Msgf(printF, args...)
	}
}
