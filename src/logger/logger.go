package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"clob-engine/src/config"
)

var Logger zerolog.Logger
var logFile *os.File

// InitLogger builds the process logger from cfg and installs it as the
// zerolog global.
func InitLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFile == "" || cfg.LogFile == "none" || cfg.LogFile == "disabled" {
		logFile = nil
	} else {
		logFile, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open log file, using stdout only")
			logFile = nil
		}
	}

	var writers []io.Writer
	if cfg.LogFormat == "pretty" {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		writers = append(writers, os.Stdout)
	}
	if logFile != nil {
		writers = append(writers, logFile)
	}

	Logger = zerolog.New(io.MultiWriter(writers...)).With().
		Timestamp().
		Str("service", "clob-engine").
		Logger()

	log.Logger = Logger

	for _, w := range cfg.Warnings {
		Logger.Warn().Msg(w)
	}

	event := Logger.Info().Str("log_level", level.String())
	if logFile != nil {
		event.Str("log_file", cfg.LogFile).Msg("Logger initialized - writing to console and file")
	} else {
		event.Msg("Logger initialized - writing to console only")
	}
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}

func GetLogger() zerolog.Logger {
	return Logger
}
