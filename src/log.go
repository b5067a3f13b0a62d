package mowas

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// SetupLogging builds the root logger from the logging config section.
// Console output is human-formatted on a terminal and JSON otherwise;
// a file sink can run in parallel. An unknown level falls back to warn.
func SetupLogging(cfg LoggingConfig) (zerolog.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = "warning"
	}
	fallback := false
	var lvl zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warning", "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.WarnLevel
		fallback = true
	}

	var writers []io.Writer
	if boolDefault(cfg.Console, true) {
		if isatty.IsTerminal(os.Stdout.Fd()) {
			writers = append(writers, zerolog.NewConsoleWriter())
		} else {
			writers = append(writers, os.Stdout)
		}
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), configErrorf("cannot open log file %s: %v", cfg.File, err)
		}
		writers = append(writers, f)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	if fallback {
		logger.Warn().Str("level", level).Msg("unknown log level, falling back to warning")
	}
	return logger, nil
}
