// Package logging provides the shared logger for polichat. Level comes from
// POLICHAT_LOG_LEVEL unless Configure is called with an explicit value.
package logging

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is the global logger instance.
var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("15:04:05")
	Logger.SetLevel(parseLevel(os.Getenv("POLICHAT_LOG_LEVEL")))
}

// Configure resets level and optional log file. CLI flags take precedence
// over the environment.
func Configure(level, file string) error {
	if level == "" {
		level = os.Getenv("POLICHAT_LOG_LEVEL")
	}

	out := os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		out = f
	}

	Logger = log.New(out)
	Logger.SetTimeFormat("15:04:05")
	Logger.SetLevel(parseLevel(level))
	return nil
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}
