// Package logging holds the process-wide logger, a charmbracelet/log logger
// writing to stderr.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// EnvLevel names the environment variable read by ConfigureFromEnv.
const EnvLevel = "DOIPIN_LOG_LEVEL"

var (
	instance *log.Logger
	once     sync.Once
)

// Get returns the shared logger.
func Get() *log.Logger {
	once.Do(func() {
		instance = log.NewWithOptions(os.Stderr, log.Options{
			Level:           log.InfoLevel,
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
		})
	})
	return instance
}

// ParseLevel maps a level name to a log.Level. Unknown names map to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// SetLevel sets the shared logger level from a name such as "debug".
func SetLevel(level string) {
	Get().SetLevel(ParseLevel(level))
}

// ConfigureFromEnv applies EnvLevel when it is set.
func ConfigureFromEnv() {
	if v := os.Getenv(EnvLevel); v != "" {
		SetLevel(v)
	}
}

// SetOutput redirects the shared logger, mostly for tests.
func SetOutput(w io.Writer) {
	Get().SetOutput(w)
}

func Debug(msg string, keyvals ...interface{}) { Get().Debug(msg, keyvals...) }
func Info(msg string, keyvals ...interface{})  { Get().Info(msg, keyvals...) }
func Warn(msg string, keyvals ...interface{})  { Get().Warn(msg, keyvals...) }
func Error(msg string, keyvals ...interface{}) { Get().Error(msg, keyvals...) }
