package logger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mama165/sdk-go/logs"
)

// GlobalLogger backs the package-level helpers used by main and the HTTP
// handlers. Components get their own *slog.Logger injected.
var GlobalLogger = logs.GetLoggerFromString("INFO")

// New builds a logger for the given level name (DEBUG, INFO, WARN, ERROR).
func New(level string) *slog.Logger {
	return logs.GetLoggerFromString(level)
}

// SetLevel replaces the global logger.
func SetLevel(level string) *slog.Logger {
	GlobalLogger = New(level)
	return GlobalLogger
}

func Info(format string, v ...interface{}) {
	GlobalLogger.Info(fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(fmt.Sprintf(format, v...))
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(fmt.Sprintf(format, v...))
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}
