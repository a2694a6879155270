// Package logging configures the process-wide jwalterweatherman loggers.
package logging

import (
	"os"
	"strings"

	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm/logger"
)

// Setup routes leveled output to stdout at the threshold named by level.
// Unknown levels fall back to info.
func Setup(level string) {
	jww.SetStdoutOutput(os.Stdout)
	jww.SetStdoutThreshold(Threshold(level))
	jww.SetLogThreshold(jww.LevelFatal)
}

func Threshold(level string) jww.Threshold {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return jww.LevelTrace
	case "debug":
		return jww.LevelDebug
	case "warn", "warning":
		return jww.LevelWarn
	case "error":
		return jww.LevelError
	default:
		return jww.LevelInfo
	}
}

// GormLevel maps the application threshold onto gorm's SQL logger.
func GormLevel(level string) logger.LogLevel {
	switch Threshold(level) {
	case jww.LevelTrace, jww.LevelDebug:
		return logger.Info
	case jww.LevelInfo, jww.LevelWarn:
		return logger.Warn
	default:
		return logger.Error
	}
}
