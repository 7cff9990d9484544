package logparse

import (
	"strings"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// NormalizeLevel maps the many severity spellings seen in the wild onto the
// four entry levels. ok is false when nothing recognizable was found, in which
// case INFO is returned.
func NormalizeLevel(severity string) (level model.Level, ok bool) {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	if l, ok := model.ParseLevel(normalized); ok {
		return l, true
	}

	switch normalized {
	case "TRACE", "TRAC", "TRC", "DEBU", "DEB":
		return model.LevelDebug, true
	case "INFORMATION", "NOTICE":
		return model.LevelInfo, true
	case "WARNING", "WRNG":
		return model.LevelWarn, true
	case "ERRO", "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC":
		return model.LevelError, true
	}

	if len(normalized) >= 4 {
		switch normalized[:4] {
		case "INFO":
			return model.LevelInfo, true
		case "WARN":
			return model.LevelWarn, true
		case "ERRO", "FATA", "CRIT":
			return model.LevelError, true
		case "DEBU", "TRAC":
			return model.LevelDebug, true
		}
	}
	return model.LevelInfo, false
}

// PinoLevel converts pino/bunyan numeric levels (10..60) to an entry level.
func PinoLevel(level int) model.Level {
	switch {
	case level < 30:
		return model.LevelDebug
	case level < 40:
		return model.LevelInfo
	case level < 50:
		return model.LevelWarn
	default:
		return model.LevelError
	}
}
