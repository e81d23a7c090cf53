package logger

import (
	"log/slog"
	"strings"
)

// Level is a log severity. The zero value is InfoLevel.
type Level slog.Level

const (
	DebugLevel = Level(slog.LevelDebug)
	InfoLevel  = Level(slog.LevelInfo)
	WarnLevel  = Level(slog.LevelWarn)
	ErrorLevel = Level(slog.LevelError)
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	}
	return "unknown"
}

// ParseLevel maps a config value to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

func (l Level) slog() slog.Level { return slog.Level(l) }

// fromSlog rounds lv up to the nearest named level.
func fromSlog(lv slog.Level) Level {
	for _, l := range []Level{DebugLevel, InfoLevel, WarnLevel} {
		if lv <= l.slog() {
			return l
		}
	}
	return ErrorLevel
}
