// Package logging redacts structured log output and ships it to an
// optional telemetry sink in batches.
package logging

import (
	"strings"
	"time"
)

// Level is a log severity
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
	LevelPanic Level = "panic"
)

// Entry is one redacted log line as it leaves the process.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// parseLevel converts a zerolog level string to Level.
func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	case "panic":
		return LevelPanic
	default:
		return LevelInfo
	}
}

// entryFromFields builds an Entry from an already redacted zerolog record.
func entryFromFields(raw map[string]any) *Entry {
	entry := &Entry{
		Timestamp: time.Now().UTC(),
		Level:     LevelInfo,
		Fields:    make(map[string]any, len(raw)),
	}

	for k, v := range raw {
		s, isString := v.(string)
		switch {
		case k == "level" && isString:
			entry.Level = parseLevel(s)
		case (k == "message" || k == "msg") && isString:
			entry.Message = s
		case k == "time" && isString:
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				entry.Timestamp = parsed
			}
		case k == "component" && isString:
			entry.Component = s
		case k == "request_id" && isString:
			entry.RequestID = s
		case k == "trace_id" && isString:
			entry.TraceID = s
		default:
			entry.Fields[k] = v
		}
	}

	// An error field on an info line means the caller logged a failure.
	if _, hasError := entry.Fields["error"]; hasError && entry.Level == LevelInfo {
		entry.Level = LevelError
	}

	return entry
}
