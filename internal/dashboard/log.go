package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

func (c *Controller) logDebug(msg string, attrs ...any) {
	c.log(slog.LevelDebug, msg, attrs...)
}

func (c *Controller) logInfo(msg string, attrs ...any) {
	c.log(slog.LevelInfo, msg, attrs...)
}

func (c *Controller) logWarn(msg string, attrs ...any) {
	c.log(slog.LevelWarn, msg, attrs...)
}

func (c *Controller) logError(msg string, attrs ...any) {
	c.log(slog.LevelError, msg, attrs...)
}

// log writes to slog and, if the level is enabled, mirrors the record into
// the activity panel. Debug records are never mirrored.
func (c *Controller) log(level slog.Level, msg string, attrs ...any) {
	slog.Log(context.Background(), level, msg, attrs...)

	if level < slog.LevelInfo || !slog.Default().Enabled(context.Background(), level) {
		return
	}
	component := extractComponent(attrs...)
	c.state.AddLog(level.String(), component, formatLogMessage(level.String(), msg, attrs...))
}

// extractComponent extracts the "component" value from attrs
func extractComponent(attrs ...any) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		if key, ok := attrs[i].(string); ok && key == "component" {
			if val, ok := attrs[i+1].(string); ok {
				return val
			}
		}
	}
	return ""
}

// formatLogMessage formats a message with key-value pairs as JSON for display
func formatLogMessage(level, msg string, attrs ...any) string {
	// Build a struct to ensure consistent field order
	type logEntry struct {
		Time  string `json:"time"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}

	baseJSON, _ := json.Marshal(logEntry{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: level,
		Msg:   msg,
	})
	parts := []string{strings.TrimSuffix(string(baseJSON), "}")}

	for i := 0; i+1 < len(attrs); i += 2 {
		key := fmt.Sprint(attrs[i])
		if key == "component" {
			continue
		}
		val := attrs[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		valJSON, _ := json.Marshal(val)
		parts = append(parts, fmt.Sprintf(`"%s":%s`, key, valJSON))
	}

	return strings.Join(parts, ",") + "}"
}
