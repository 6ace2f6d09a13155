package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, the underlying cause is included.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	pe, ok := as(err)
	if !ok {
		return "Error: " + err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(pe.Message)
	sb.WriteString("\n")

	if pe.Suggestion != "" {
		sb.WriteString("  Hint: ")
		sb.WriteString(pe.Suggestion)
		sb.WriteString("\n")
	}

	if debug && pe.Cause != nil {
		sb.WriteString(fmt.Sprintf("  Cause: %v\n", pe.Cause))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", pe.Code))
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	pe, ok := as(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error", pe.Error()),
		slog.String("error_code", pe.Code),
		slog.String("category", string(pe.Category)),
		slog.String("severity", string(pe.Severity)),
	}
	if pe.Cause != nil {
		attrs = append(attrs, slog.String("cause", pe.Cause.Error()))
	}
	for k, v := range pe.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
