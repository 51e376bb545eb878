package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FormatForCLI renders an error for terminal display: message, the
// affected path when known, and a hint when one exists. Internal chains
// and stack context stay out of user output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !stderrors.As(err, &e) {
		return fmt.Sprintf("Error: %s\n", err.Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", e.Message))
	if e.Path != "" {
		sb.WriteString(fmt.Sprintf("  Path: %s\n", e.Path))
	}
	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", e.Suggestion))
	}
	return sb.String()
}

// FormatForLog returns slog attributes for structured logging.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	var e *Error
	if !stderrors.As(err, &e) {
		return map[string]any{"error": err.Error()}
	}

	attrs := map[string]any{
		"error_kind": string(e.Kind),
		"message":    e.Message,
	}
	if e.Path != "" {
		attrs["path"] = e.Path
	}
	if e.Cause != nil {
		attrs["cause"] = e.Cause.Error()
	}
	return attrs
}

// ExitCode maps an error to a process exit code. Success is 0; each kind
// gets a stable non-zero code so scripts can branch on failure class.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 2
	case KindIndexNotFound:
		return 3
	case KindIndexCorrupt:
		return 4
	case KindProvider:
		return 5
	case KindChannel:
		return 6
	default:
		return 1
	}
}
