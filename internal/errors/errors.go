// Package errors defines the structured error type shared by every
// component. Each error carries a Kind that identifies which contract was
// violated; callers branch on the kind, never on message text.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the contract it violates.
type Kind string

const (
	// KindConfig marks invalid or missing configuration, including a vault
	// path that does not exist or is not a directory.
	KindConfig Kind = "config"

	// KindIndexNotFound means no index has ever been built for this vault.
	KindIndexNotFound Kind = "index_not_found"

	// KindIndexCorrupt means index data exists but fails structural
	// validation. Corruption is never silently treated as an empty index.
	KindIndexCorrupt Kind = "index_corrupt"

	// KindProvider marks failures of the external embedding or rerank
	// provider: unreachable, timeout, or malformed response.
	KindProvider Kind = "provider"

	// KindChannel marks daemon communication failures after a connection
	// was established.
	KindChannel Kind = "channel"

	// KindInternal is the catch-all for bugs and unexpected conditions.
	KindInternal Kind = "internal"
)

// Error is the structured error type. Path is the file or resource the
// error concerns, when there is one; Suggestion is an actionable hint
// surfaced to the user.
type Error struct {
	Kind       Kind
	Message    string
	Path       string
	Suggestion string
	Cause      error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two Errors by kind, enabling errors.Is with sentinel-style
// comparisons such as errors.Is(err, &Error{Kind: KindProvider}).
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithPath records the file or resource the error concerns.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithSuggestion adds an actionable hint for the user.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a kind and message. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf reports the kind of err, unwrapping as needed.
// Plain errors report KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
