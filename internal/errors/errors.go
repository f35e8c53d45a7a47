package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType classifies a failure by pipeline concern
type ErrorType int

const (
	// ErrorTypeConfig: unreadable or inconsistent settings
	ErrorTypeConfig ErrorType = iota
	// ErrorTypeValidation: bad caller input
	ErrorTypeValidation
	// FileSystem errors - unreadable or vanished source files
	ErrorTypeFileSystem
	// Parse errors - a backend rejected a file
	ErrorTypeParse
	// Resolution errors - a reference could not be bound to a target
	ErrorTypeResolution
	// Invariant errors - key collisions, dangling edges
	ErrorTypeInvariant
	// Storage errors - cache persistence failures
	ErrorTypeStorage
	// ErrorTypeInternal: a bug
	ErrorTypeInternal
)

// Severity decides whether a run can continue
type Severity int

const (
	// SeverityLow - recorded, processing continues
	SeverityLow Severity = iota
	// SeverityMedium - one file is affected, the run continues
	SeverityMedium
	// SeverityHigh - significant issue, may impact output completeness
	SeverityHigh
	// SeverityCritical - aborts the run
	SeverityCritical
)

// Error carries a category, a severity and diagnostic fields
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic field and returns e for chaining
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// Is matches any *Error of the same type, so errors.Is(err, &Error{Type: T})
// tests the category
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Type == e.Type
	}
	return false
}

// IsFatal reports whether the run must stop
func (e *Error) IsFatal() bool {
	return e.Severity >= SeverityCritical
}

// DetailedString renders the error with its context fields in key order
// and the captured stack
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s\n", e.Severity, e.Type, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "cause: %v\n", e.Cause)
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %v\n", k, e.Context[k])
	}

	if e.StackTrace != "" {
		sb.WriteString("stack:\n")
		sb.WriteString(e.StackTrace)
	}
	return sb.String()
}

var typeNames = [...]string{
	ErrorTypeConfig:     "CONFIG",
	ErrorTypeValidation: "VALIDATION",
	ErrorTypeFileSystem: "FILESYSTEM",
	ErrorTypeParse:      "PARSE",
	ErrorTypeResolution: "RESOLUTION",
	ErrorTypeInvariant:  "INVARIANT",
	ErrorTypeStorage:    "STORAGE",
	ErrorTypeInternal:   "INTERNAL",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "UNKNOWN"
	}
	return typeNames[t]
}

var severityNames = [...]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// stack records up to 8 frames above the constructor that called it
func stack(skip int) string {
	pcs := make([]uintptr, 8)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&sb, "  %s:%d %s\n", f.File, f.Line, f.Function)
		if !more {
			break
		}
	}
	return sb.String()
}

// New creates an error of the given category
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		StackTrace: stack(1),
	}
}

// Wrap attaches a category and message to err. A nil err stays nil.
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		StackTrace: stack(1),
	}
}

// ConfigErrorf reports unusable settings
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationErrorf reports bad caller input
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// FileSystemError wraps a read failure for a single file. The run continues.
func FileSystemError(err error, path string) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityMedium, "read "+path).
		WithContext("path", path)
}

// ParseError wraps a backend failure for a single file. The run continues.
func ParseError(err error, path string) *Error {
	return Wrap(err, ErrorTypeParse, SeverityMedium, "parse "+path).
		WithContext("path", path)
}

// ResolutionErrorf records an unresolved reference. Never raised, only logged.
func ResolutionErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeResolution, SeverityLow, fmt.Sprintf(format, args...))
}

// StorageError wraps a cache persistence failure
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityHigh, message)
}

// InvariantErrorf creates a run-aborting invariant violation
func InvariantErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInvariant, SeverityCritical, fmt.Sprintf(format, args...))
}

// KeyCollision reports two distinct entities that produced the same unique key.
// Both identities are attached so the offending source can be located.
func KeyCollision(key, first, second string) *Error {
	return InvariantErrorf("unique key collision on %q: %s vs %s", key, first, second).
		WithContext("key", key).
		WithContext("first", first).
		WithContext("second", second)
}

// InternalErrorf reports a state that should be unreachable
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err, or anything it wraps, must stop the run
func IsFatal(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.IsFatal()
}

// GetSeverity returns the severity of the first *Error in the chain.
// Plain errors count as medium.
func GetSeverity(err error) Severity {
	var e *Error
	switch {
	case err == nil:
		return SeverityLow
	case stderrors.As(err, &e):
		return e.Severity
	default:
		return SeverityMedium
	}
}

// GetType returns the category of the first *Error in the chain
func GetType(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}
