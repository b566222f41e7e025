package component

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a lifecycle error for programmatic handling.
type Kind string

const (
	// KindInvalidParam indicates a malformed request such as an empty name.
	KindInvalidParam Kind = "invalid_param"

	// KindNotFound indicates the named component is not registered.
	KindNotFound Kind = "not_found"

	// KindAlreadyRegistered indicates a component with the same name exists.
	KindAlreadyRegistered Kind = "already_registered"

	// KindNoMemory indicates the registry is at capacity.
	KindNoMemory Kind = "no_memory"

	// KindMissingDependency indicates a mandatory dependency is not registered.
	KindMissingDependency Kind = "missing_dependency"

	// KindDependencyNotReady indicates a mandatory dependency is registered
	// but neither initialized nor running.
	KindDependencyNotReady Kind = "dependency_not_ready"

	// KindDependencyCycle indicates the dependency graph contains a cycle or
	// is deeper than the configured bound.
	KindDependencyCycle Kind = "dependency_cycle"

	// KindIllegalTransition indicates the operation is not valid from the
	// component's current status.
	KindIllegalTransition Kind = "illegal_transition"

	// KindInErrorState indicates the component is in the terminal error status.
	KindInErrorState Kind = "in_error_state"

	// KindCallbackFailed indicates a lifecycle callback returned an error.
	KindCallbackFailed Kind = "callback_failed"
)

// Module identifies the engine subsystem that produced an error.
type Module string

const (
	ModuleRegistry     Module = "registry"
	ModuleValidator    Module = "validator"
	ModuleOrchestrator Module = "orchestrator"
)

// Severity grades an error for logging and alerting.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// CodeUnspecified is reported for callback failures that carry no code.
const CodeUnspecified = -1

// Error is the error type returned by every engine operation.
// nolint:revive // component.Error reads naturally at call sites
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Module is the subsystem that raised the error.
	Module Module `json:"module,omitempty"`

	// Severity grades the error.
	Severity Severity `json:"severity,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Component is the component the error relates to, if any.
	Component string `json:"component,omitempty"`

	// Operation is the lifecycle operation in progress, if any.
	Operation Operation `json:"operation,omitempty"`

	// Dependency names the offending dependency for dependency errors.
	Dependency string `json:"dependency,omitempty"`

	// Cycle holds the dependency chain for cycle errors, first node repeated last.
	Cycle []string `json:"cycle,omitempty"`

	// Code is the callback's own failure code for KindCallbackFailed.
	Code int `json:"code,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.Kind))
	sb.WriteString("] ")
	sb.WriteString(e.Message)

	var attrs []string
	if e.Component != "" {
		attrs = append(attrs, "component="+e.Component)
	}
	if e.Operation != "" {
		attrs = append(attrs, "operation="+string(e.Operation))
	}
	if e.Kind == KindCallbackFailed {
		attrs = append(attrs, fmt.Sprintf("code=%d", e.Code))
	}
	if len(attrs) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(attrs, ", "))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidParam       = &Error{Kind: KindInvalidParam, Message: "invalid parameter"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "component not found"}
	ErrAlreadyRegistered  = &Error{Kind: KindAlreadyRegistered, Message: "component already registered"}
	ErrNoMemory           = &Error{Kind: KindNoMemory, Message: "registry capacity exhausted"}
	ErrMissingDependency  = &Error{Kind: KindMissingDependency, Message: "mandatory dependency not registered"}
	ErrDependencyNotReady = &Error{Kind: KindDependencyNotReady, Message: "mandatory dependency not ready"}
	ErrDependencyCycle    = &Error{Kind: KindDependencyCycle, Message: "dependency cycle detected"}
	ErrIllegalTransition  = &Error{Kind: KindIllegalTransition, Message: "illegal state transition"}
	ErrInErrorState       = &Error{Kind: KindInErrorState, Message: "component is in error state"}
	ErrCallbackFailed     = &Error{Kind: KindCallbackFailed, Message: "lifecycle callback failed"}
)

// newError creates an error with the default severity for its kind.
func newError(kind Kind, module Module, message string) *Error {
	return &Error{
		Kind:     kind,
		Module:   module,
		Severity: defaultSeverity(kind),
		Message:  message,
	}
}

func defaultSeverity(kind Kind) Severity {
	switch kind {
	case KindDependencyNotReady, KindMissingDependency:
		return SeverityWarning
	case KindDependencyCycle, KindCallbackFailed, KindNoMemory:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// WithComponent adds component context to an error.
func (e *Error) WithComponent(name string) *Error {
	e.Component = name
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(op Operation) *Error {
	e.Operation = op
	return e
}

// WithDependency records the offending dependency.
func (e *Error) WithDependency(name string) *Error {
	e.Dependency = name
	return e
}

// WithSeverity overrides the default severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// SeverityOf returns the severity of the first *Error in err's chain.
// Foreign errors are graded SeverityError.
func SeverityOf(err error) Severity {
	var e *Error
	if errors.As(err, &e) && e.Severity != "" {
		return e.Severity
	}
	return SeverityError
}

// CycleOf returns the dependency chain recorded on a cycle error.
func CycleOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Cycle
	}
	return nil
}

// CodeOf returns the callback failure code carried by err, or CodeUnspecified.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindCallbackFailed {
		return e.Code
	}
	var coded Coder
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeUnspecified
}

// IsNotFound returns true if err is a KindNotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAlreadyRegistered returns true if err is a KindAlreadyRegistered error.
func IsAlreadyRegistered(err error) bool { return KindOf(err) == KindAlreadyRegistered }

// IsDependencyError returns true for missing, not-ready and cycle errors.
func IsDependencyError(err error) bool {
	switch KindOf(err) {
	case KindMissingDependency, KindDependencyNotReady, KindDependencyCycle:
		return true
	default:
		return false
	}
}

// IsIllegalTransition returns true if err is a KindIllegalTransition error.
func IsIllegalTransition(err error) bool { return KindOf(err) == KindIllegalTransition }

// IsCallbackFailure returns true if err is a KindCallbackFailed error.
func IsCallbackFailure(err error) bool { return KindOf(err) == KindCallbackFailed }

// Coder is implemented by callback errors that carry a numeric failure code.
type Coder interface {
	Code() int
}

// CallbackError is a convenience error for callbacks that report a code.
type CallbackError struct {
	code    int
	message string
}

// NewCallbackError returns an error carrying code for use as a callback result.
func NewCallbackError(code int, message string) error {
	return &CallbackError{code: code, message: message}
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.message, e.code)
}

// Code returns the failure code.
func (e *CallbackError) Code() int {
	return e.code
}
