package component

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a registered component.
type Status string

const (
	// StatusUninitialized is the status of a freshly registered component.
	StatusUninitialized Status = "uninitialized"

	// StatusInitialized indicates init succeeded and the component is ready to start.
	StatusInitialized Status = "initialized"

	// StatusRunning indicates the component is started.
	StatusRunning Status = "running"

	// StatusSuspended indicates a running component has been paused.
	StatusSuspended Status = "suspended"

	// StatusError indicates a callback failed. It is terminal until the
	// component is unregistered and registered again.
	StatusError Status = "error"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusUninitialized,
	StatusInitialized,
	StatusRunning,
	StatusSuspended,
	StatusError,
}

// IsReady returns true if dependents may rely on the component.
func (s Status) IsReady() bool {
	return s == StatusInitialized || s == StatusRunning
}

// IsLive returns true if the component has been started and not stopped.
func (s Status) IsLive() bool {
	return s == StatusRunning || s == StatusSuspended
}

// IsTerminal returns true for the error status.
func (s Status) IsTerminal() bool {
	return s == StatusError
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusUninitialized, StatusInitialized, StatusRunning, StatusSuspended, StatusError:
		return nil
	default:
		return fmt.Errorf("invalid component status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Status(str)
	return s.Validate()
}

// Operation is a lifecycle operation applied to a single component.
type Operation string

const (
	OperationInit    Operation = "init"
	OperationDeinit  Operation = "deinit"
	OperationStart   Operation = "start"
	OperationStop    Operation = "stop"
	OperationSuspend Operation = "suspend"
	OperationResume  Operation = "resume"
)

// Validate checks if the operation is valid.
func (o Operation) Validate() error {
	switch o {
	case OperationInit, OperationDeinit, OperationStart, OperationStop, OperationSuspend, OperationResume:
		return nil
	default:
		return fmt.Errorf("invalid lifecycle operation: %s", o)
	}
}

// BulkOperation names an operation applied across the whole registry.
type BulkOperation string

const (
	BulkBringUp  BulkOperation = "bring_up_all"
	BulkStart    BulkOperation = "start_all"
	BulkStop     BulkOperation = "stop_all"
	BulkDeinit   BulkOperation = "deinit_all"
	BulkShutdown BulkOperation = "shutdown_all"
)

// Priority orders components during bulk operations. Lower values are
// brought up earlier and shut down later.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
	PriorityIdle     Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityCritical: "critical",
	PriorityHigh:     "high",
	PriorityNormal:   "normal",
	PriorityLow:      "low",
	PriorityIdle:     "idle",
}

// String returns the level name for named priorities and the number otherwise.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return strconv.Itoa(int(p))
}

// ParsePriority accepts a level name (case-insensitive) or an integer.
// An empty string yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return PriorityNormal, nil
	}
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid priority %q", s)
	}
	return Priority(n), nil
}

// MarshalJSON encodes the priority as its String form.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either a level name or a number.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Priority(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParsePriority(str)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
