package component

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Is(t *testing.T) {
	err := newError(KindNotFound, ModuleRegistry, "component not found").WithComponent("uart")
	wrapped := fmt.Errorf("lookup: %w", err)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("expected wrapped error to match ErrNotFound")
	}
	if errors.Is(wrapped, ErrAlreadyRegistered) {
		t.Error("kinds must not cross-match")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("KindOf = %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf on foreign error should be empty")
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("bus timeout")
	err := callbackFailure("i2c", OperationStart, cause)

	want := "[callback_failed] lifecycle callback failed (component=i2c, operation=start, code=-1): bus timeout"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if err.Module != ModuleOrchestrator || err.Severity != SeverityCritical {
		t.Errorf("module/severity = %s/%s", err.Module, err.Severity)
	}
}

func TestDefaultSeverity(t *testing.T) {
	tests := []struct {
		kind Kind
		want Severity
	}{
		{KindDependencyNotReady, SeverityWarning},
		{KindMissingDependency, SeverityWarning},
		{KindDependencyCycle, SeverityCritical},
		{KindCallbackFailed, SeverityCritical},
		{KindNotFound, SeverityError},
		{KindIllegalTransition, SeverityError},
	}

	for _, tt := range tests {
		if got := SeverityOf(newError(tt.kind, ModuleValidator, "x")); got != tt.want {
			t.Errorf("severity(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
	if SeverityOf(errors.New("foreign")) != SeverityError {
		t.Error("foreign errors grade as error")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewCallbackError(42, "nack")); got != 42 {
		t.Errorf("CodeOf(raw) = %d", got)
	}
	if got := CodeOf(callbackFailure("x", OperationInit, NewCallbackError(3, "crc"))); got != 3 {
		t.Errorf("CodeOf(wrapped) = %d", got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnspecified {
		t.Errorf("CodeOf(plain) = %d", got)
	}
}

func TestIsDependencyError(t *testing.T) {
	for _, kind := range []Kind{KindMissingDependency, KindDependencyNotReady, KindDependencyCycle} {
		if !IsDependencyError(newError(kind, ModuleValidator, "x")) {
			t.Errorf("%s should be a dependency error", kind)
		}
	}
	if IsDependencyError(newError(KindNotFound, ModuleRegistry, "x")) {
		t.Error("not_found is not a dependency error")
	}
}

func TestStatus_Validate(t *testing.T) {
	for _, s := range AllStatuses {
		if err := s.Validate(); err != nil {
			t.Errorf("%s: %v", s, err)
		}
	}
	if err := Status("paused").Validate(); err == nil {
		t.Error("expected invalid status error")
	}
	if !StatusRunning.IsReady() || StatusSuspended.IsReady() {
		t.Error("IsReady mismatch")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityNormal, false},
		{"critical", PriorityCritical, false},
		{"HIGH", PriorityHigh, false},
		{" low ", PriorityLow, false},
		{"7", Priority(7), false},
		{"-1", Priority(-1), false},
		{"urgent", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePriority(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if PriorityIdle.String() != "idle" || Priority(9).String() != "9" {
		t.Error("unexpected Priority.String output")
	}
}
