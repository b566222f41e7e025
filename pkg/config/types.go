package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/lifecycle/pkg/telemetry"
)

// Config is the process configuration for lifecycle tooling.
type Config struct {
	// Registry bounds the component registry.
	Registry RegistryConfig `yaml:"registry" json:"registry"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry *telemetry.Config `yaml:"telemetry" json:"telemetry" validate:"required"`

	// Journal configures the SQLite transition journal.
	Journal JournalConfig `yaml:"journal" json:"journal"`

	// Policy configures registration admission policies.
	Policy PolicyConfig `yaml:"policy" json:"policy"`
}

// RegistryConfig bounds the component registry and dependency checks.
type RegistryConfig struct {
	// MaxComponents caps registrations. Zero means unlimited.
	MaxComponents int `yaml:"max_components" json:"max_components" validate:"gte=0"`

	// MaxDependencyDepth bounds cycle detection. Zero selects the default.
	MaxDependencyDepth int `yaml:"max_dependency_depth" json:"max_dependency_depth" validate:"gte=0,lte=4096"`
}

// JournalConfig configures the transition journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the SQLite database file. ":memory:" keeps it in process.
	Path string `yaml:"path" json:"path" validate:"required_if=Enabled true"`

	// Retention prunes history older than this on startup. Zero keeps everything.
	Retention time.Duration `yaml:"retention" json:"retention" validate:"gte=0"`
}

// PolicyConfig configures registration admission.
type PolicyConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Paths lists policy files or directories to load on startup.
	Paths []string `yaml:"paths" json:"paths" validate:"dive,required"`

	// Watch reloads policies when files under Paths change.
	Watch bool `yaml:"watch" json:"watch"`

	// DisableBuiltins skips the built-in policy set.
	DisableBuiltins bool `yaml:"disable_builtins" json:"disable_builtins"`
}

// Manifest declares a set of components to register.
type Manifest struct {
	// Name identifies the manifest in logs.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Components are registered in the order listed.
	Components []ComponentSpec `yaml:"components" json:"components" validate:"dive"`

	// SourceFile is the path the manifest was read from.
	SourceFile string `yaml:"-" json:"-"`
}

// ComponentSpec is the declarative form of a component descriptor.
type ComponentSpec struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`

	// Priority is a level name or a non-negative integer. Empty means normal.
	Priority string `yaml:"priority,omitempty" json:"priority,omitempty"`

	// Requires and Uses are shorthands for mandatory and optional dependencies.
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty" validate:"dive,required"`
	Uses     []string `yaml:"uses,omitempty" json:"uses,omitempty" validate:"dive,required"`

	// Dependencies lists dependencies in long form.
	Dependencies []DependencySpec `yaml:"dependencies,omitempty" json:"dependencies,omitempty" validate:"dive"`

	// Simulate describes scripted callback behavior for dry runs.
	Simulate *SimulateSpec `yaml:"simulate,omitempty" json:"simulate,omitempty"`
}

// DependencySpec is one dependency in long form.
type DependencySpec struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Optional bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// SimulateSpec scripts the callbacks of a simulated component.
type SimulateSpec struct {
	// FailOn lists operations whose callback fails.
	FailOn []string `yaml:"fail_on,omitempty" json:"fail_on,omitempty" validate:"dive,oneof=init deinit start stop suspend resume"`

	// Code is the component-specific code carried by injected failures.
	Code int `yaml:"code,omitempty" json:"code,omitempty"`

	// Delay is added to every callback.
	Delay string `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// Fails reports whether the callback for op is scripted to fail.
func (s *SimulateSpec) Fails(op string) bool {
	if s == nil {
		return false
	}
	for _, f := range s.FailOn {
		if f == op {
			return true
		}
	}
	return false
}

// DelayDuration parses Delay, returning zero when it is unset.
func (s *SimulateSpec) DelayDuration() (time.Duration, error) {
	if s == nil || s.Delay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Delay)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", s.Delay, err)
	}
	return d, nil
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path to the error (e.g., "components.0.name").
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

// String formats the error as file:line:col: message.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem found in one source.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].String()
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return fmt.Sprintf("%d validation errors: %s", len(errs), strings.Join(parts, "; "))
}
