package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/lifecycle/pkg/component"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block registration.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity reject a registration.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents an admission rule with its Rego code. The module must
// define a deny set; each member is either a message string or an object
// with message and optional severity fields.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego" yaml:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity" yaml:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Builtin marks policies shipped with the engine.
	Builtin bool `json:"builtin,omitempty" yaml:"-"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at" yaml:"-"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Component is the component that violated the policy.
	Component string `json:"component"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of evaluating every enabled policy against
// one descriptor.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists violations that don't block registration.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists policies whose evaluation failed.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	Component *ComponentInput `json:"component"`
	Registry  []RegistryEntry `json:"registry"`
	Context   *Context        `json:"context"`
}

// ComponentInput is the descriptor under admission.
type ComponentInput struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Version       string            `json:"version"`
	Priority      string            `json:"priority"`
	PriorityLevel int               `json:"priority_level"`
	Dependencies  []DependencyInput `json:"dependencies"`
}

// DependencyInput is one declared dependency.
type DependencyInput struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional"`
}

// RegistryEntry is an already-registered component.
type RegistryEntry struct {
	Name          string `json:"name"`
	Priority      string `json:"priority"`
	PriorityLevel int    `json:"priority_level"`
	Status        string `json:"status"`
}

// Context provides information about the evaluation itself.
type Context struct {
	Operation   string    `json:"operation"`
	Environment string    `json:"environment,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewInput builds policy input for d against the given registry contents.
func NewInput(d *component.Descriptor, registered []component.Info, environment string) *Input {
	deps := make([]DependencyInput, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		deps = append(deps, DependencyInput{Name: dep.Name, Optional: dep.Optional})
	}

	entries := make([]RegistryEntry, 0, len(registered))
	for _, info := range registered {
		entries = append(entries, RegistryEntry{
			Name:          info.Name,
			Priority:      info.Priority.String(),
			PriorityLevel: int(info.Priority),
			Status:        string(info.Status),
		})
	}

	return &Input{
		Component: &ComponentInput{
			Name:          d.Name,
			Description:   d.Description,
			Version:       d.Version,
			Priority:      d.Priority.String(),
			PriorityLevel: int(d.Priority),
			Dependencies:  deps,
		},
		Registry: entries,
		Context: &Context{
			Operation:   "register",
			Environment: environment,
			Timestamp:   time.Now(),
		},
	}
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name" yaml:"name"`

	// Version is the bundle version.
	Version string `json:"version" yaml:"version"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies" yaml:"policies"`
}

// RejectionError is returned by Engine.Admit when blocking violations exist.
type RejectionError struct {
	Component  string
	Violations []Violation
}

func (e *RejectionError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return fmt.Sprintf("component %s violates %d policies: %s",
		e.Component, len(e.Violations), strings.Join(msgs, "; "))
}
