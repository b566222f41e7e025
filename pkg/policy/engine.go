package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/lifecycle/pkg/component"
	"github.com/openfroyo/lifecycle/pkg/telemetry"
)

// EngineConfig configures a policy engine.
type EngineConfig struct {
	// Logger receives engine logs. Nil discards them.
	Logger *zerolog.Logger

	// Events, when set, receives a policy.violation event per violation.
	Events *telemetry.EventPublisher

	// Inventory lists the components already registered, exposed to
	// policies as input.registry. Nil exposes an empty registry.
	Inventory func() []component.Info

	// Environment is passed to policies as input.context.environment.
	Environment string

	// DisableBuiltins skips loading the built-in policies.
	DisableBuiltins bool
}

// Engine evaluates Rego admission policies against component descriptors.
// It implements component.Admitter.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	paths    []string
	cfg      EngineConfig
	logger   zerolog.Logger
	loader   *Loader
}

var _ component.Admitter = (*Engine)(nil)

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	pkg      string
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("module", "policy").Logger()
	}

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		cfg:      cfg,
		logger:   logger,
	}
	e.loader = NewLoader(&e.logger)

	if !cfg.DisableBuiltins {
		if err := e.loadBuiltinPolicies(ctx); err != nil {
			return nil, fmt.Errorf("failed to load built-in policies: %w", err)
		}
	}

	return e, nil
}

// Admit rejects d when any enabled policy reports a blocking violation.
// Non-blocking violations are logged and published but let d through.
func (e *Engine) Admit(ctx context.Context, d *component.Descriptor) error {
	result, err := e.Evaluate(ctx, d)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		e.logger.Warn().
			Str("component", d.Name).
			Str("policy", w.Policy).
			Msg(w.Message)
	}

	if result.Allowed {
		return nil
	}

	e.logger.Error().
		Str("component", d.Name).
		Int("violations", len(result.Violations)).
		Msg("registration rejected by policy")

	return &RejectionError{
		Component:  d.Name,
		Violations: result.Violations,
	}
}

// Evaluate runs every enabled policy against d.
func (e *Engine) Evaluate(ctx context.Context, d *component.Descriptor) (*Result, error) {
	startTime := time.Now()

	var registered []component.Info
	if e.cfg.Inventory != nil {
		registered = e.cfg.Inventory()
	}
	input := NewInput(d, registered, e.cfg.Environment)

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{
		Allowed:           true,
		EvaluatedPolicies: make([]string, 0, len(e.policies)),
	}

	for _, cp := range e.sortedLocked() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("component", d.Name).
				Msg("policy evaluation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		for _, v := range violations {
			if e.cfg.Events != nil {
				_ = e.cfg.Events.PublishPolicyViolation(v.Component, v.Policy, v.Message, string(v.Severity))
			}
			if v.Severity.Blocking() {
				result.Violations = append(result.Violations, v)
				result.Allowed = false
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.EvaluatedAt = time.Now()
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Str("component", d.Name).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("policy evaluation completed")

	return result, nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, input.Component.Name))
		}
	}

	// Set iteration order is not stable across evaluations.
	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Message < violations[j].Message
	})

	return violations, nil
}

// createViolation creates a Violation from one member of a deny set.
func createViolation(policy *Policy, result interface{}, componentName string) Violation {
	violation := Violation{
		Policy:    policy.Name,
		Component: componentName,
		Severity:  policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compilePolicy parses and prepares a policy for evaluation.
func compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	if policy.Name == "" {
		return nil, fmt.Errorf("policy name is required")
	}

	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return nil, fmt.Errorf("policy %s is empty", policy.Name)
	}
	pkg := module.Package.Path.String()

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(pkg+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		pkg:      pkg,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// AddPolicy compiles and installs a policy, replacing any with the same name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	cp, err := compilePolicy(ctx, &policy)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[policy.Name] = cp
	e.mu.Unlock()

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", cp.pkg).
		Msg("policy compiled")

	return nil
}

// LoadPolicies loads policy files and directories and remembers the paths
// for ReloadPolicies and Watch. Nothing is installed unless every policy
// compiles.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	if err := e.replaceCustom(ctx, policies); err != nil {
		return err
	}

	e.mu.Lock()
	e.paths = append([]string(nil), paths...)
	e.mu.Unlock()

	e.logger.Info().
		Int("count", len(policies)).
		Msg("policies loaded")

	return nil
}

// replaceCustom swaps every non-builtin policy for policies.
func (e *Engine) replaceCustom(ctx context.Context, policies []Policy) error {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for i := range policies {
		cp, err := compilePolicy(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}
	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.AddPolicy(ctx, builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("built-in policies loaded")

	return nil
}

// ReloadPolicies re-reads the paths given to LoadPolicies.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.RLock()
	paths := append([]string(nil), e.paths...)
	e.mu.RUnlock()

	e.loader.ClearCache()
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}
	return e.replaceCustom(ctx, policies)
}

// Watch reloads custom policies whenever files under the loaded paths
// change, until ctx is cancelled. A reload that fails to compile keeps the
// previous policies.
func (e *Engine) Watch(ctx context.Context) error {
	e.mu.RLock()
	paths := append([]string(nil), e.paths...)
	e.mu.RUnlock()

	if len(paths) == 0 {
		return fmt.Errorf("no policy paths loaded")
	}

	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.replaceCustom(ctx, policies)
	})
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	p := *cp.policy
	return &p, nil
}

// ListPolicies returns all loaded policies ordered by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sorted := e.sortedLocked()
	policies := make([]Policy, 0, len(sorted))
	for _, cp := range sorted {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	cp.policy.UpdatedAt = time.Now()
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("policy toggled")

	return nil
}

// Close stops any running watch.
func (e *Engine) Close() error {
	return e.loader.StopWatching()
}

func (e *Engine) sortedLocked() []*compiledPolicy {
	sorted := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		sorted = append(sorted, cp)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].policy.Name, sorted[j].policy.Name) < 0
	})
	return sorted
}
