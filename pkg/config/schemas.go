package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Each schema is a
// definition looked up from compiled CUE source.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	for name, def := range builtinDefinitions {
		if err := sr.RegisterSchema(name, def, builtinManifestSchema); err != nil {
			// Built-in sources are constants; failing here is a programming error.
			panic(err)
		}
	}

	return sr
}

// Context returns the CUE context schemas are compiled in. Values unified
// with a schema must come from the same context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles source and registers its definition def (for
// example "#Manifest") under name.
func (sr *SchemaRegistry) RegisterSchema(name, def, source string) error {
	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	schema := val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s: definition %s not found", name, def)
	}

	sr.mu.Lock()
	sr.schemas[name] = schema
	sr.mu.Unlock()
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with the named schema and requires a concrete result.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema encodes data and validates it against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateManifest validates a manifest against the manifest schema.
func (sr *SchemaRegistry) ValidateManifest(m *Manifest) error {
	if m.Components == nil {
		cp := *m
		cp.Components = []ComponentSpec{}
		m = &cp
	}
	return sr.ValidateAgainstSchema("manifest", m)
}

// ValidateComponent validates one component spec against the component schema.
func (sr *SchemaRegistry) ValidateComponent(spec ComponentSpec) error {
	return sr.ValidateAgainstSchema("component", spec)
}

var builtinDefinitions = map[string]string{
	"manifest":   "#Manifest",
	"component":  "#Component",
	"dependency": "#Dependency",
	"simulate":   "#Simulate",
}

const builtinManifestSchema = `
#Operation: "init" | "deinit" | "start" | "stop" | "suspend" | "resume"

#Priority: "critical" | "high" | "normal" | "low" | "idle" | =~"^[0-9]+$"

#Name: string & =~"^\\S+$"

// Dependency in long form
#Dependency: {
	name:      #Name
	optional?: bool
}

// Simulate scripts callback behavior for dry runs
#Simulate: {
	fail_on?: [...#Operation]
	code?:    int
	delay?:   =~"^[0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h)$"
}

// Component is the declarative form of a component descriptor
#Component: {
	name:          #Name
	description?:  string
	version?:      string
	priority?:     #Priority
	requires?: [...#Name]
	uses?: [...#Name]
	dependencies?: [...#Dependency]
	simulate?:     #Simulate
}

// Manifest declares a set of components
#Manifest: {
	name?: string
	components: [...#Component]
}
`
