package config

import (
	"strings"
	"testing"
)

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	got := strings.Join(sr.ListSchemas(), ",")
	if got != "component,dependency,manifest,simulate" {
		t.Fatalf("unexpected built-in schemas: %s", got)
	}

	for _, name := range sr.ListSchemas() {
		schema, ok := sr.GetSchema(name)
		if !ok {
			t.Fatalf("built-in schema %s not found", name)
		}
		if schema.Err() != nil {
			t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
		}
	}
}

func TestSchemaRegistry_RegisterSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	err := sr.RegisterSchema("custom", "#Custom", `
#Custom: {
	field1: string
	field2: int
}
`)
	if err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	if err := sr.ValidateAgainstSchema("custom", map[string]interface{}{"field1": "a", "field2": 1}); err != nil {
		t.Errorf("expected valid data, got %v", err)
	}
	if err := sr.ValidateAgainstSchema("custom", map[string]interface{}{"field1": 1, "field2": 1}); err == nil {
		t.Error("expected type mismatch to fail")
	}

	if err := sr.RegisterSchema("broken", "#Broken", "#Broken: {"); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", "#Missing", "#Other: string"); err == nil {
		t.Error("expected missing definition error")
	}
	if err := sr.ValidateAgainstSchema("nope", struct{}{}); err == nil {
		t.Error("expected unknown schema error")
	}
}

func TestSchemaRegistry_ValidateComponent(t *testing.T) {
	sr := NewSchemaRegistry()

	tests := []struct {
		name    string
		spec    ComponentSpec
		wantErr bool
	}{
		{
			name: "minimal",
			spec: ComponentSpec{Name: "net"},
		},
		{
			name: "full",
			spec: ComponentSpec{
				Name:         "web",
				Version:      "1.0.0",
				Priority:     "low",
				Requires:     []string{"net"},
				Uses:         []string{"cache"},
				Dependencies: []DependencySpec{{Name: "disk", Optional: true}},
				Simulate:     &SimulateSpec{FailOn: []string{"start"}, Code: 3, Delay: "10ms"},
			},
		},
		{
			name: "numeric priority",
			spec: ComponentSpec{Name: "bg", Priority: "7"},
		},
		{
			name:    "unknown priority",
			spec:    ComponentSpec{Name: "bg", Priority: "urgent"},
			wantErr: true,
		},
		{
			name:    "name with spaces",
			spec:    ComponentSpec{Name: "my component"},
			wantErr: true,
		},
		{
			name:    "unknown operation",
			spec:    ComponentSpec{Name: "x", Simulate: &SimulateSpec{FailOn: []string{"explode"}}},
			wantErr: true,
		},
		{
			name:    "bad delay",
			spec:    ComponentSpec{Name: "x", Simulate: &SimulateSpec{Delay: "soon"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateComponent(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateComponent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidateManifest(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.ValidateManifest(&Manifest{Name: "empty"}); err != nil {
		t.Errorf("expected empty manifest to validate, got %v", err)
	}

	m := &Manifest{Components: []ComponentSpec{{Name: "ok"}, {Name: ""}}}
	if err := sr.ValidateManifest(m); err == nil {
		t.Error("expected empty component name to fail")
	}
}
