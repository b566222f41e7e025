package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ManifestParser reads component manifests written in CUE, YAML or JSON.
// Every manifest is checked against the built-in #Manifest schema and the
// struct constraints of ComponentSpec.
type ManifestParser struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewManifestParser creates a manifest parser. A nil logger discards logs.
func NewManifestParser(logger *zerolog.Logger) *ManifestParser {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("module", "manifest").Logger()
	}
	return &ManifestParser{
		schemas:   NewSchemaRegistry(),
		validator: structValidator(),
		logger:    l,
	}
}

// Schemas returns the schema registry used for validation.
func (mp *ManifestParser) Schemas() *SchemaRegistry {
	return mp.schemas
}

// Load reads manifests from files or directories and merges them in the
// order given. Directories are walked for .cue, .yaml, .yml and .json files
// in lexical order.
func (mp *ManifestParser) Load(ctx context.Context, sources ...string) (*Manifest, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var manifests []*Manifest
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		files := []string{source}
		if info.IsDir() {
			files, err = manifestFiles(source)
			if err != nil {
				return nil, err
			}
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			m, err := mp.LoadFile(file)
			if err != nil {
				return nil, err
			}
			manifests = append(manifests, m)
		}
	}

	merged, err := Merge(manifests...)
	if err != nil {
		return nil, err
	}

	mp.logger.Debug().
		Int("sources", len(sources)).
		Int("components", len(merged.Components)).
		Msg("manifests loaded")

	return merged, nil
}

// LoadFile reads a single manifest, choosing the format by extension.
func (mp *ManifestParser) LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return mp.ParseCUE(data, path)
	case ".yaml", ".yml", ".json":
		return mp.ParseYAML(data, path)
	default:
		return nil, fmt.Errorf("unsupported manifest type: %s", path)
	}
}

// ParseCUE compiles CUE source, unifies it with #Manifest and decodes the
// concrete result.
func (mp *ManifestParser) ParseCUE(src []byte, filename string) (*Manifest, error) {
	val := mp.schemas.Context().CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	unified, err := mp.schemas.Unify("manifest", val)
	if err != nil {
		return nil, convertCUEErrors(err)
	}

	var m Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: failed to decode manifest: %w", filename, err)
	}
	m.SourceFile = filename

	if err := mp.check(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseYAML decodes a YAML (or JSON) manifest and validates it against
// #Manifest. Unknown keys are rejected.
func (mp *ManifestParser) ParseYAML(data []byte, filename string) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%s: failed to parse manifest: %w", filename, err)
	}
	m.SourceFile = filename

	if err := mp.schemas.ValidateManifest(&m); err != nil {
		var cueErr cueerrors.Error
		if errors.As(err, &cueErr) {
			verrs := convertCUEErrors(cueErr)
			for i := range verrs {
				verrs[i].File = filename
			}
			return nil, verrs
		}
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	if err := mp.check(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// check applies struct constraints and rejects duplicate names.
func (mp *ManifestParser) check(m *Manifest) error {
	var verrs ValidationErrors

	if err := mp.validator.Struct(m); err != nil {
		var described ValidationErrors
		if errors.As(describeValidation(err), &described) {
			verrs = append(verrs, described...)
		} else {
			return fmt.Errorf("%s: %w", m.SourceFile, err)
		}
	}

	seen := make(map[string]int, len(m.Components))
	for i, spec := range m.Components {
		if first, dup := seen[spec.Name]; dup {
			verrs = append(verrs, ValidationError{
				Path:    fmt.Sprintf("components[%d].name", i),
				Message: fmt.Sprintf("component %q already declared at components[%d]", spec.Name, first),
			})
			continue
		}
		seen[spec.Name] = i
	}

	if len(verrs) == 0 {
		return nil
	}
	for i := range verrs {
		verrs[i].File = m.SourceFile
	}
	return verrs
}

// Merge concatenates manifests, rejecting component names declared twice.
func Merge(manifests ...*Manifest) (*Manifest, error) {
	if len(manifests) == 0 {
		return nil, fmt.Errorf("no manifests to merge")
	}
	if len(manifests) == 1 {
		return manifests[0], nil
	}

	merged := &Manifest{
		Name:       manifests[0].Name,
		SourceFile: "merged",
	}
	origin := make(map[string]string)

	for _, m := range manifests {
		for _, spec := range m.Components {
			if src, exists := origin[spec.Name]; exists {
				return nil, fmt.Errorf("component %s declared in both %s and %s", spec.Name, src, m.SourceFile)
			}
			origin[spec.Name] = m.SourceFile
			merged.Components = append(merged.Components, spec)
		}
	}

	return merged, nil
}

// manifestFiles lists manifest files under dir in lexical order.
func manifestFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".cue", ".yaml", ".yml", ".json":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no manifest files found in %s", dir)
	}

	sort.Strings(files)
	return files, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors with positions.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors

	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: strings.TrimSpace(fmt.Sprint(e)),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}

	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}
