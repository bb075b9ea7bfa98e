// Package ingest validates incoming payloads against domain schemas
// before any rule sees them.
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// FieldSpec describes one expected column.
type FieldSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // number | string | period | bool
	Required bool   `yaml:"required"`

	// Constraint is an optional CEL expression over `value` (double).
	// It must type-check to bool at schema load.
	Constraint string `yaml:"constraint,omitempty"`

	program cel.Program
}

// TableSpec describes one expected table.
type TableSpec struct {
	Name     string      `yaml:"name"`
	Required bool        `yaml:"required"`
	MinRows  int         `yaml:"min_rows,omitempty"`
	Fields   []FieldSpec `yaml:"fields"`
}

// Schema is the external data contract for one domain.
type Schema struct {
	Domain string      `yaml:"domain"`
	Tables []TableSpec `yaml:"tables"`
}

// SchemaSet holds compiled schemas keyed by domain.
type SchemaSet struct {
	schemas map[string]*Schema
}

// Schema returns the schema for a domain, if one is declared. A nil set
// declares nothing.
func (s *SchemaSet) Schema(domain string) (*Schema, bool) {
	if s == nil {
		return nil, false
	}
	sc, ok := s.schemas[domain]
	return sc, ok
}

// Domains returns the declared domain names, sorted.
func (s *SchemaSet) Domains() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var validFieldTypes = map[string]bool{
	"number": true, "string": true, "period": true, "bool": true,
}

// LoadSchemas reads every *.yaml schema document under dir and compiles
// the field constraints. Any invalid schema rejects the whole set.
func LoadSchemas(dir string) (*SchemaSet, error) {
	env, err := constraintEnv()
	if err != nil {
		return nil, err
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan schemas directory: %w", err)
	}
	sort.Strings(paths)

	set := &SchemaSet{schemas: make(map[string]*Schema)}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		var schema Schema
		if err := yaml.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("%s: invalid yaml: %w", path, err)
		}
		if schema.Domain == "" {
			return nil, fmt.Errorf("%s: schema domain is required", path)
		}
		if _, dup := set.schemas[schema.Domain]; dup {
			return nil, fmt.Errorf("%s: duplicate schema for domain %q", path, schema.Domain)
		}
		if err := compileSchema(env, &schema); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		set.schemas[schema.Domain] = &schema
	}
	if len(set.schemas) == 0 {
		return nil, fmt.Errorf("no schema documents under %s", dir)
	}
	return set, nil
}

// constraintEnv declares the variables a field constraint may read.
func constraintEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DoubleType),
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create constraint environment: %w", err)
	}
	return env, nil
}

func compileSchema(env *cel.Env, schema *Schema) error {
	for ti := range schema.Tables {
		table := &schema.Tables[ti]
		if table.Name == "" {
			return fmt.Errorf("table name is required")
		}
		for fi := range table.Fields {
			field := &table.Fields[fi]
			if field.Name == "" {
				return fmt.Errorf("table %s: field name is required", table.Name)
			}
			if !validFieldTypes[field.Type] {
				return fmt.Errorf("table %s: field %s: unknown type %q", table.Name, field.Name, field.Type)
			}
			if field.Constraint == "" {
				continue
			}
			if field.Type != "number" {
				return fmt.Errorf("table %s: field %s: constraints only apply to number fields", table.Name, field.Name)
			}
			ast, issues := env.Compile(field.Constraint)
			if issues != nil && issues.Err() != nil {
				return fmt.Errorf("table %s: field %s: invalid constraint: %w", table.Name, field.Name, issues.Err())
			}
			if !ast.OutputType().IsExactType(cel.BoolType) {
				return fmt.Errorf("table %s: field %s: constraint must produce bool, got %s", table.Name, field.Name, ast.OutputType())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return fmt.Errorf("table %s: field %s: failed to build constraint program: %w", table.Name, field.Name, err)
			}
			field.program = prg
		}
	}
	return nil
}
