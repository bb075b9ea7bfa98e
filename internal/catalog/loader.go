package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/formula"
)

// LoadError pinpoints the document and field that made a catalogue
// unloadable.
type LoadError struct {
	Path  string
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadDir reads rule documents from dir. Layout is one YAML document
// per rule under <dir>/<domain>/*.yaml, with cross rules under
// <dir>/cross/. Files load in lexical path order, which fixes the
// catalogue's insertion order.
func LoadDir(dir string) (*Catalogue, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
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
		return nil, fmt.Errorf("failed to scan rules directory: %w", err)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no rule documents under %s", dir)
	}

	defs := make([]*domain.RuleDefinition, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		def, err := parseRule(raw, path)
		if err != nil {
			return nil, err
		}
		// directory name wins when the document omits the domain
		if def.Domain == "" {
			def.Domain = filepath.Base(filepath.Dir(path))
		}
		defs = append(defs, def)
	}
	if err := Validate(defs); err != nil {
		return nil, err
	}
	return build(defs), nil
}

// LoadStore reads rule documents from a SQL rule store. The store
// returns definitions in its own stable order; validation is identical
// to the directory path.
func LoadStore(ctx context.Context, store domain.RuleStore) (*Catalogue, error) {
	defs, err := store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("rule store holds no rules")
	}
	if err := Validate(defs); err != nil {
		return nil, err
	}
	return build(defs), nil
}

// parseRule decodes one YAML rule document. Unknown keys are rejected
// so typos in rule documents fail loudly at load time.
func parseRule(raw []byte, path string) (*domain.RuleDefinition, error) {
	// enabled defaults to true; documents opt out explicitly
	def := domain.RuleDefinition{Enabled: true}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("invalid yaml: %w", err)}
	}
	def.SourcePath = path
	return &def, nil
}

// Validate checks a complete definition set. Any error rejects the
// whole set: a catalogue is valid in full or not at all.
func Validate(defs []*domain.RuleDefinition) error {
	// IDs are unique per domain; two domains may reuse an id. Cross
	// rules all carry the cross domain, so they share one namespace.
	seen := make(map[[2]string]string, len(defs))
	for _, def := range defs {
		if err := validateOne(def); err != nil {
			return err
		}
		key := [2]string{def.Domain, def.ID}
		if prev, dup := seen[key]; dup {
			return &LoadError{
				Path:  def.SourcePath,
				Field: "id",
				Err:   fmt.Errorf("duplicate rule id %q in domain %q (first defined in %s)", def.ID, def.Domain, prev),
			}
		}
		seen[key] = def.SourcePath
	}
	return nil
}

func validateOne(def *domain.RuleDefinition) error {
	fail := func(field string, format string, args ...any) error {
		return &LoadError{Path: def.SourcePath, Field: field, Err: fmt.Errorf(format, args...)}
	}
	if def.ID == "" {
		return fail("id", "rule id is required")
	}
	if def.Domain == "" {
		return fail("domain", "domain is required")
	}
	if def.Title == "" {
		return fail("title", "title is required")
	}
	if !def.Severity.Valid() {
		return fail("severity", "unknown severity %q", def.Severity)
	}
	if def.Weight < 0 {
		return fail("weight", "weight must not be negative")
	}
	if def.Formula == "" {
		return fail("formula", "formula is required")
	}
	if def.Cross() {
		if !formula.KnownCross(def.Formula) {
			return fail("formula", "unknown cross formula %q", def.Formula)
		}
		if len(def.RequiresDomains) < 2 {
			return fail("requires_domains", "cross rules need at least two domains")
		}
	} else if !formula.Known(def.Formula) {
		return fail("formula", "unknown formula %q", def.Formula)
	}
	return nil
}
