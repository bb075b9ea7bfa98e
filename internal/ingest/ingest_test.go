package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
)

const cfoSchema = `domain: cfo
tables:
  - name: pnl
    required: true
    min_rows: 2
    fields:
      - name: period
        type: period
        required: true
      - name: revenue
        type: number
        required: true
        constraint: "value >= 0.0"
      - name: margin
        type: number
        constraint: "value >= 0.0 && value <= 1.0"
  - name: notes
    fields:
      - name: comment
        type: string
`

func loadSet(t *testing.T, docs map[string]string) *SchemaSet {
	t.Helper()
	dir := t.TempDir()
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	set, err := LoadSchemas(dir)
	if err != nil {
		t.Fatalf("LoadSchemas: %v", err)
	}
	return set
}

func TestLoadSchemasRejectsBadConstraint(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "non-bool constraint",
			doc: `domain: cfo
tables:
  - name: pnl
    fields:
      - name: revenue
        type: number
        constraint: "value + 1.0"
`,
			want: "must produce bool",
		},
		{
			name: "unknown identifier",
			doc: `domain: cfo
tables:
  - name: pnl
    fields:
      - name: revenue
        type: number
        constraint: "revenue > 0.0"
`,
			want: "invalid constraint",
		},
		{
			name: "unknown field type",
			doc: `domain: cfo
tables:
  - name: pnl
    fields:
      - name: revenue
        type: decimal
`,
			want: "unknown type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "cfo.yaml"), []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadSchemas(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidateAcceptsCleanPayload(t *testing.T) {
	v := NewValidator(loadSet(t, map[string]string{"cfo.yaml": cfoSchema}))
	p := &domain.Payload{
		Domain: "cfo",
		Tables: []domain.Table{{
			Name: "pnl",
			Rows: []domain.Row{
				{"period": "2026-01", "revenue": 100.0, "margin": 0.4},
				{"period": "2026-02", "revenue": 110.0, "margin": 0.42},
			},
		}},
	}
	if err := v.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := NewValidator(loadSet(t, map[string]string{"cfo.yaml": cfoSchema}))
	p := &domain.Payload{
		Domain: "cfo",
		Tables: []domain.Table{{
			Name: "pnl",
			Rows: []domain.Row{
				{"period": "2026-01", "revenue": -5.0, "margin": 1.4},
				{"period": "", "revenue": "not a number"},
			},
		}},
	}
	err := v.Validate(p)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	// negative revenue, margin above 1, empty period, non-numeric revenue
	if len(ve.Violations) != 4 {
		for _, viol := range ve.Violations {
			t.Logf("violation: %s", viol)
		}
		t.Fatalf("violations = %d, want 4", len(ve.Violations))
	}
}

func TestValidateMissingRequiredTable(t *testing.T) {
	v := NewValidator(loadSet(t, map[string]string{"cfo.yaml": cfoSchema}))
	p := &domain.Payload{
		Domain: "cfo",
		Tables: []domain.Table{{Name: "notes", Rows: []domain.Row{{"comment": "hi"}}}},
	}
	err := v.Validate(p)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Violations[0].Table != "pnl" || ve.Violations[0].Actual != "missing" {
		t.Errorf("unexpected violation: %+v", ve.Violations[0])
	}
}

func TestValidateUnknownDomainPassesThrough(t *testing.T) {
	v := NewValidator(loadSet(t, map[string]string{"cfo.yaml": cfoSchema}))
	p := &domain.Payload{
		Domain: "coo",
		Tables: []domain.Table{{Name: "production", Rows: []domain.Row{{"units": 5.0}}}},
	}
	if err := v.Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestResolveReturnsFrames(t *testing.T) {
	v := NewValidator(loadSet(t, map[string]string{"cfo.yaml": cfoSchema}))
	p := &domain.Payload{
		Domain: "cfo",
		Tables: []domain.Table{{
			Name: "pnl",
			Rows: []domain.Row{
				{"period": "2026-01", "revenue": 100.0},
				{"period": "2026-02", "revenue": 110.0},
			},
		}},
	}
	fs, err := v.Resolve(p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	f, ok := fs.Primary()
	if !ok {
		t.Fatal("no primary frame")
	}
	if !f.Has("revenue_like") {
		t.Errorf("intent resolution did not run; fields: %v", f.Fields())
	}
}
