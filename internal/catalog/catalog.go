// Package catalog loads, validates and serves immutable rule
// catalogue snapshots.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Catalogue is one validated, immutable snapshot of all rule
// definitions. Evaluation always works against a single snapshot, so a
// concurrent reload never changes a run mid-flight.
type Catalogue struct {
	version string
	rules   []*domain.RuleDefinition
	byID    map[string]*domain.RuleDefinition
	// per-domain and cross slices preserve insertion order
	byDomain map[string][]*domain.RuleDefinition
	cross    []*domain.RuleDefinition
}

// Version is a content hash over every definition in order. Two
// catalogues with the same documents in the same order share a version.
func (c *Catalogue) Version() string { return c.version }

// Len returns the total number of definitions, cross rules included.
func (c *Catalogue) Len() int { return len(c.rules) }

// Rule returns a definition by ID.
func (c *Catalogue) Rule(id string) (*domain.RuleDefinition, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// DomainRules returns the enabled single-domain rules for a domain, in
// insertion order.
func (c *Catalogue) DomainRules(domainName string) []*domain.RuleDefinition {
	return c.byDomain[domainName]
}

// CrossRules returns the enabled cross-domain rules in insertion order.
func (c *Catalogue) CrossRules() []*domain.RuleDefinition {
	return c.cross
}

// Domains returns the domain names that have at least one rule, sorted.
func (c *Catalogue) Domains() []string {
	out := make([]string, 0, len(c.byDomain))
	for name := range c.byDomain {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// build assembles a catalogue from validated definitions, preserving
// the given order.
func build(defs []*domain.RuleDefinition) *Catalogue {
	c := &Catalogue{
		rules:    defs,
		byID:     make(map[string]*domain.RuleDefinition, len(defs)),
		byDomain: make(map[string][]*domain.RuleDefinition),
	}
	h := sha256.New()
	for _, def := range defs {
		c.byID[def.ID] = def
		// The hash covers the whole definition so any edit, including
		// flipping enabled, yields a new version.
		raw, _ := json.Marshal(def)
		h.Write(raw)
		h.Write([]byte{'\n'})
		if !def.Enabled {
			continue
		}
		if def.Cross() {
			c.cross = append(c.cross, def)
		} else {
			c.byDomain[def.Domain] = append(c.byDomain[def.Domain], def)
		}
	}
	c.version = hex.EncodeToString(h.Sum(nil))[:12]
	return c
}

// Provider holds the current catalogue snapshot and swaps it atomically
// on reload. Readers call Current and never block.
type Provider struct {
	current atomic.Pointer[Catalogue]
	load    func() (*Catalogue, error)
}

// NewProvider loads the initial snapshot via the given source function.
func NewProvider(load func() (*Catalogue, error)) (*Provider, error) {
	c, err := load()
	if err != nil {
		return nil, err
	}
	p := &Provider{load: load}
	p.current.Store(c)
	return p, nil
}

// Current returns the active snapshot.
func (p *Provider) Current() *Catalogue {
	return p.current.Load()
}

// Reload builds a complete new snapshot. On any load or validation
// error the old snapshot stays active and the error is returned.
func (p *Provider) Reload() (*Catalogue, error) {
	c, err := p.load()
	if err != nil {
		return nil, fmt.Errorf("catalogue reload rejected: %w", err)
	}
	p.current.Store(c)
	return c, nil
}
