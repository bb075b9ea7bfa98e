package domain

// FrameSet holds the intent-resolved frames for every table of one
// payload. Built once per ingested payload; read-only afterwards.
type FrameSet struct {
	domain string
	order  []string
	frames map[string]*Frame
}

// NewFrameSet builds a frame set preserving the payload's table order.
func NewFrameSet(domain string, order []string, frames map[string]*Frame) *FrameSet {
	return &FrameSet{domain: domain, order: order, frames: frames}
}

// Domain returns the owning domain name.
func (fs *FrameSet) Domain() string { return fs.domain }

// Frame returns the frame for the named table, or the primary frame
// when name is empty.
func (fs *FrameSet) Frame(name string) (*Frame, bool) {
	if name == "" {
		return fs.Primary()
	}
	f, ok := fs.frames[name]
	return f, ok
}

// Primary returns the frame for the payload's first table.
func (fs *FrameSet) Primary() (*Frame, bool) {
	if len(fs.order) == 0 {
		return nil, false
	}
	f, ok := fs.frames[fs.order[0]]
	return f, ok
}

// Tables returns table names in payload order.
func (fs *FrameSet) Tables() []string {
	out := make([]string, len(fs.order))
	copy(out, fs.order)
	return out
}

// FactSet is the read-only view handed to cross-domain formulas: each
// contributing domain's resolved frames and already-computed outcomes.
// Cross formulas read from here and never re-derive per-domain logic.
type FactSet struct {
	Frames   map[string]*FrameSet
	Outcomes map[string][]Outcome
}

// HasDomain reports whether the session holds data for the domain.
func (fs *FactSet) HasDomain(name string) bool {
	_, ok := fs.Frames[name]
	return ok
}

// DomainFrame returns the named domain's frame for a table ("" = primary).
func (fs *FactSet) DomainFrame(domainName, table string) (*Frame, bool) {
	set, ok := fs.Frames[domainName]
	if !ok {
		return nil, false
	}
	return set.Frame(table)
}

// Outcome returns a specific rule's outcome from a domain, if present.
func (fs *FactSet) Outcome(domainName, ruleID string) (*Outcome, bool) {
	for i := range fs.Outcomes[domainName] {
		if fs.Outcomes[domainName][i].RuleID == ruleID {
			return &fs.Outcomes[domainName][i], true
		}
	}
	return nil, false
}
