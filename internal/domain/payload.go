package domain

// Row is one record of a payload table.
type Row map[string]any

// Table is an ordered list of rows under a published table name
// (e.g. "balance_sheet", "channel_report").
type Table struct {
	Name string `json:"name"`
	Rows []Row  `json:"rows"`
}

// Payload is a validated, immutable snapshot of one domain's input data
// for one assessment. It is shared by reference and never mutated after
// ingestion; resolved views are built on top of it, not into it.
type Payload struct {
	Domain string  `json:"domain"`
	Tables []Table `json:"tables"`
}

// Table returns the named table, or the first table when name is empty.
func (p *Payload) Table(name string) (*Table, bool) {
	if name == "" {
		if len(p.Tables) == 0 {
			return nil, false
		}
		return &p.Tables[0], true
	}
	for i := range p.Tables {
		if p.Tables[i].Name == name {
			return &p.Tables[i], true
		}
	}
	return nil, false
}

// TableNames returns the table names in insertion order.
func (p *Payload) TableNames() []string {
	names := make([]string, len(p.Tables))
	for i := range p.Tables {
		names[i] = p.Tables[i].Name
	}
	return names
}
