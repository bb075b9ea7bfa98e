package rulestore

// Schema for the rule-document store.
// Compatible with both SQLite and PostgreSQL.

const schemaRules = `
CREATE TABLE IF NOT EXISTS rule_documents (
    rule_domain TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    severity TEXT NOT NULL,
    formula TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    document TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (rule_domain, id)
);

CREATE INDEX IF NOT EXISTS idx_rule_documents_order ON rule_documents(rule_domain, position);
CREATE INDEX IF NOT EXISTS idx_rule_documents_enabled ON rule_documents(rule_domain, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRules,
	}
}
