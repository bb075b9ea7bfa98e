package domain

import "context"

// RuleStore is a database-backed rule-document source: the same
// definitions the directory loader reads, held in SQL so deployments can
// manage the catalogue centrally. The loader validates store output and
// directory output identically.
type RuleStore interface {
	// ListRules returns every stored definition, ordered by domain then
	// by position so catalogue insertion order stays deterministic.
	ListRules(ctx context.Context) ([]*RuleDefinition, error)

	// SaveRule inserts or replaces one definition.
	SaveRule(ctx context.Context, rule *RuleDefinition) error

	// DeleteRule removes one definition by domain and id.
	DeleteRule(ctx context.Context, ruleDomain, id string) error

	// Ping checks store health.
	Ping(ctx context.Context) error

	Close() error
}
