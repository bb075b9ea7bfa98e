// Package rulestore persists rule definitions in SQL so deployments can
// manage the catalogue centrally instead of shipping a rules directory.
package rulestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRuleStore implements domain.RuleStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRuleStore struct {
	db     *sql.DB
	driver string
}

// New creates a rule store based on configuration. cfg.Source selects
// the driver ("sqlite" or "postgres").
func New(cfg domain.RulesConfig) (*SQLRuleStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Source {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported rule store source: %s", cfg.Source)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLRuleStore{
		db:     db,
		driver: cfg.Source,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLRuleStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ListRules returns every stored definition ordered by domain then by
// position, so catalogue insertion order is stable across loads.
func (s *SQLRuleStore) ListRules(ctx context.Context) ([]*domain.RuleDefinition, error) {
	query := `
		SELECT rule_domain, id, document
		FROM rule_documents
		ORDER BY rule_domain, position, id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*domain.RuleDefinition
	for rows.Next() {
		var ruleDomain, id, document string
		if err := rows.Scan(&ruleDomain, &id, &document); err != nil {
			return nil, err
		}

		def := domain.RuleDefinition{Enabled: true}
		if err := json.Unmarshal([]byte(document), &def); err != nil {
			return nil, fmt.Errorf("failed to parse stored rule %s/%s: %w", ruleDomain, id, err)
		}
		def.SourcePath = fmt.Sprintf("%s://rule_documents/%s/%s", s.driver, ruleDomain, id)
		defs = append(defs, &def)
	}

	return defs, rows.Err()
}

// SaveRule inserts or replaces one definition. New definitions append at
// the end of their domain's ordering; replacements keep their position.
func (s *SQLRuleStore) SaveRule(ctx context.Context, rule *domain.RuleDefinition) error {
	if rule == nil || rule.ID == "" || rule.Domain == "" {
		return fmt.Errorf("%w: rule id and domain are required", ErrInvalidInput)
	}

	document, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT position FROM rule_documents WHERE rule_domain = ? AND id = ?`),
		rule.Domain, rule.ID,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			s.rebind(`SELECT COALESCE(MAX(position), -1) + 1 FROM rule_documents WHERE rule_domain = ?`),
			rule.Domain,
		).Scan(&position)
	}
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rule_documents (
			rule_domain, id, position, severity, formula, weight, enabled,
			document, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_domain, id) DO UPDATE SET
			severity = excluded.severity,
			formula = excluded.formula,
			weight = excluded.weight,
			enabled = excluded.enabled,
			document = excluded.document,
			updated_at = excluded.updated_at
	`

	if _, err := tx.ExecContext(ctx, s.rebind(query),
		rule.Domain, rule.ID, position,
		string(rule.Severity), rule.Formula, rule.Weight, enabled,
		string(document), now, now,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteRule removes one definition by domain and id.
func (s *SQLRuleStore) DeleteRule(ctx context.Context, ruleDomain, id string) error {
	if ruleDomain == "" || id == "" {
		return fmt.Errorf("%w: rule id and domain are required", ErrInvalidInput)
	}

	query := `DELETE FROM rule_documents WHERE rule_domain = ? AND id = ?`

	result, err := s.db.ExecContext(ctx, s.rebind(query), ruleDomain, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (s *SQLRuleStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLRuleStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLRuleStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
