package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a RuleStore over the expiry_rules and
// expiry_settings tables.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const definitionColumns = `id, kind, alias, level, path, apply_to_descendants, months, days, never_expire, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var (
		def   Definition
		kind  string
		level sql.NullInt64
	)
	err := row.Scan(&def.ID, &kind, &def.Alias, &level, &def.Path, &def.ApplyToDescendants,
		&def.Months, &def.Days, &def.NeverExpire, &def.Active, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}
	def.Kind = Kind(kind)
	if level.Valid {
		l := int(level.Int64)
		def.Level = &l
	}
	return &def, nil
}

func nullLevel(level *int) sql.NullInt64 {
	if level == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*level), Valid: true}
}

// Add inserts a new definition.
func (s *PostgresRuleStore) Add(ctx context.Context, def *Definition) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM expiry_rules WHERE id = $1)
	`, def.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, def.ID)
	}

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO expiry_rules (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, def.ID, string(def.Kind), def.Alias, nullLevel(def.Level), def.Path, def.ApplyToDescendants,
		def.Months, def.Days, def.NeverExpire, def.Active, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a definition by ID.
func (s *PostgresRuleStore) Get(ctx context.Context, id string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+definitionColumns+`
		FROM expiry_rules
		WHERE id = $1
	`, id)

	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return def, nil
}

func (s *PostgresRuleStore) List(ctx context.Context) ([]*Definition, error) {
	return s.query(ctx, `
		SELECT `+definitionColumns+`
		FROM expiry_rules
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresRuleStore) ListActive(ctx context.Context) ([]*Definition, error) {
	return s.query(ctx, `
		SELECT `+definitionColumns+`
		FROM expiry_rules
		WHERE active = true
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresRuleStore) query(ctx context.Context, q string) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return defs, nil
}

// Update modifies an existing definition.
func (s *PostgresRuleStore) Update(ctx context.Context, def *Definition) error {
	existing, err := s.Get(ctx, def.ID)
	if err != nil {
		return err
	}

	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE expiry_rules
		SET kind = $1, alias = $2, level = $3, path = $4, apply_to_descendants = $5,
		    months = $6, days = $7, never_expire = $8, active = $9, updated_at = $10
		WHERE id = $11
	`, string(def.Kind), def.Alias, nullLevel(def.Level), def.Path, def.ApplyToDescendants,
		def.Months, def.Days, def.NeverExpire, def.Active, def.UpdatedAt, def.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, def.ID)
	}

	return nil
}

// Delete removes a definition.
func (s *PostgresRuleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM expiry_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	return nil
}

// Settings reads the single settings row, falling back to DefaultSettings
// when none has been saved.
func (s *PostgresRuleStore) Settings(ctx context.Context) (Settings, error) {
	var st Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT enabled, default_months, default_days, allow_never_expire
		FROM expiry_settings
		WHERE id = 1
	`).Scan(&st.Enabled, &st.DefaultMonths, &st.DefaultDays, &st.AllowNeverExpire)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return st, nil
}

func (s *PostgresRuleStore) SaveSettings(ctx context.Context, st Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expiry_settings (id, enabled, default_months, default_days, allow_never_expire, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    default_months = EXCLUDED.default_months,
		    default_days = EXCLUDED.default_days,
		    allow_never_expire = EXCLUDED.allow_never_expire,
		    updated_at = EXCLUDED.updated_at
	`, st.Enabled, st.DefaultMonths, st.DefaultDays, st.AllowNeverExpire)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
