/*

Versioned strategy persistence. Strategies are immutable: saving under an
existing name deactivates the current version inside a transaction and
inserts the next version as active. Positions opened under an older version
keep evaluating against whatever is active, but the history stays auditable.

*/

package store

import (
	"database/sql"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/solyield/sentinel/internal/types"
)

var ErrStrategyNotFound = errors.New("no active strategy with that name")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SaveStrategy validates and persists a new version of a named strategy,
// activating it atomically.
func SaveStrategy(strategy types.Strategy) (*types.Strategy, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	entryJSON, err := json.Marshal(strategy.Entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry rules: %w", err)
	}
	exitJSON, err := json.Marshal(strategy.Exit)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exit rules: %w", err)
	}
	sizingJSON, err := json.Marshal(strategy.Sizing)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sizing: %w", err)
	}
	limitsJSON, err := json.Marshal(strategy.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal limits: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin strategy transaction: %w", err)
	}
	defer tx.Rollback()

	var nextVersion int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) + 1 FROM strategies WHERE name = $1;`,
		strategy.Name,
	).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to determine next strategy version: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE strategies SET is_active = FALSE WHERE name = $1 AND is_active = TRUE;`,
		strategy.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate previous strategy version: %w", err)
	}

	var id int
	err = tx.QueryRow(`
		INSERT INTO strategies (name, version, is_active, entry_rules, exit_rules, sizing, limits)
		VALUES ($1, $2, TRUE, $3, $4, $5, $6)
		RETURNING strategy_id;`,
		strategy.Name, nextVersion, entryJSON, exitJSON, sizingJSON, limitsJSON,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert strategy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit strategy transaction: %w", err)
	}

	log.Info().
		Str("name", strategy.Name).
		Int("version", nextVersion).
		Msg("Activated new strategy version")

	return LoadActiveStrategy(strategy.Name)
}

// LoadActiveStrategy returns the currently active version of a named strategy.
func LoadActiveStrategy(name string) (*types.Strategy, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT strategy_id, name, version, is_active, entry_rules, exit_rules, sizing, limits,
		       created_at, activated_at
		FROM strategies
		WHERE name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		strategy                                     types.Strategy
		entryJSON, exitJSON, sizingJSON, limitsJSON  []byte
	)
	err := DB.QueryRow(query, name).Scan(
		&strategy.ID, &strategy.Name, &strategy.Version, &strategy.Active,
		&entryJSON, &exitJSON, &sizingJSON, &limitsJSON,
		&strategy.CreatedAt, &strategy.ActivatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
		}
		return nil, fmt.Errorf("failed to load strategy %s: %w", name, err)
	}

	if err := json.Unmarshal(entryJSON, &strategy.Entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry rules: %w", err)
	}
	if err := json.Unmarshal(exitJSON, &strategy.Exit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exit rules: %w", err)
	}
	if err := json.Unmarshal(sizingJSON, &strategy.Sizing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sizing: %w", err)
	}
	if err := json.Unmarshal(limitsJSON, &strategy.Limits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal limits: %w", err)
	}

	return &strategy, nil
}

// ListStrategyVersions returns every stored version of a named strategy,
// newest first.
func ListStrategyVersions(name string, limit int) ([]types.Strategy, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT strategy_id, name, version, is_active, entry_rules, exit_rules, sizing, limits,
		       created_at, activated_at
		FROM strategies
		WHERE name = $1
		ORDER BY version DESC
		LIMIT $2;`

	rows, err := DB.Query(query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategy versions for %s: %w", name, err)
	}
	defer rows.Close()

	var strategies []types.Strategy
	for rows.Next() {
		var (
			strategy                                    types.Strategy
			entryJSON, exitJSON, sizingJSON, limitsJSON []byte
		)
		err := rows.Scan(
			&strategy.ID, &strategy.Name, &strategy.Version, &strategy.Active,
			&entryJSON, &exitJSON, &sizingJSON, &limitsJSON,
			&strategy.CreatedAt, &strategy.ActivatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy row: %w", err)
		}
		if err := json.Unmarshal(entryJSON, &strategy.Entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry rules: %w", err)
		}
		if err := json.Unmarshal(exitJSON, &strategy.Exit); err != nil {
			return nil, fmt.Errorf("failed to unmarshal exit rules: %w", err)
		}
		if err := json.Unmarshal(sizingJSON, &strategy.Sizing); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sizing: %w", err)
		}
		if err := json.Unmarshal(limitsJSON, &strategy.Limits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal limits: %w", err)
		}
		strategies = append(strategies, strategy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("strategy row iteration failed: %w", err)
	}
	return strategies, nil
}
