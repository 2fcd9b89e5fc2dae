/*

Position persistence. Entry fields are written once at insert; status
transitions go through a compare-and-swap UPDATE so a manual exit and an
automated one racing each other cannot both win.

*/

package store

import (
	"database/sql"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/solyield/sentinel/internal/types"
	"github.com/solyield/sentinel/internal/utils"
)

var (
	ErrPositionNotFound       = errors.New("position not found")
	ErrAlreadyTerminal        = errors.New("position is already in a terminal state")
	ErrConcurrentModification = errors.New("position modified concurrently")
)

const positionColumns = `
	id, user_wallet, pool_address, protocol,
	token_a_symbol, token_b_symbol, token_a_mint, token_b_mint,
	status, frozen, strategy_name,
	entry_timestamp, entry_price_a, entry_price_b, entry_amount_a, entry_amount_b,
	entry_value_usd, entry_lp_tokens, entry_tx_hash, entry_risk_score, entry_apy, fee_tier, gas_spent_usd,
	exit_timestamp, exit_price_a, exit_price_b, exit_amount_a, exit_amount_b,
	exit_value_usd, exit_tx_hash, exit_reason, realized_pnl_usd,
	created_at, updated_at`

// InsertPosition records a confirmed entry and returns the stored position.
func InsertPosition(conf types.EntryConfirmation, entryRiskScore float64) (*types.Position, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if _, err := types.ParseProtocol(string(conf.Protocol)); err != nil {
		return nil, err
	}
	for _, d := range []sdkmath.LegacyDec{conf.PriceA, conf.PriceB, conf.AmountA, conf.AmountB, conf.ValueUSD} {
		if d.IsNil() || d.IsNegative() {
			return nil, fmt.Errorf("entry confirmation has nil or negative monetary field")
		}
	}
	if conf.TxHash == "" {
		return nil, fmt.Errorf("entry confirmation missing tx hash")
	}

	id := uuid.New().String()
	lpTokens := conf.LPTokens
	if lpTokens.IsNil() {
		lpTokens = sdkmath.LegacyZeroDec()
	}
	gas, err := utils.Float64ToDec(conf.GasUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid gas value: %w", err)
	}
	strategyName := conf.StrategyName
	if strategyName == "" {
		strategyName = "balanced"
	}

	insertSQL := `
		INSERT INTO positions (
			id, user_wallet, pool_address, protocol,
			token_a_symbol, token_b_symbol, token_a_mint, token_b_mint,
			status, strategy_name,
			entry_timestamp, entry_price_a, entry_price_b, entry_amount_a, entry_amount_b,
			entry_value_usd, entry_lp_tokens, entry_tx_hash, entry_risk_score, entry_apy, fee_tier, gas_spent_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = DB.Exec(insertSQL,
		id, conf.UserWallet, conf.PoolAddress, string(conf.Protocol),
		conf.TokenASymbol, conf.TokenBSymbol, conf.TokenAMint, conf.TokenBMint,
		string(types.StatusActive), strategyName,
		conf.Timestamp, conf.PriceA.String(), conf.PriceB.String(), conf.AmountA.String(), conf.AmountB.String(),
		conf.ValueUSD.String(), lpTokens.String(), conf.TxHash, entryRiskScore, conf.APY, conf.FeeTier, gas.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert position: %w", err)
	}

	log.Info().
		Str("position_id", id).
		Str("pool", conf.PoolAddress).
		Str("wallet", conf.UserWallet).
		Str("value_usd", conf.ValueUSD.String()).
		Msg("Recorded new position")

	return GetPosition(id)
}

// GetPosition fetches one position by id.
func GetPosition(id string) (*types.Position, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1;`
	pos, err := scanPosition(DB.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get position %s: %w", id, err)
	}
	return pos, nil
}

// ListPositionsByWallet returns a wallet's positions, optionally filtered by
// status, newest entries first.
func ListPositionsByWallet(wallet string, status string, limit int) ([]types.Position, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_wallet = $1`
	args := []interface{}{wallet}
	if status != "" {
		if _, err := types.ParsePositionStatus(status); err != nil {
			return nil, err
		}
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY entry_timestamp DESC LIMIT %d;`, limit)

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for wallet %s: %w", wallet, err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// ListActivePositions returns every position the monitor must evaluate.
func ListActivePositions() ([]types.Position, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = $1 ORDER BY entry_timestamp ASC;`
	rows, err := DB.Query(query, string(types.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// TransitionToTerminal performs the ACTIVE -> CLOSED/LIQUIDATED transition
// with a compare-and-swap on status. On a lost race it re-reads once: if the
// position is already terminal the caller gets ErrAlreadyTerminal, otherwise
// the swap is retried a single time before surfacing a conflict.
func TransitionToTerminal(id string, next types.PositionStatus, exit types.ExitDetail, extraGasUSD sdkmath.LegacyDec) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if !next.Terminal() {
		return fmt.Errorf("status %s is not terminal", next)
	}
	if err := (&types.Position{ID: id, Status: next, Exit: &exit}).Validate(); err != nil {
		return err
	}
	if extraGasUSD.IsNil() {
		extraGasUSD = sdkmath.LegacyZeroDec()
	}

	for attempt := 0; attempt < 2; attempt++ {
		swapped, err := casTerminal(id, next, exit, extraGasUSD)
		if err != nil {
			return err
		}
		if swapped {
			log.Info().
				Str("position_id", id).
				Str("status", string(next)).
				Str("reason", string(exit.Reason)).
				Msg("Position reached terminal state")
			return nil
		}

		current, err := GetPosition(id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return fmt.Errorf("%w: position %s is %s", ErrAlreadyTerminal, id, current.Status)
		}
		// Status flapped under us but is still ACTIVE; retry the swap once.
	}

	return fmt.Errorf("%w: position %s", ErrConcurrentModification, id)
}

func casTerminal(id string, next types.PositionStatus, exit types.ExitDetail, extraGasUSD sdkmath.LegacyDec) (bool, error) {
	updateSQL := `
		UPDATE positions
		SET status = $2,
		    exit_timestamp = $3, exit_price_a = $4, exit_price_b = $5,
		    exit_amount_a = $6, exit_amount_b = $7, exit_value_usd = $8,
		    exit_tx_hash = $9, exit_reason = $10, realized_pnl_usd = $11,
		    gas_spent_usd = gas_spent_usd + $12,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $13;`

	result, err := DB.Exec(updateSQL,
		id, string(next),
		exit.Timestamp, exit.PriceA.String(), exit.PriceB.String(),
		exit.AmountA.String(), exit.AmountB.String(), exit.ValueUSD.String(),
		exit.TxHash, string(exit.Reason), exit.RealizedPnLUSD.String(),
		extraGasUSD.String(),
		string(types.StatusActive),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition position %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected == 1, nil
}

// FreezePosition excludes a position from automated exit decisions after an
// internal consistency violation. Tracking continues.
func FreezePosition(id string, reason string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	result, err := DB.Exec(`UPDATE positions SET frozen = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to freeze position %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}

	log.Error().
		Str("position_id", id).
		Str("reason", reason).
		Msg("Froze position; automated exits disabled until reviewed")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*types.Position, error) {
	var (
		pos                                            types.Position
		protocol, status                               string
		priceA, priceB, amountA, amountB               string
		valueUSD, lpTokens, gasSpent                   string
		exitTimestamp                                  sql.NullTime
		exitPriceA, exitPriceB, exitAmountA            sql.NullString
		exitAmountB, exitValueUSD, exitTxHash          sql.NullString
		exitReason, realizedPnL                        sql.NullString
	)

	err := row.Scan(
		&pos.ID, &pos.UserWallet, &pos.PoolAddress, &protocol,
		&pos.TokenASymbol, &pos.TokenBSymbol, &pos.TokenAMint, &pos.TokenBMint,
		&status, &pos.Frozen, &pos.StrategyName,
		&pos.EntryTimestamp, &priceA, &priceB, &amountA, &amountB,
		&valueUSD, &lpTokens, &pos.EntryTxHash, &pos.EntryRiskScore, &pos.EntryAPY, &pos.FeeTier, &gasSpent,
		&exitTimestamp, &exitPriceA, &exitPriceB, &exitAmountA, &exitAmountB,
		&exitValueUSD, &exitTxHash, &exitReason, &realizedPnL,
		&pos.CreatedAt, &pos.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pos.Protocol, err = types.ParseProtocol(protocol)
	if err != nil {
		return nil, err
	}
	pos.Status, err = types.ParsePositionStatus(status)
	if err != nil {
		return nil, err
	}

	decs := []struct {
		raw    string
		target *sdkmath.LegacyDec
	}{
		{priceA, &pos.EntryPriceA}, {priceB, &pos.EntryPriceB},
		{amountA, &pos.EntryAmountA}, {amountB, &pos.EntryAmountB},
		{valueUSD, &pos.EntryValueUSD}, {lpTokens, &pos.EntryLPTokens},
		{gasSpent, &pos.GasSpentUSD},
	}
	for _, d := range decs {
		*d.target, err = utils.DecFromDBString(d.raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt decimal column on position %s: %w", pos.ID, err)
		}
	}

	if exitTimestamp.Valid {
		exit := &types.ExitDetail{
			Timestamp: exitTimestamp.Time,
			TxHash:    exitTxHash.String,
			Reason:    types.ExitReason(exitReason.String),
		}
		if exit.PriceA, err = utils.DecFromDBString(exitPriceA.String); err != nil {
			return nil, err
		}
		if exit.PriceB, err = utils.DecFromDBString(exitPriceB.String); err != nil {
			return nil, err
		}
		if exit.AmountA, err = utils.DecFromDBString(exitAmountA.String); err != nil {
			return nil, err
		}
		if exit.AmountB, err = utils.DecFromDBString(exitAmountB.String); err != nil {
			return nil, err
		}
		if exit.ValueUSD, err = utils.DecFromDBString(exitValueUSD.String); err != nil {
			return nil, err
		}
		if exit.RealizedPnLUSD, err = utils.DecFromDBString(realizedPnL.String); err != nil {
			return nil, err
		}
		pos.Exit = exit
	}

	return &pos, nil
}

func collectPositions(rows *sql.Rows) ([]types.Position, error) {
	var positions []types.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		positions = append(positions, *pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("position row iteration failed: %w", err)
	}
	return positions, nil
}
