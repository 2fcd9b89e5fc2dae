package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/solyield/sentinel/internal/analyzer"
	"github.com/solyield/sentinel/internal/store"
	"github.com/solyield/sentinel/internal/types"
	"github.com/solyield/sentinel/internal/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// parseLimit reads the limit query parameter with bounds applied.
func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= maxListLimit {
			limit = parsedLimit
		}
	}
	return limit
}

// handleListPositions returns positions for a wallet, optionally filtered by status
func (ws *WebServer) handleListPositions(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" {
		if _, err := types.ParsePositionStatus(status); err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	positions, err := store.ListPositionsByWallet(wallet, status, parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Str("wallet", wallet).Msg("Failed to list positions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve positions")
		return
	}

	response := map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPosition returns a specific position by ID
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}

	position, err := store.GetPosition(id)
	if err != nil {
		if errors.Is(err, store.ErrPositionNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
			return
		}
		webLogger.Error().Err(err).Str("position_id", id).Msg("Failed to get position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve position")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, position)
}

// handleGetPositionHistory returns the snapshot series of a position,
// oldest first
func (ws *WebServer) handleGetPositionHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}

	if _, err := store.GetPosition(id); err != nil {
		if errors.Is(err, store.ErrPositionNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
			return
		}
		webLogger.Error().Err(err).Str("position_id", id).Msg("Failed to get position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve position")
		return
	}

	snapshots, err := store.GetSnapshotHistory(id, parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Str("position_id", id).Msg("Failed to get snapshot history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshot history")
		return
	}

	response := map[string]interface{}{
		"position_id": id,
		"snapshots":   snapshots,
		"count":       len(snapshots),
	}
	if volatility, err := snapshotPriceVolatility(snapshots); err == nil {
		response["price_a_volatility"] = volatility
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// snapshotPriceVolatility measures realized volatility of token A's price
// over the snapshot series. Short or gappy series yield no figure.
func snapshotPriceVolatility(snapshots []types.PositionSnapshot) (float64, error) {
	prices := make([]float64, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.Undefined {
			continue
		}
		price, err := utils.DecToFloat64(snap.PriceA)
		if err != nil {
			return 0, err
		}
		prices = append(prices, price)
	}
	return analyzer.CalculateReturnVolatility(prices)
}

// handleRequestExit emits a manual exit intent for an active position. The
// position stays ACTIVE until the execution service confirms the exit.
func (ws *WebServer) handleRequestExit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}

	position, err := store.GetPosition(id)
	if err != nil {
		if errors.Is(err, store.ErrPositionNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
			return
		}
		webLogger.Error().Err(err).Str("position_id", id).Msg("Failed to get position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve position")
		return
	}
	if position.Status.Terminal() {
		ws.writeErrorResponse(w, http.StatusConflict, "Position is already "+string(position.Status))
		return
	}

	tick, err := store.GetCurrentTickNumber()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to read tick counter")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to emit exit intent")
		return
	}

	intent := types.ExitIntent{
		PositionID:  position.ID,
		PoolAddress: position.PoolAddress,
		UserWallet:  position.UserWallet,
		Reason:      types.ExitManual,
		Detail:      "operator requested exit",
		TickNumber:  tick,
		EmittedAt:   time.Now().UTC(),
	}

	if err := ws.notifier.Notify(r.Context(), intent); err != nil {
		webLogger.Error().Err(err).Str("position_id", id).Msg("Failed to deliver manual exit intent")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to deliver exit intent")
		return
	}

	ws.writeJSONResponse(w, http.StatusAccepted, intent)
}

// handleEntryConfirmation registers a new position from an executed entry
// transaction
func (ws *WebServer) handleEntryConfirmation(w http.ResponseWriter, r *http.Request) {
	var conf types.EntryConfirmation
	if err := json.NewDecoder(r.Body).Decode(&conf); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid entry confirmation payload")
		return
	}

	if conf.UserWallet == "" || conf.PoolAddress == "" || conf.TxHash == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "user_wallet, pool_address and tx_hash are required")
		return
	}
	if _, err := types.ParseProtocol(string(conf.Protocol)); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Unknown protocol: "+string(conf.Protocol))
		return
	}
	if anyNil(conf.PriceA, conf.PriceB, conf.AmountA, conf.AmountB, conf.ValueUSD, conf.LPTokens) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "All entry amounts and prices are required")
		return
	}
	if conf.Timestamp.IsZero() {
		conf.Timestamp = time.Now().UTC()
	}

	// Entry risk score is whatever the scorer last saw for this pool; a pool
	// never scored enters with the score unset.
	entryRiskScore := 0.0
	risk, err := store.LatestRiskAnalysis(conf.PoolAddress)
	if err != nil {
		if !errors.Is(err, store.ErrRiskAnalysisNotFound) {
			webLogger.Error().Err(err).Str("pool", conf.PoolAddress).Msg("Failed to load risk analysis for entry")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to register position")
			return
		}
		webLogger.Warn().Str("pool", conf.PoolAddress).Msg("No risk analysis on record for entry pool")
	} else {
		entryRiskScore = risk.OverallScore
	}

	position, err := store.InsertPosition(conf, entryRiskScore)
	if err != nil {
		webLogger.Error().Err(err).Str("pool", conf.PoolAddress).Msg("Failed to insert position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to register position")
		return
	}

	webLogger.Info().
		Str("position_id", position.ID).
		Str("pool", position.PoolAddress).
		Str("wallet", position.UserWallet).
		Msg("Registered new position")

	ws.writeJSONResponse(w, http.StatusCreated, position)
}

// handleExitConfirmation closes a position from an executed exit transaction
func (ws *WebServer) handleExitConfirmation(w http.ResponseWriter, r *http.Request) {
	var conf types.ExitConfirmation
	if err := json.NewDecoder(r.Body).Decode(&conf); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid exit confirmation payload")
		return
	}

	if _, err := uuid.Parse(conf.PositionID); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}
	if conf.TxHash == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "tx_hash is required")
		return
	}
	if anyNil(conf.PriceA, conf.PriceB, conf.AmountA, conf.AmountB, conf.ValueUSD) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "All exit amounts and prices are required")
		return
	}
	if conf.Timestamp.IsZero() {
		conf.Timestamp = time.Now().UTC()
	}
	if conf.Reason == "" {
		conf.Reason = types.ExitManual
	}

	position, err := store.GetPosition(conf.PositionID)
	if err != nil {
		if errors.Is(err, store.ErrPositionNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
			return
		}
		webLogger.Error().Err(err).Str("position_id", conf.PositionID).Msg("Failed to get position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to close position")
		return
	}

	exitGasUSD, err := utils.Float64ToDec(conf.GasUSD)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid gas_usd value")
		return
	}

	realized, err := realizedPnL(position, conf, exitGasUSD)
	if err != nil {
		webLogger.Error().Err(err).Str("position_id", conf.PositionID).Msg("Failed to compute realized P&L")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to close position")
		return
	}

	exit := types.ExitDetail{
		Timestamp:      conf.Timestamp,
		PriceA:         conf.PriceA,
		PriceB:         conf.PriceB,
		AmountA:        conf.AmountA,
		AmountB:        conf.AmountB,
		ValueUSD:       conf.ValueUSD,
		TxHash:         conf.TxHash,
		Reason:         conf.Reason,
		RealizedPnLUSD: realized,
	}

	if err := store.TransitionToTerminal(conf.PositionID, types.StatusClosed, exit, exitGasUSD); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyTerminal):
			ws.writeErrorResponse(w, http.StatusConflict, "Position is already terminal")
		case errors.Is(err, store.ErrConcurrentModification):
			ws.writeErrorResponse(w, http.StatusConflict, "Position was modified concurrently, retry")
		case errors.Is(err, store.ErrPositionNotFound):
			ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		default:
			webLogger.Error().Err(err).Str("position_id", conf.PositionID).Msg("Failed to close position")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to close position")
		}
		return
	}

	closed, err := store.GetPosition(conf.PositionID)
	if err != nil {
		webLogger.Error().Err(err).Str("position_id", conf.PositionID).Msg("Failed to re-read closed position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Position closed but could not be re-read")
		return
	}

	webLogger.Info().
		Str("position_id", closed.ID).
		Str("reason", string(conf.Reason)).
		Str("realized_pnl_usd", realized.String()).
		Msg("Closed position")

	ws.writeJSONResponse(w, http.StatusOK, closed)
}

// realizedPnL folds accrued fees and total gas into the final exit value:
// exit value - entry value + fees earned - gas spent.
func realizedPnL(position *types.Position, conf types.ExitConfirmation, exitGasUSD sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	fees := sdkmath.LegacyZeroDec()
	latest, err := store.LatestSnapshot(position.ID)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if latest != nil && !latest.FeesEarnedUSD.IsNil() {
		fees = latest.FeesEarnedUSD
	}

	gas := exitGasUSD
	if !position.GasSpentUSD.IsNil() {
		gas = gas.Add(position.GasSpentUSD)
	}

	return conf.ValueUSD.Sub(position.EntryValueUSD).Add(fees).Sub(gas), nil
}

// handleGetRiskAnalysis returns the latest risk analysis for a pool
func (ws *WebServer) handleGetRiskAnalysis(w http.ResponseWriter, r *http.Request) {
	poolAddress := mux.Vars(r)["pool_address"]

	risk, err := store.LatestRiskAnalysis(poolAddress)
	if err != nil {
		if errors.Is(err, store.ErrRiskAnalysisNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "No risk analysis for pool")
			return
		}
		webLogger.Error().Err(err).Str("pool", poolAddress).Msg("Failed to get risk analysis")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve risk analysis")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, risk)
}

// handleGetPortfolioSummary returns aggregate statistics for a wallet
func (ws *WebServer) handleGetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}

	summary, err := store.GetPortfolioSummary(wallet)
	if err != nil {
		webLogger.Error().Err(err).Str("wallet", wallet).Msg("Failed to get portfolio summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve portfolio summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetPerformanceMetrics returns performance metrics over closed positions
func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := store.GetPerformanceMetrics()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

// handleSaveStrategy stores a new strategy version and activates it
func (ws *WebServer) handleSaveStrategy(w http.ResponseWriter, r *http.Request) {
	var strat types.Strategy
	if err := json.NewDecoder(r.Body).Decode(&strat); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy payload")
		return
	}

	saved, err := store.SaveStrategy(strat)
	if err != nil {
		if errors.Is(err, types.ErrInvalidStrategy) {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		webLogger.Error().Err(err).Str("strategy", strat.Name).Msg("Failed to save strategy")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to save strategy")
		return
	}

	webLogger.Info().
		Str("strategy", saved.Name).
		Int("version", saved.Version).
		Msg("Saved new strategy version")

	ws.writeJSONResponse(w, http.StatusCreated, saved)
}

// handleGetStrategy returns the active version of a strategy, or the version
// history when ?versions=true
func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if r.URL.Query().Get("versions") == "true" {
		versions, err := store.ListStrategyVersions(name, parseLimit(r))
		if err != nil {
			webLogger.Error().Err(err).Str("strategy", name).Msg("Failed to list strategy versions")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategy versions")
			return
		}
		if len(versions) == 0 {
			ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
			return
		}

		response := map[string]interface{}{
			"name":     name,
			"versions": versions,
			"count":    len(versions),
		}
		ws.writeJSONResponse(w, http.StatusOK, response)
		return
	}

	strat, err := store.LoadActiveStrategy(name)
	if err != nil {
		if errors.Is(err, store.ErrStrategyNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
			return
		}
		webLogger.Error().Err(err).Str("strategy", name).Msg("Failed to load strategy")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve strategy")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, strat)
}

func anyNil(decs ...sdkmath.LegacyDec) bool {
	for _, d := range decs {
		if d.IsNil() {
			return true
		}
	}
	return false
}
