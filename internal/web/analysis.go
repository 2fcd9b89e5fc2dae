/*

Read-only analysis endpoints: break-even projections for an open position and
entry evaluation for a candidate pool. Neither writes position state; the
evaluate endpoint does persist its risk score so /api/risk stays fresh.

*/

package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/solyield/sentinel/internal/analyzer"
	"github.com/solyield/sentinel/internal/config"
	"github.com/solyield/sentinel/internal/marketdata"
	"github.com/solyield/sentinel/internal/pnl"
	"github.com/solyield/sentinel/internal/store"
	"github.com/solyield/sentinel/internal/strategy"
	"github.com/solyield/sentinel/internal/types"
	"github.com/solyield/sentinel/internal/utils"
)

// handleGetBreakEven projects fee income against the current net P&L deficit
// of a position, from its latest snapshot.
func (ws *WebServer) handleGetBreakEven(w http.ResponseWriter, r *http.Request) {
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

	snap, err := store.LatestSnapshot(id)
	if err != nil {
		webLogger.Error().Err(err).Str("position_id", id).Msg("Failed to get latest snapshot")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve latest snapshot")
		return
	}
	if snap == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No snapshots recorded for position yet")
		return
	}

	// The snapshot carries the pool metrics observed at the same tick, which
	// is all the fee-rate projection needs.
	poolMetrics := types.PoolSnapshot{
		TvlUSD:       snap.PoolTvlUSD,
		Volume24hUSD: snap.PoolVolume24hUSD,
	}

	response := map[string]interface{}{
		"position_id": id,
		"as_of":       snap.Timestamp,
		"defined":     true,
	}

	hours, atBreakEven, err := pnl.BreakEvenHours(position, *snap, poolMetrics)
	switch {
	case errors.Is(err, pnl.ErrComputationUndefined):
		response["defined"] = false
	case err != nil:
		webLogger.Error().Err(err).Str("position_id", id).Msg("Failed to compute break-even")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute break-even")
		return
	default:
		response["at_break_even"] = atBreakEven
		if !atBreakEven {
			response["break_even_hours"] = hours
		}
	}

	if feeAPY, err := pnl.FeeAPY(position, *snap, poolMetrics); err == nil {
		response["fee_apy_percent"] = feeAPY
	}

	// Price drift since entry, per leg.
	if drift, err := utils.PercentChange(position.EntryPriceA, snap.PriceA); err == nil {
		response["price_a_change_percent"] = drift
	}
	if drift, err := utils.PercentChange(position.EntryPriceB, snap.PriceB); err == nil {
		response["price_b_change_percent"] = drift
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleEvaluatePool scores a candidate pool against a strategy's entry rules
// and, when accepted, sizes the position against the current portfolio.
func (ws *WebServer) handleEvaluatePool(w http.ResponseWriter, r *http.Request) {
	poolAddress := mux.Vars(r)["pool_address"]

	strategyName := r.URL.Query().Get("strategy")
	if strategyName == "" {
		strategyName = config.DefaultStrategyName
	}
	wallet := r.URL.Query().Get("wallet")

	strat, err := store.LoadActiveStrategy(strategyName)
	if err != nil {
		if errors.Is(err, store.ErrStrategyNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found: "+strategyName)
			return
		}
		webLogger.Error().Err(err).Str("strategy", strategyName).Msg("Failed to load strategy")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to load strategy")
		return
	}

	pool, err := ws.quoter.FetchPoolSnapshot(r.Context(), poolAddress)
	if err != nil {
		if errors.Is(err, marketdata.ErrDataUnavailable) {
			ws.writeErrorResponse(w, http.StatusBadGateway, "Pool data unavailable")
			return
		}
		webLogger.Error().Err(err).Str("pool", poolAddress).Msg("Failed to fetch pool snapshot")
		ws.writeErrorResponse(w, http.StatusBadGateway, "Failed to fetch pool data")
		return
	}

	// Missing holder data degrades the score rather than failing the request.
	tokens, err := ws.quoter.FetchTokenContext(r.Context(), poolAddress)
	if err != nil {
		webLogger.Warn().Err(err).Str("pool", poolAddress).Msg("Token context unavailable, scoring without it")
		tokens = types.TokenContext{}
	}

	risk, err := analyzer.CalculateRiskScore(pool, tokens, time.Now().UTC())
	if err != nil {
		webLogger.Error().Err(err).Str("pool", poolAddress).Msg("Failed to score pool")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to score pool")
		return
	}
	if err := store.SaveRiskAnalysis(risk); err != nil {
		webLogger.Warn().Err(err).Str("pool", poolAddress).Msg("Failed to persist risk analysis")
	}

	view, err := portfolioView(wallet)
	if err != nil {
		webLogger.Error().Err(err).Str("wallet", wallet).Msg("Failed to build portfolio view")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to build portfolio view")
		return
	}

	response := map[string]interface{}{
		"pool_address":     poolAddress,
		"strategy":         strat.Name,
		"strategy_version": strat.Version,
		"risk":             risk,
		"evaluated_at":     time.Now().UTC(),
	}

	accept, reason := strategy.EvaluateEntry(pool, risk, *strat, view, time.Now().UTC())
	if !accept {
		response["accept"] = false
		response["reason"] = reason
		ws.writeJSONResponse(w, http.StatusOK, response)
		return
	}

	stats := winStats()
	size, err := strategy.SizePosition(*strat, risk.OverallScore, view.PortfolioValueUSD, stats)
	if err != nil {
		if errors.Is(err, strategy.ErrUnsizeable) {
			response["accept"] = false
			response["reason"] = err.Error()
			ws.writeJSONResponse(w, http.StatusOK, response)
			return
		}
		webLogger.Error().Err(err).Str("pool", poolAddress).Msg("Failed to size position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to size position")
		return
	}

	response["accept"] = true
	response["size_usd"] = size
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// portfolioView assembles the exposure picture the entry rules check. Counts
// per protocol are engine-wide; value aggregates follow the wallet filter.
func portfolioView(wallet string) (strategy.PortfolioView, error) {
	summary, err := store.GetPortfolioSummary(wallet)
	if err != nil {
		return strategy.PortfolioView{}, err
	}
	counts, err := store.CountActiveByProtocol()
	if err != nil {
		return strategy.PortfolioView{}, err
	}

	portfolioValue := summary.CurrentValueUSD
	if portfolioValue <= 0 {
		portfolioValue = summary.ActiveEntryValueUSD
	}

	return strategy.PortfolioView{
		ActivePositions:       summary.ActivePositions,
		ActiveByProtocol:      counts,
		ExposureUSDByProtocol: summary.ProtocolExposureUSD,
		TotalExposureUSD:      summary.ActiveEntryValueUSD,
		PortfolioValueUSD:     portfolioValue,
	}, nil
}

// winStats pulls closed-trade aggregates for Kelly sizing. An empty history
// just disables Kelly; it never blocks sizing.
func winStats() strategy.WinStats {
	metrics, err := store.GetPerformanceMetrics()
	if err != nil {
		webLogger.Warn().Err(err).Msg("Failed to load performance metrics, Kelly sizing disabled")
		return strategy.WinStats{}
	}
	return strategy.WinStatsFromHistory(
		metrics.ClosedCount, metrics.WinRate,
		metrics.AvgWinPercent, metrics.AvgLossPercent,
	)
}
