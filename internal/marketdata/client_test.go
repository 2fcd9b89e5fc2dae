package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solyield/sentinel/internal/types"
)

func poolJSON(observedAt time.Time) string {
	return fmt.Sprintf(`{
		"pool_address": "pool-sol-usdc",
		"protocol": "raydium",
		"token_a_symbol": "SOL",
		"token_b_symbol": "USDC",
		"price_a": "150.25",
		"price_b": "1.0",
		"tvl_usd": 2000000,
		"volume_24h_usd": 1000000,
		"apy": 110.5,
		"fee_tier": 0.0025,
		"pool_created_at": %d,
		"observed_at": %d
	}`, observedAt.Add(-90*24*time.Hour).Unix(), observedAt.Unix())
}

func TestFetchPoolSnapshotParsesObservation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pools/pool-sol-usdc", r.URL.Path)
		fmt.Fprint(w, poolJSON(time.Now()))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	snap, err := client.FetchPoolSnapshot(context.Background(), "pool-sol-usdc")
	require.NoError(t, err)

	assert.Equal(t, types.ProtocolRaydium, snap.Protocol)
	assert.Equal(t, "150.25", snap.PriceA.String()[:6])
	assert.Equal(t, 2_000_000.0, snap.TvlUSD)
	assert.Equal(t, 0.0025, snap.FeeTier)
}

func TestFetchPoolSnapshotRejectsStaleObservation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, poolJSON(time.Now().Add(-time.Hour)))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchPoolSnapshot(context.Background(), "pool-sol-usdc")
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestFetchPoolSnapshotDoesNotRetryOn404(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchPoolSnapshot(context.Background(), "pool-unknown")
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "4xx must be permanent, not retried")
}

func TestFetchPoolSnapshotRetriesOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, poolJSON(time.Now()))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	snap, err := client.FetchPoolSnapshot(context.Background(), "pool-sol-usdc")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "pool-sol-usdc", snap.PoolAddress)
}

func TestFetchPoolSnapshotRejectsUnknownProtocol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"pool_address": "p", "protocol": "uniswap", "price_a": "1", "price_b": "1", "observed_at": %d}`, time.Now().Unix())
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchPoolSnapshot(context.Background(), "p")
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestFetchTokenContextUnavailableIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	tokens, err := client.FetchTokenContext(context.Background(), "pool-sol-usdc")
	require.NoError(t, err, "missing holder data degrades scoring, it does not fail the fetch")
	assert.False(t, tokens.HoldersKnown)
}

func TestFetchTokenContextParsesHolderData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pools/pool-sol-usdc/holders", r.URL.Path)
		fmt.Fprint(w, `{
			"available": true,
			"creator_hold_percent": 3.5,
			"top_holder_percent": 8,
			"top10_holder_percent": 35,
			"liquidity_locked": true,
			"mint_authority_revoked": true,
			"freeze_authority_revoked": false
		}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	tokens, err := client.FetchTokenContext(context.Background(), "pool-sol-usdc")
	require.NoError(t, err)

	assert.True(t, tokens.HoldersKnown)
	assert.Equal(t, 3.5, tokens.CreatorHoldPercent)
	assert.True(t, tokens.LiquidityLocked)
	assert.False(t, tokens.FreezeAuthorityRevoked)
}
