package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictflow/config"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.RestConfig{
		BaseURL:              server.URL,
		KeyID:                "test-key",
		SecretKey:            "test-secret",
		MaxRequestsPerMinute: 1000,
		TimeoutSeconds:       5,
		BatchConcurrency:     10,
		Retry: config.RetryConfig{
			MaxAttempts:    2,
			InitialDelayMs: 1,
		},
	}
	return NewClient(cfg), server
}

func TestGetLatestQuote(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "test-secret", r.Header.Get("APCA-API-SECRET-KEY"))
		assert.Equal(t, "/v2/stocks/AAPL/quotes/latest", r.URL.Path)
		fmt.Fprint(w, `{"symbol":"AAPL","quote":{"bp":184.5,"bs":3,"ap":184.7,"as":2,"t":"2026-08-28T14:00:00Z"}}`)
	}))

	quote, err := client.GetLatestQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 184.5, quote.BidPrice)
	assert.Equal(t, 184.7, quote.AskPrice)
}

func TestGetLatestQuoteMissing(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"ZZZZ","quote":null}`)
	}))

	_, err := client.GetLatestQuote(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quote data")
}

func TestGetBarsFollowsPagination(t *testing.T) {
	pages := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("page_token") == "" {
			fmt.Fprint(w, `{"bars":[{"o":1,"h":2,"l":0.5,"c":1.5,"v":100,"t":"2026-08-28T14:00:00Z"}],"symbol":"AAPL","next_page_token":"p2"}`)
			return
		}
		assert.Equal(t, "p2", r.URL.Query().Get("page_token"))
		fmt.Fprint(w, `{"bars":[{"o":1.5,"h":2.5,"l":1,"c":2,"v":80,"t":"2026-08-28T15:00:00Z"}],"symbol":"AAPL","next_page_token":null}`)
	}))

	bars, err := client.GetBars(context.Background(), "AAPL", "1Hour",
		time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 2, pages)
	assert.Equal(t, 2.0, bars[1].Close)
}

func TestGetBatchVolatilityBoundedConcurrency(t *testing.T) {
	var inFlight, peak int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)

		symbol := strings.TrimPrefix(r.URL.Path, "/v1beta1/options/snapshots/")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"snapshots": map[string]interface{}{
				symbol: map[string]interface{}{"impliedVolatility": 0.25},
			},
		})
	}))

	symbols := make([]string, 40)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("OPT%02d", i)
	}

	results, err := client.GetBatchVolatility(context.Background(), symbols)
	require.NoError(t, err)
	assert.Len(t, results, 40)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(10), "batch fan-out must stay within the gate")
}

func TestGetBatchVolatilitySkipsFailures(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/v1beta1/options/snapshots/")
		if symbol == "OPTBAD" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"snapshots": map[string]interface{}{
				symbol: map[string]interface{}{"impliedVolatility": 0.3},
			},
		})
	}))

	results, err := client.GetBatchVolatility(context.Background(), []string{"OPTA", "OPTBAD", "OPTB"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.NotContains(t, results, "OPTBAD")
}

func TestGetVolatilityChainMeanIV(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta1/options/snapshots/SPY", r.URL.Path)
		fmt.Fprint(w, `{"snapshots":{
			"SPY260918C00500000":{"impliedVolatility":0.2},
			"SPY260918C00510000":{"impliedVolatility":0.3},
			"SPY260918P00490000":{"impliedVolatility":0.4}
		}}`)
	}))

	chain, err := client.GetVolatilityChain(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", chain.Underlying)
	assert.Len(t, chain.Options, 3)
	assert.InDelta(t, 0.3, chain.MeanIV, 1e-9)
	assert.False(t, chain.FetchedAt.IsZero())
}

func TestGetRetriesServerError(t *testing.T) {
	var calls int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"symbol":"AAPL","quote":{"bp":1,"bs":1,"ap":2,"as":1,"t":"2026-08-28T14:00:00Z"}}`)
	}))

	quote, err := client.GetLatestQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Equal(t, 1.0, quote.BidPrice)
}

func TestGetFatalOnClientError(t *testing.T) {
	var calls int64
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, "no such symbol", http.StatusNotFound)
	}))

	_, err := client.GetLatestQuote(context.Background(), "NOPE")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}
