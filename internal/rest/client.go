package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"predictflow/config"
	"predictflow/internal/models"
	"predictflow/logger"
)

const (
	headerKeyID     = "APCA-API-KEY-ID"
	headerSecretKey = "APCA-API-SECRET-KEY"
)

// Client issues typed fetch operations against the quote/options service.
// Every operation acquires the rate limiter, runs through the retry engine
// and validates the expected payload shape.
type Client struct {
	config     config.RestConfig
	httpClient *http.Client
	limiter    *Limiter
	policy     Policy
	log        *logger.Log
}

func NewClient(cfg config.RestConfig) *Client {
	policy := DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelayMs > 0 {
		policy.InitialDelay = cfg.Retry.InitialDelay()
	}

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		limiter:    NewLimiter(cfg.MaxRequestsPerMinute, defaultWindow),
		policy:     policy,
		log:        logger.GetLogger(),
	}
}

// Start launches the rate limiter's periodic eviction sweep. It returns
// immediately; the sweep stops when ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	c.limiter.StartSweep(ctx)
}

// get performs one rate-limited, retried GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	log := c.log.WithComponent("rest_client").WithField("path", path)

	op := func(ctx context.Context) error {
		logger.IncrementRestRequest()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if query != nil {
			req.URL.RawQuery = query.Encode()
		}
		req.Header.Set(headerKeyID, c.config.KeyID)
		req.Header.Set(headerSecretKey, c.config.SecretKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return c.policy.Do(ctx, log, op)
}

type latestQuoteResponse struct {
	Symbol string        `json:"symbol"`
	Quote  *models.Quote `json:"quote"`
}

// GetLatestQuote fetches the most recent quote for an equity symbol.
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var resp latestQuoteResponse
	path := fmt.Sprintf("/v2/stocks/%s/quotes/latest", url.PathEscape(symbol))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Quote == nil {
		return nil, fmt.Errorf("no quote data for symbol %s", symbol)
	}
	quote := *resp.Quote
	quote.Symbol = symbol
	return &quote, nil
}

type barsResponse struct {
	Bars          []models.Bar `json:"bars"`
	Symbol        string       `json:"symbol"`
	NextPageToken *string      `json:"next_page_token"`
}

// GetBars fetches historical bars for a symbol, following pagination until
// the requested limit is reached or the service reports no further pages.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]models.Bar, error) {
	path := fmt.Sprintf("/v2/stocks/%s/bars", url.PathEscape(symbol))

	var bars []models.Bar
	var pageToken *string
	for {
		query := url.Values{}
		query.Set("timeframe", timeframe)
		query.Set("start", start.UTC().Format(time.RFC3339))
		query.Set("end", end.UTC().Format(time.RFC3339))
		if limit > 0 {
			query.Set("limit", strconv.Itoa(limit))
		}
		if pageToken != nil {
			query.Set("page_token", *pageToken)
		}

		var resp barsResponse
		if err := c.get(ctx, path, query, &resp); err != nil {
			return nil, err
		}
		bars = append(bars, resp.Bars...)

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		if limit > 0 && len(bars) >= limit {
			bars = bars[:limit]
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no bar data for symbol %s", symbol)
	}
	return bars, nil
}

type optionChainResponse struct {
	Snapshots map[string]models.OptionSnapshot `json:"snapshots"`
}

// GetOptionChain fetches all option snapshots for an underlying symbol.
func (c *Client) GetOptionChain(ctx context.Context, underlying string) (map[string]models.OptionSnapshot, error) {
	var resp optionChainResponse
	path := fmt.Sprintf("/v1beta1/options/snapshots/%s", url.PathEscape(underlying))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Snapshots) == 0 {
		return nil, fmt.Errorf("no option chain data for %s", underlying)
	}
	return resp.Snapshots, nil
}

// GetOptionVolatility fetches the implied volatility of a single option contract.
func (c *Client) GetOptionVolatility(ctx context.Context, optionSymbol string) (float64, error) {
	var resp optionChainResponse
	path := fmt.Sprintf("/v1beta1/options/snapshots/%s", url.PathEscape(optionSymbol))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return 0, err
	}
	snapshot, ok := resp.Snapshots[optionSymbol]
	if !ok {
		return 0, fmt.Errorf("no volatility data for option %s", optionSymbol)
	}
	return snapshot.ImpliedVolatility, nil
}

// GetBatchVolatility fetches implied volatility for many option contracts
// through a bounded-concurrency gate. Individual failures are logged and the
// symbol is excluded from the result; the batch itself never fails on one
// symbol.
func (c *Client) GetBatchVolatility(ctx context.Context, symbols []string) (map[string]float64, error) {
	width := c.config.BatchConcurrency
	if width <= 0 {
		width = 10
	}

	log := c.log.WithComponent("rest_client")
	results := make(map[string]float64, len(symbols))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, width)
	)

	for _, symbol := range symbols {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return results, ctx.Err()
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			iv, err := c.GetOptionVolatility(ctx, symbol)
			if err != nil {
				log.WithError(err).WithField("symbol", symbol).Warn("batch volatility fetch failed for symbol")
				return
			}

			mu.Lock()
			results[symbol] = iv
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()
	return results, nil
}

// GetVolatilityChain fetches the full option chain for an underlying and
// computes the arithmetic mean implied volatility across all successfully
// fetched contracts.
func (c *Client) GetVolatilityChain(ctx context.Context, underlying string) (*models.VolatilityChain, error) {
	snapshots, err := c.GetOptionChain(ctx, underlying)
	if err != nil {
		return nil, err
	}

	options := make(map[string]float64, len(snapshots))
	sum := 0.0
	for symbol, snapshot := range snapshots {
		options[symbol] = snapshot.ImpliedVolatility
		sum += snapshot.ImpliedVolatility
	}

	return &models.VolatilityChain{
		Underlying: underlying,
		Options:    options,
		MeanIV:     sum / float64(len(options)),
		FetchedAt:  time.Now().UTC(),
	}, nil
}
