// Package coingecko provides the market-data client used by the collection
// and evaluation pipelines. It pages through /coins/markets until the
// configured coin budget or an empty page, filters out illiquid coins, and
// exposes a batched spot-price lookup for the evaluator.
//
// The client performs no adaptive rate limiting: a fixed delay between
// paginated requests is the provider's documented expectation for demo keys,
// and request failures (including 429s) surface to the scheduler as
// retryable errors.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coinsentry/engine/internal/logger"
	"github.com/coinsentry/engine/internal/models"
)

// Liquidity floor applied before samples enter a snapshot. Coins below
// either bound produce too much threshold noise to be worth tracking.
const (
	minMarketCap = 1_000_000
	minVolume24h = 100_000
)

// ClientConfig tunes retry and pagination behavior.
type ClientConfig struct {
	PageSize       int
	PageDelay      time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client talks to the CoinGecko REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cfg        ClientConfig
}

// NewClient creates a CoinGecko client. An empty apiKey uses the public
// endpoint; keys starting with "CG-" are demo keys, anything else is
// treated as a pro key.
func NewClient(baseURL, apiKey string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 1500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cfg: cfg,
	}
}

// marketRow mirrors one entry of the /coins/markets response.
type marketRow struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Price       float64  `json:"current_price"`
	MarketCap   float64  `json:"market_cap"`
	Rank        *int     `json:"market_cap_rank"`
	TotalVolume float64  `json:"total_volume"`
	Change1h    *float64 `json:"price_change_percentage_1h_in_currency"`
	Change24h   *float64 `json:"price_change_percentage_24h"`
	Change7d    *float64 `json:"price_change_percentage_7d_in_currency"`
}

// Snapshot fetches market data for up to maxCoins coins, filtered to the
// liquidity floor, along with Bitcoin's 24h change for relative-performance
// comparisons. Pagination stops at an empty page or the coin budget.
func (c *Client) Snapshot(ctx context.Context, maxCoins int) (models.MarketSnapshot, error) {
	if maxCoins <= 0 {
		maxCoins = 1000
	}

	var coins []models.CoinMarketSample
	for page := 1; len(coins) < maxCoins; page++ {
		rows, err := c.marketsPage(ctx, page)
		if err != nil {
			return models.MarketSnapshot{}, fmt.Errorf("failed to fetch markets page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if row.MarketCap < minMarketCap || row.TotalVolume < minVolume24h {
				continue
			}
			coins = append(coins, sampleFromRow(row))
		}

		logger.Debug("Fetched markets page %d (%d rows, %d kept so far)", page, len(rows), len(coins))

		select {
		case <-ctx.Done():
			return models.MarketSnapshot{}, ctx.Err()
		case <-time.After(c.cfg.PageDelay):
		}
	}

	if len(coins) > maxCoins {
		coins = coins[:maxCoins]
	}

	var btcChange24h float64
	for _, coin := range coins {
		if coin.ID == "bitcoin" {
			if coin.Change24h != nil {
				btcChange24h = *coin.Change24h
			}
			break
		}
	}

	return models.MarketSnapshot{
		Coins:        coins,
		Timestamp:    time.Now().UTC(),
		BTCChange24h: btcChange24h,
	}, nil
}

func (c *Client) marketsPage(ctx context.Context, page int) ([]marketRow, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(c.cfg.PageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "1h,24h,7d")

	var rows []marketRow
	if err := c.getJSON(ctx, "/coins/markets", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SimplePrices returns current USD prices for the given coin IDs in one
// request. Unknown coins are absent from the result.
func (c *Client) SimplePrices(ctx context.Context, coinIDs []string) (map[string]float64, error) {
	if len(coinIDs) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(coinIDs, ","))
	params.Set("vs_currencies", "usd")

	var raw map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := c.getJSON(ctx, "/simple/price", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	prices := make(map[string]float64, len(raw))
	for id, entry := range raw {
		if entry.USD != nil {
			prices[id] = *entry.USD
		}
	}
	return prices, nil
}

// getJSON performs a GET with bounded retries and linear backoff. Server
// errors and rate limiting are retried; other client errors are not.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	reqURL := c.baseURL + endpoint + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelayBase * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			if strings.HasPrefix(c.apiKey, "CG-") {
				req.Header.Set("x-cg-demo-api-key", c.apiKey)
			} else {
				req.Header.Set("x-cg-pro-api-key", c.apiKey)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (status %d)", resp.StatusCode)
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		default:
			resp.Body.Close()
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sampleFromRow(row marketRow) models.CoinMarketSample {
	return models.CoinMarketSample{
		ID:        row.ID,
		Symbol:    row.Symbol,
		Name:      row.Name,
		Price:     row.Price,
		MarketCap: row.MarketCap,
		Volume24h: row.TotalVolume,
		Change1h:  row.Change1h,
		Change24h: row.Change24h,
		Change7d:  row.Change7d,
		Rank:      row.Rank,
	}
}
