// Package validation checks the pipeline's sentiment signal against real
// market returns: candle ingestion, correlation backtests, weekly grading,
// and the impact-weight grid search.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"marketintel/internal/core"
)

const (
	finnhubEndpoint = "https://finnhub.io/api/v1/stock/candle"

	// finnhubPacing spaces consecutive API calls.
	finnhubPacing = 1100 * time.Millisecond
)

// FinnhubClient fetches daily candles. Calls are paced to one per 1.1 s.
type FinnhubClient struct {
	apiKey string
	client *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewFinnhubClient creates the client. An empty key disables live fetch; the
// caller should then operate on cached candles only.
func NewFinnhubClient(apiKey string, timeout time.Duration) *FinnhubClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &FinnhubClient{apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

// IsAvailable reports whether live fetch is configured.
func (c *FinnhubClient) IsAvailable() bool { return c.apiKey != "" }

func (c *FinnhubClient) pace() {
	c.mu.Lock()
	wait := finnhubPacing - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

type candleResponse struct {
	Close     []float64 `json:"c"`
	Timestamp []int64   `json:"t"`
	Volume    []int64   `json:"v"`
	Status    string    `json:"s"`
}

// FetchCandles pulls daily candles for the last N days and derives per-day
// percentage change.
func (c *FinnhubClient) FetchCandles(ctx context.Context, symbol string, days int) ([]core.MarketDataPoint, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("finnhub: no API key configured")
	}
	c.pace()

	now := time.Now().UTC()
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", "D")
	params.Set("from", fmt.Sprintf("%d", now.AddDate(0, 0, -days).Unix()))
	params.Set("to", fmt.Sprintf("%d", now.Unix()))
	params.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", finnhubEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("finnhub: failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finnhub: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("finnhub: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("finnhub: failed to read response: %w", err)
	}

	var parsed candleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("finnhub: failed to decode response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("finnhub: response status %q", parsed.Status)
	}
	if len(parsed.Close) != len(parsed.Timestamp) {
		return nil, fmt.Errorf("finnhub: mismatched candle arrays")
	}

	points := make([]core.MarketDataPoint, 0, len(parsed.Close))
	for i := range parsed.Close {
		p := core.MarketDataPoint{
			Date:   time.Unix(parsed.Timestamp[i], 0).UTC().Format("2006-01-02"),
			Symbol: symbol,
			Close:  parsed.Close[i],
		}
		if i < len(parsed.Volume) {
			p.Volume = parsed.Volume[i]
		}
		if i > 0 && parsed.Close[i-1] != 0 {
			p.ChangePct = (parsed.Close[i] - parsed.Close[i-1]) / parsed.Close[i-1] * 100
		}
		points = append(points, p)
	}
	return points, nil
}
