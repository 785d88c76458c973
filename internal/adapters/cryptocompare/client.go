package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://min-api.cryptocompare.com"

	// Free-tier budget is generous; this keeps a polite margin under it.
	requestsPerSec = 2

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// The pricemulti endpoint caps the fsyms list length; well past the
	// token counts a maker realistically quotes.
	maxSymbolsPerCall = 50
)

// Client implements ports.PriceSource against the cryptocompare pricemulti
// endpoint, with rate limiting and bounded retries.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// New creates a Client. An empty baseURL uses the production endpoint.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(requestsPerSec, 2),
	}
}

// FetchUSDPrices returns the USD price per symbol. Symbols the feed does not
// know are absent from the result, never zero-valued.
func (c *Client) FetchUSDPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	if len(symbols) > maxSymbolsPerCall {
		return nil, fmt.Errorf("cryptocompare.FetchUSDPrices: %d symbols exceeds the per-call cap of %d", len(symbols), maxSymbolsPerCall)
	}

	endpoint := fmt.Sprintf("%s/data/pricemulti?fsyms=%s&tsyms=USD",
		c.base, url.QueryEscape(strings.Join(symbols, ",")))

	// map[symbol]map[currency]price
	var raw map[string]map[string]float64
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("cryptocompare.FetchUSDPrices: %w", err)
	}

	prices := make(map[string]float64, len(raw))
	for _, symbol := range symbols {
		quote, ok := raw[symbol]
		if !ok {
			continue
		}
		if usd, okUSD := quote["USD"]; okUSD && usd > 0 {
			prices[symbol] = usd
		}
	}
	return prices, nil
}

// get performs a GET with rate limiting and exponential-backoff retries on
// transport errors and 5xx/429 responses.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if attempt > 0 {
			wait := baseRetryWait * time.Duration(1<<(attempt-1))
			slog.Debug("cryptocompare retry", "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 120))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 120))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
