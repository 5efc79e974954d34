package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Quote is one dated market observation for a token, as returned by
// the provider's historical quotes endpoint.
type Quote struct {
	Timestamp         time.Time
	PriceUSD          float64
	Volume24h         float64
	MarketCap         float64
	CirculatingSupply float64
}

// MapEntry is one row of the provider's id->symbol catalog.
type MapEntry struct {
	CmcID  int64  `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Client talks to a CoinMarketCap-compatible quotes API. Every call is
// a single rate-limited HTTP request; throttling between calls is the
// caller's responsibility.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetHistoricalQuotes fetches daily quotes for one token over
// [start, end] inclusive. The provider may return them unordered.
func (c *Client) GetHistoricalQuotes(ctx context.Context, cmcID int64, start, end time.Time) ([]Quote, error) {
	q := url.Values{}
	q.Set("id", fmt.Sprintf("%d", cmcID))
	q.Set("time_start", start.UTC().Format("2006-01-02"))
	q.Set("time_end", end.UTC().Format("2006-01-02"))
	q.Set("interval", "daily")
	q.Set("convert", "USD")

	reqURL := fmt.Sprintf("%s/v2/cryptocurrency/quotes/historical?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("User-Agent", "rankscan/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("quotes api status: %s", resp.Status)
	}

	var result struct {
		Status struct {
			ErrorCode    int    `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
		Data struct {
			Quotes []struct {
				Timestamp time.Time `json:"timestamp"`
				Quote     struct {
					USD struct {
						Price             float64 `json:"price"`
						Volume24h         float64 `json:"volume_24h"`
						MarketCap         float64 `json:"market_cap"`
						CirculatingSupply float64 `json:"circulating_supply"`
					} `json:"USD"`
				} `json:"quote"`
			} `json:"quotes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode quotes response: %w", err)
	}
	if result.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("quotes api error %d: %s", result.Status.ErrorCode, result.Status.ErrorMessage)
	}

	quotes := make([]Quote, 0, len(result.Data.Quotes))
	for _, d := range result.Data.Quotes {
		quotes = append(quotes, Quote{
			Timestamp:         d.Timestamp.UTC(),
			PriceUSD:          d.Quote.USD.Price,
			Volume24h:         d.Quote.USD.Volume24h,
			MarketCap:         d.Quote.USD.MarketCap,
			CirculatingSupply: d.Quote.USD.CirculatingSupply,
		})
	}
	return quotes, nil
}

// ListTokenMap fetches up to limit catalog entries ordered by the
// provider's rank. Used by the import_tokens tool.
func (c *Client) ListTokenMap(ctx context.Context, limit int) ([]MapEntry, error) {
	if limit <= 0 || limit > 5000 {
		limit = 5000
	}
	reqURL := fmt.Sprintf("%s/v1/cryptocurrency/map?sort=cmc_rank&limit=%d", c.baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("User-Agent", "rankscan/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token map status: %s", resp.Status)
	}

	var result struct {
		Status struct {
			ErrorCode    int    `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
		Data []MapEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode token map: %w", err)
	}
	if result.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("token map error %d: %s", result.Status.ErrorCode, result.Status.ErrorMessage)
	}
	return result.Data, nil
}
