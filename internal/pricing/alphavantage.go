package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAlphaVantageURL = "https://www.alphavantage.co"

// AlphaVantageQuoter serves stock and bond quotes from the Alpha Vantage
// TIME_SERIES_INTRADAY endpoint, taking the close of the most recent
// five-minute bar.
type AlphaVantageQuoter struct {
	apiKey  string
	baseURL string
	cli     *http.Client
}

func NewAlphaVantageQuoter(apiKey string) *AlphaVantageQuoter {
	return &AlphaVantageQuoter{
		apiKey:  apiKey,
		baseURL: defaultAlphaVantageURL,
		cli:     &http.Client{Timeout: 8 * time.Second},
	}
}

type alphaVantageResponse struct {
	Note        string                       `json:"Note"`
	Information string                       `json:"Information"`
	Series      map[string]map[string]string `json:"Time Series (5min)"`
}

func (q *AlphaVantageQuoter) Quote(ctx context.Context, identifier string) (float64, error) {
	symbol := strings.ToUpper(strings.TrimSpace(identifier))
	if symbol == "" {
		return 0, ErrPriceNotFound
	}

	endpoint := fmt.Sprintf(
		"%s/query?function=TIME_SERIES_INTRADAY&symbol=%s&interval=5min&outputsize=compact&apikey=%s",
		q.baseURL, url.QueryEscape(symbol), q.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "finbook/1.0")

	resp, err := q.cli.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("alphavantage http %d", resp.StatusCode)
	}

	var raw alphaVantageResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, err
	}
	if raw.Note != "" || raw.Information != "" {
		return 0, ErrAPIRateLimited
	}
	if len(raw.Series) == 0 {
		return 0, ErrPriceNotFound
	}

	// Bars are keyed by timestamp string; the latest one sorts highest.
	var latest string
	for ts := range raw.Series {
		if ts > latest {
			latest = ts
		}
	}
	closeStr := raw.Series[latest]["4. close"]
	price, err := strconv.ParseFloat(closeStr, 64)
	if err != nil || price <= 0 {
		return 0, ErrPriceNotFound
	}
	return price, nil
}
