package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultCoinGeckoURL = "https://api.coingecko.com"

// CoinGeckoQuoter serves cryptocurrency spot prices in USD from the
// CoinGecko simple-price endpoint. Identifiers are CoinGecko coin ids
// ("bitcoin", "ethereum", ...), not tickers.
type CoinGeckoQuoter struct {
	baseURL string
	cli     *http.Client
}

func NewCoinGeckoQuoter() *CoinGeckoQuoter {
	return &CoinGeckoQuoter{
		baseURL: defaultCoinGeckoURL,
		cli:     &http.Client{Timeout: 8 * time.Second},
	}
}

func (q *CoinGeckoQuoter) Quote(ctx context.Context, identifier string) (float64, error) {
	coinID := strings.ToLower(strings.TrimSpace(identifier))
	if coinID == "" {
		return 0, ErrPriceNotFound
	}

	endpoint := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd",
		q.baseURL, url.QueryEscape(coinID))

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

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, ErrAPIRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko http %d", resp.StatusCode)
	}

	var raw map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return 0, err
	}
	quote, ok := raw[coinID]
	if !ok {
		return 0, ErrPriceNotFound
	}
	price, ok := quote["usd"]
	if !ok || price <= 0 {
		return 0, ErrPriceNotFound
	}
	return price, nil
}
