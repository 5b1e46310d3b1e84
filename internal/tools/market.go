package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/codelamp/codelamp/internal/httpkit"
)

const coingeckoAPIURL = "https://api.coingecko.com/api/v3"

// MarketClient fetches cryptocurrency prices from the CoinGecko markets API.
type MarketClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMarketClient creates a market data client against the production
// CoinGecko endpoint.
func NewMarketClient(logger *slog.Logger) *MarketClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketClient{
		baseURL:    coingeckoAPIURL,
		httpClient: httpkit.NewClient(),
		logger:     logger.With("source", "coingecko"),
	}
}

// NewMarketClientWithBaseURL creates a client against an alternate
// endpoint. Used by tests.
func NewMarketClientWithBaseURL(baseURL string, logger *slog.Logger) *MarketClient {
	c := NewMarketClient(logger)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// coinMarket is one entry of the coins/markets response.
type coinMarket struct {
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	CurrentPrice *float64 `json:"current_price"`
}

// Price looks up the INR price of a coin by its CoinGecko ID.
func (c *MarketClient) Price(ctx context.Context, coinName string) (*coinMarket, error) {
	endpoint := fmt.Sprintf("%s/coins/markets?vs_currency=inr&ids=%s",
		c.baseURL, url.QueryEscape(strings.ToLower(coinName)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var markets []coinMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("no market data for %q", coinName)
	}

	return &markets[0], nil
}

func (r *Registry) handleCryptoPrice(ctx context.Context, ws *Workspace, args map[string]any) map[string]any {
	coinName := stringArg(args, "coinName")
	if coinName == "" {
		return errorPayload("coinName is required")
	}

	market, err := r.market.Price(ctx, coinName)
	if err != nil {
		r.logger.Warn("crypto price lookup failed", "coin", coinName, "error", err)
		return errorPayload("Failed to fetch price for %s: %v", coinName, err)
	}

	result := map[string]any{
		"coin_name": market.Name,
		"symbol":    market.Symbol,
	}
	if market.CurrentPrice != nil {
		result["price_inr"] = *market.CurrentPrice
	} else {
		result["price_inr"] = nil
	}
	return result
}
