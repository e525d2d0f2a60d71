package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PriceConfig configures the market quote endpoint. Quotes are a separate
// feed from fundamentals: GET {base_url}/{entity_id} returning a JSON
// object with the price under json_key.
type PriceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	JSONKey        string        `yaml:"json_key"`
	APIKeyParam    string        `yaml:"api_key_param"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RESTPriceSource fetches current prices over HTTP.
type RESTPriceSource struct {
	cfg    PriceConfig
	http   *http.Client
	apiKey string
}

// NewRESTPriceSource builds a price source for one quote endpoint.
func NewRESTPriceSource(cfg PriceConfig, apiKey string) *RESTPriceSource {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.JSONKey == "" {
		cfg.JSONKey = "price"
	}
	return &RESTPriceSource{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		apiKey: apiKey,
	}
}

// Price fetches the current quote for one entity.
func (p *RESTPriceSource) Price(ctx context.Context, entityID string) (float64, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.BaseURL, "/") + "/" + url.PathEscape(entityID))
	if err != nil {
		return 0, fmt.Errorf("bad price url: %w", err)
	}
	if p.cfg.APIKeyParam != "" && p.apiKey != "" {
		q := u.Query()
		q.Set(p.cfg.APIKeyParam, p.apiKey)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("building price request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching price for %s: %w", entityID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price endpoint returned HTTP %d for %s", resp.StatusCode, entityID)
	}
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decoding price response: %w", err)
	}
	raw, ok := payload[p.cfg.JSONKey]
	if !ok {
		return 0, fmt.Errorf("price response missing key %q", p.cfg.JSONKey)
	}
	var price float64
	if err := json.Unmarshal(raw, &price); err != nil {
		return 0, fmt.Errorf("price value under %q is not numeric: %w", p.cfg.JSONKey, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("price endpoint returned non-positive price %v", price)
	}
	return price, nil
}
