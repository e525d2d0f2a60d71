package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RESTConfig configures one generic JSON-over-HTTP provider client.
// Field mapping lives in config so the core stays provider-agnostic: the
// remote JSON keys are translated to canonical field names here and
// nowhere else.
type RESTConfig struct {
	Name           string            `yaml:"name"`
	BaseURL        string            `yaml:"base_url"`
	APIKeyParam    string            `yaml:"api_key_param"` // query parameter carrying the credential
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	FieldMap       map[string]string `yaml:"field_map"`   // canonical field -> remote JSON key
	PeriodMap      map[string]string `yaml:"period_map"`  // canonical field -> period type (defaults to ttm)
	Confidence     float64           `yaml:"confidence"`  // static weight stamped on won fields
}

// RESTClient fetches fundamentals from a JSON endpoint of the form
// GET {base_url}/{entity_id}?{api_key_param}={credential}. The response
// is expected to be a flat object of numeric and string values.
type RESTClient struct {
	cfg    RESTConfig
	http   *http.Client
	apiKey string
	log    zerolog.Logger
}

// NewRESTClient builds a provider client for one upstream endpoint.
func NewRESTClient(cfg RESTConfig, apiKey string, log zerolog.Logger) *RESTClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &RESTClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		apiKey: apiKey,
		log:    log.With().Str("provider", cfg.Name).Logger(),
	}
}

func (c *RESTClient) Name() string { return c.cfg.Name }

// Fetch retrieves the requested fields for one entity. Fields the remote
// payload does not carry are simply absent from the returned record.
func (c *RESTClient) Fetch(ctx context.Context, entityID string, fields []string) (*PartialRecord, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/" + url.PathEscape(entityID))
	if err != nil {
		return nil, NewError(c.cfg.Name, ErrCodeMalformed, "bad base url", err)
	}
	if c.cfg.APIKeyParam != "" && c.apiKey != "" {
		q := u.Query()
		q.Set(c.cfg.APIKeyParam, c.apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, NewError(c.cfg.Name, ErrCodeMalformed, "building request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(c.cfg.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewError(c.cfg.Name, ErrCodeRateLimit, "quota exhausted upstream", nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewError(c.cfg.Name, ErrCodeAuth, fmt.Sprintf("credential rejected: HTTP %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		// Unknown entity: a valid empty answer, not a failure.
		return &PartialRecord{EntityID: entityID, Provider: c.cfg.Name}, nil
	case resp.StatusCode >= 500:
		return nil, NewError(c.cfg.Name, ErrCodeServer, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	default:
		return nil, NewError(c.cfg.Name, ErrCodeServer, fmt.Sprintf("unexpected HTTP %d", resp.StatusCode), nil)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewError(c.cfg.Name, ErrCodeMalformed, "decoding response body", err)
	}

	rec := &PartialRecord{EntityID: entityID, Provider: c.cfg.Name}
	fetchedAt := time.Now().UTC()
	for _, name := range fields {
		remote := name
		if mapped, ok := c.cfg.FieldMap[name]; ok {
			remote = mapped
		}
		raw, ok := payload[remote]
		if !ok {
			continue
		}
		val, ok := decodeValue(raw)
		if !ok {
			continue
		}
		rec.Fields = append(rec.Fields, Field{
			Name:       name,
			Value:      val,
			Period:     c.periodFor(name),
			Source:     c.cfg.Name,
			FetchedAt:  fetchedAt,
			Confidence: c.cfg.Confidence,
		})
	}

	c.log.Debug().
		Str("entity", entityID).
		Int("requested", len(fields)).
		Int("returned", len(rec.Fields)).
		Dur("duration", time.Since(start)).
		Msg("provider fetch complete")

	return rec, nil
}

func (c *RESTClient) periodFor(field string) PeriodType {
	if p, ok := c.cfg.PeriodMap[field]; ok {
		return PeriodType(p)
	}
	return PeriodTTM
}

// decodeValue turns a raw JSON scalar into a typed Value. Nulls, objects
// and arrays are dropped rather than guessed at.
func decodeValue(raw json.RawMessage) (Value, bool) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return NumberValue(num), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return TextValue(s), true
	}
	return Value{}, false
}
