package pricemonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/apperr"
)

// PriceProvider batch-quotes token prices. MaxBatch bounds how many
// addresses one call may carry (100 for the primary provider, 30 for the
// fallback, each provider's own documented batch ceiling).
type PriceProvider interface {
	Name() string
	MaxBatch() int
	BatchPrice(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error)
}

// HTTPPriceProvider calls a batch quote REST endpoint.
type HTTPPriceProvider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	maxBatch   int
	timeout    time.Duration
}

func NewHTTPPriceProvider(name, baseURL string, httpClient *http.Client, maxBatch int, timeout time.Duration) *HTTPPriceProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPPriceProvider{name: name, baseURL: baseURL, httpClient: httpClient, maxBatch: maxBatch, timeout: timeout}
}

func (p *HTTPPriceProvider) Name() string   { return p.name }
func (p *HTTPPriceProvider) MaxBatch() int  { return p.maxBatch }

func (p *HTTPPriceProvider) BatchPrice(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := json.Marshal(struct {
		Tokens []string `json:"tokens"`
	}{Tokens: tokens})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.baseURL+"/prices/batch", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrProviderTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s status %d", apperr.ErrProviderError, p.name, resp.StatusCode)
	}

	var out struct {
		Prices map[string]decimal.Decimal `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", apperr.ErrProviderError, err)
	}
	return out.Prices, nil
}
