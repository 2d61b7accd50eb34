// Package tokencache implements the read-through token metadata cache.
// Provider retry/backoff follows the same bounded-attempts, per-call-timeout
// shape as a
// Bitcoin JSON-RPC client to two REST aggregator clients.
package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/pkg/models"
)

// Provider fetches a single token's metadata/safety record.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, address string) (models.TokenRecord, error)
}

// HTTPProvider calls a market/safety aggregator's REST API.
type HTTPProvider struct {
	name       string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	timeout    time.Duration
}

func NewHTTPProvider(name, baseURL string, httpClient *http.Client, maxRetries int, timeout time.Duration) *HTTPProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPProvider{name: name, baseURL: baseURL, httpClient: httpClient, maxRetries: maxRetries, timeout: timeout}
}

func (p *HTTPProvider) Name() string { return p.name }

// Fetch retries with exponential backoff up to maxRetries, each attempt
// bounded by timeout.
func (p *HTTPProvider) Fetch(ctx context.Context, address string) (models.TokenRecord, error) {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		rec, err := p.fetchOnce(callCtx, address)
		cancel()
		if err == nil {
			rec.Source = p.name
			rec.FetchedAt = time.Now()
			return rec, nil
		}
		lastErr = err

		if attempt < p.maxRetries {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return models.TokenRecord{}, fmt.Errorf("%w: %v", apperr.ErrProviderTimeout, ctx.Err())
			}
		}
	}
	return models.TokenRecord{}, fmt.Errorf("%w: %s exhausted retries: %v", apperr.ErrProviderError, p.name, lastErr)
}

func (p *HTTPProvider) fetchOnce(ctx context.Context, address string) (models.TokenRecord, error) {
	url := fmt.Sprintf("%s/tokens/%s", p.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.TokenRecord{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.TokenRecord{}, fmt.Errorf("%w: %v", apperr.ErrProviderTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TokenRecord{}, fmt.Errorf("%w: status %d", apperr.ErrProviderError, resp.StatusCode)
	}

	var rec models.TokenRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return models.TokenRecord{}, fmt.Errorf("%w: decode: %v", apperr.ErrProviderError, err)
	}
	rec.Address = address
	return rec, nil
}
