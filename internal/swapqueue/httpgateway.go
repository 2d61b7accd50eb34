package swapqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/pkg/models"
)

// HTTPGateway implements Gateway against an external swap gateway's
// quote-then-swap HTTP API: quote(input, output, amount) then
// swap(quote, slippage). Crafting the on-chain transaction itself is
// explicitly out of scope here; this client only talks to the gateway that
// does.
type HTTPGateway struct {
	baseURL      string
	httpClient   *http.Client
	slippageBps  int
}

func NewHTTPGateway(baseURL string, slippageBps int, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		slippageBps: slippageBps,
	}
}

type quoteRequest struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	Amount     string `json:"amount"`
}

type quoteResponse struct {
	QuoteID    string `json:"quoteId"`
	OutAmount  string `json:"outAmount"`
	PriceImpact string `json:"priceImpactPct"`
}

type swapRequest struct {
	QuoteID     string `json:"quoteId"`
	SlippageBps int    `json:"slippageBps"`
}

type swapResponse struct {
	TxSignature string `json:"txSignature"`
	FillPrice   string `json:"fillPrice"`
}

const nativeSOLMint = "So11111111111111111111111111111111111111112"

// Execute quotes then swaps order's intent. Buy orders spend SOL for the
// token; exit orders (everything but entry) spend the token back for SOL.
func (g *HTTPGateway) Execute(ctx context.Context, order models.Order) (QuoteResult, error) {
	inputMint, outputMint := nativeSOLMint, order.Token
	if order.Type != models.OrderEntry {
		inputMint, outputMint = order.Token, nativeSOLMint
	}

	quote, err := g.quote(ctx, inputMint, outputMint, order.AmountToken)
	if err != nil {
		return QuoteResult{}, err
	}

	swapResp, err := g.swap(ctx, quote.QuoteID)
	if err != nil {
		return QuoteResult{}, err
	}

	fillPrice, err := decimal.NewFromString(swapResp.FillPrice)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("%w: malformed fill price: %v", apperr.ErrGatewayFailure, err)
	}

	return QuoteResult{TxSignature: swapResp.TxSignature, FillPrice: fillPrice}, nil
}

func (g *HTTPGateway) quote(ctx context.Context, inputMint, outputMint string, amount decimal.Decimal) (quoteResponse, error) {
	payload, err := json.Marshal(quoteRequest{InputMint: inputMint, OutputMint: outputMint, Amount: amount.String()})
	if err != nil {
		return quoteResponse{}, fmt.Errorf("%w: encode quote request: %v", apperr.ErrGatewayFailure, err)
	}

	var out quoteResponse
	if err := g.post(ctx, "/quote", payload, &out); err != nil {
		return quoteResponse{}, err
	}
	return out, nil
}

func (g *HTTPGateway) swap(ctx context.Context, quoteID string) (swapResponse, error) {
	payload, err := json.Marshal(swapRequest{QuoteID: quoteID, SlippageBps: g.slippageBps})
	if err != nil {
		return swapResponse{}, fmt.Errorf("%w: encode swap request: %v", apperr.ErrGatewayFailure, err)
	}

	var out swapResponse
	if err := g.post(ctx, "/swap", payload, &out); err != nil {
		return swapResponse{}, err
	}
	return out, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", apperr.ErrGatewayFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: gateway returned %d: %s", apperr.ErrGatewayFailure, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperr.ErrGatewayFailure, err)
	}
	return nil
}
