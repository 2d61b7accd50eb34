package pricemonitor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/internal/swapqueue"
	"github.com/walltrack/engine/internal/position"
	"github.com/walltrack/engine/pkg/models"
)

type fakeProvider struct {
	name     string
	maxBatch int
	prices   map[string]decimal.Decimal
	fail     bool
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) MaxBatch() int { return f.maxBatch }
func (f *fakeProvider) BatchPrice(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	if f.fail {
		return nil, errFake
	}
	out := make(map[string]decimal.Decimal)
	for _, t := range tokens {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

var errFake = fakeErr{}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake provider failure" }

func newTestManager(t *testing.T) *position.Manager {
	t.Helper()
	cfgStore := config.NewForTest(config.Default())
	q := swapqueue.New(nil, time.Millisecond, func() bool { return false }, nil, zerolog.Nop())
	return position.New(cfgStore, q, nil, zerolog.Nop())
}

func TestResolvePrices_FallsThroughToFallback(t *testing.T) {
	cfgStore := config.NewForTest(config.Default())
	mgr := newTestManager(t)

	primary := &fakeProvider{name: "primary", maxBatch: 100, fail: true}
	fallback := &fakeProvider{name: "fallback", maxBatch: 30, prices: map[string]decimal.Decimal{"tokenA": decimal.NewFromInt(5)}}

	mon := New(mgr, cfgStore, primary, fallback, func() bool { return false }, zerolog.Nop())

	out := mon.resolvePrices(context.Background(), []string{"tokenA"})
	if !out["tokenA"].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected fallback price 5, got %v", out)
	}
}

func TestResolvePrices_ServesStaleCacheWithinGraceWindow(t *testing.T) {
	cfgStore := config.NewForTest(config.Default())
	mgr := newTestManager(t)

	primary := &fakeProvider{name: "primary", maxBatch: 100, prices: map[string]decimal.Decimal{"tokenA": decimal.NewFromInt(7)}}
	mon := New(mgr, cfgStore, primary, nil, func() bool { return false }, zerolog.Nop())

	first := mon.resolvePrices(context.Background(), []string{"tokenA"})
	if !first["tokenA"].Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected primary price 7 on first call, got %v", first)
	}

	primary.fail = true
	second := mon.resolvePrices(context.Background(), []string{"tokenA"})
	if !second["tokenA"].Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected stale cached price 7 once primary fails, got %v", second)
	}
}

func TestTokensForBucket_ClassifiesByExitStrategy(t *testing.T) {
	cfgStore := config.NewForTest(config.Default())
	mgr := newTestManager(t)
	mon := New(mgr, cfgStore, &fakeProvider{name: "p", maxBatch: 100}, nil, func() bool { return false }, zerolog.Nop())

	wallet := models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}
	scored := models.ScoredSignal{
		Event: models.SwapEvent{
			Wallet:      "w1",
			Token:       "tokenA",
			Direction:   models.DirectionBuy,
			AmountToken: decimal.NewFromInt(1000),
			AmountSOL:   decimal.NewFromInt(1),
		},
		ConvictionTier:     models.TierStandard,
		PositionMultiplier: decimal.NewFromFloat(1.0),
	}
	pos, err := mgr.CreateEntry(scored, wallet, "")
	if err != nil || pos == nil {
		t.Fatalf("expected entry creation, err=%v", err)
	}

	mgr.UpdatePrice("tokenA", pos.EntryPrice.Mul(decimal.NewFromFloat(0.83)), time.Now())

	cfg, _ := cfgStore.Active()
	tokens := mon.tokensForBucket("urgent", *cfg)
	if len(tokens) != 1 || tokens[0] != "tokenA" {
		t.Fatalf("expected tokenA in the urgent bucket near its stop, got %v", tokens)
	}
}

// TestTick_BreachingStopLossRequestsExit exercises the price monitor's
// wiring into the exit evaluator: a
// price tick that breaches stop-loss must move the position to exiting.
func TestTick_BreachingStopLossRequestsExit(t *testing.T) {
	cfgStore := config.NewForTest(config.Default())
	mgr := newTestManager(t)
	primary := &fakeProvider{name: "p", maxBatch: 100, prices: map[string]decimal.Decimal{}}
	mon := New(mgr, cfgStore, primary, nil, func() bool { return false }, zerolog.Nop())

	wallet := models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}
	scored := models.ScoredSignal{
		Event: models.SwapEvent{
			Wallet:      "w1",
			Token:       "tokenA",
			Direction:   models.DirectionBuy,
			AmountToken: decimal.NewFromInt(1000),
			AmountSOL:   decimal.NewFromInt(1),
		},
		ConvictionTier:     models.TierStandard,
		PositionMultiplier: decimal.NewFromFloat(1.0),
	}
	pos, err := mgr.CreateEntry(scored, wallet, "")
	if err != nil || pos == nil {
		t.Fatalf("expected entry creation, err=%v", err)
	}

	// default stop_loss_pct is 20; drop price by 25% to breach it.
	primary.prices["tokenA"] = pos.EntryPrice.Mul(decimal.NewFromFloat(0.75))

	mon.tick(context.Background(), "stable")

	updated, ok := mgr.Get(pos.ID)
	if !ok {
		t.Fatal("expected position to still be tracked")
	}
	if updated.Status != models.StatusExiting {
		t.Fatalf("expected stop-loss breach to move position to exiting, got %s", updated.Status)
	}
}
