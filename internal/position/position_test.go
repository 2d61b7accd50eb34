package position

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/internal/swapqueue"
	"github.com/walltrack/engine/pkg/models"
)

func newTestManager(t *testing.T, cfg models.Snapshot) (*Manager, *swapqueue.Queue) {
	t.Helper()
	cfgStore := config.NewForTest(cfg)
	q := swapqueue.New(nil, time.Millisecond, func() bool { return false }, nil, zerolog.Nop())
	m := New(cfgStore, q, nil, zerolog.Nop())
	return m, q
}

func newTestManagerWithOnClose(t *testing.T, cfg models.Snapshot, onClose func(models.Position)) *Manager {
	t.Helper()
	cfgStore := config.NewForTest(cfg)
	q := swapqueue.New(nil, time.Millisecond, func() bool { return false }, nil, zerolog.Nop())
	return New(cfgStore, q, onClose, zerolog.Nop())
}

// scoredSignal builds a minimal trade-eligible signal for a live wallet.
func scoredSignal(wallet, token string) models.ScoredSignal {
	return models.ScoredSignal{
		Event: models.SwapEvent{
			Wallet:      wallet,
			Token:       token,
			Direction:   models.DirectionBuy,
			AmountToken: decimal.NewFromInt(1000),
			AmountSOL:   decimal.NewFromInt(1),
		},
		ConvictionTier:     models.TierStandard,
		PositionMultiplier: decimal.NewFromFloat(1.0),
	}
}

// TestAccountingInvariant checks testable property 8: current_amount plus
// every realized exit equals entry_amount, and total PnL sums
// realized and unrealized consistently after a partial exit.
func TestAccountingInvariant(t *testing.T) {
	m, _ := newTestManager(t, config.Default())

	wallet := models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}
	scored := scoredSignal("w1", "tokenA")

	pos, err := m.CreateEntry(scored, wallet, "")
	if err != nil || pos == nil {
		t.Fatalf("expected entry to be created, err=%v pos=%v", err, pos)
	}
	if pos.Status != models.StatusOpen {
		t.Fatalf("expected simulated entry to be open immediately, got %s", pos.Status)
	}

	entryAmount := pos.EntryAmount

	m.UpdatePrice("tokenA", pos.EntryPrice.Mul(decimal.NewFromFloat(1.5)), time.Now())

	// Manually apply a half exit via the same path HandleOrderUpdate uses.
	m.mu.RLock()
	mp := m.positions[pos.ID]
	m.mu.RUnlock()

	order := models.Order{
		PositionRef: pos.ID,
		Type:        models.OrderExitScaling,
		Fraction:    decimal.NewFromFloat(0.5),
		LevelKey:    "100",
		Status:      models.OrderExecuted,
		FillPrice:   pos.EntryPrice.Mul(decimal.NewFromFloat(1.5)),
	}
	m.HandleOrderUpdate(order)

	mp.mu.Lock()
	after := mp.pos
	mp.mu.Unlock()

	if !after.CurrentAmount.Add(entryAmount.Mul(decimal.NewFromFloat(0.5))).Equal(entryAmount) {
		t.Fatalf("current_amount + realized exit amount must equal entry_amount: current=%s entry=%s", after.CurrentAmount, entryAmount)
	}
	if after.Status != models.StatusOpen {
		t.Fatalf("expected position to remain open after partial exit, got %s", after.Status)
	}
	if !after.RealizedPnL.IsPositive() {
		t.Fatalf("expected positive realized pnl on a price increase, got %s", after.RealizedPnL)
	}
}

// TestScalingLevelIdempotence checks testable property 9: a scaling level
// that has already fired is refused a second time, even if requested again.
func TestScalingLevelIdempotence(t *testing.T) {
	m, _ := newTestManager(t, config.Default())
	wallet := models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}
	pos, _ := m.CreateEntry(scoredSignal("w1", "tokenA"), wallet, "")

	order := models.Order{
		PositionRef: pos.ID,
		Type:        models.OrderExitScaling,
		Fraction:    decimal.NewFromFloat(0.5),
		LevelKey:    "100",
		Status:      models.OrderExecuted,
		FillPrice:   pos.EntryPrice,
	}
	m.HandleOrderUpdate(order)

	// RequestExit for the same level must now be a no-op (level already fired).
	if err := m.RequestExit(pos.ID, models.OrderExitScaling, decimal.NewFromFloat(0.25), "100"); err != nil {
		t.Fatalf("expected no error from a refused duplicate scaling level, got %v", err)
	}

	got, _ := m.Get(pos.ID)
	if !got.ScalingFired("100") {
		t.Fatalf("expected level 100 to be marked fired")
	}
}

// TestClosesWhenFullyExited checks the terminal transition to closed once
// current_amount reaches zero, and that close_reason reflects the order type.
func TestClosesWhenFullyExited(t *testing.T) {
	m, _ := newTestManager(t, config.Default())
	wallet := models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}
	pos, _ := m.CreateEntry(scoredSignal("w1", "tokenA"), wallet, "")

	order := models.Order{
		PositionRef: pos.ID,
		Type:        models.OrderExitMirror,
		Fraction:    decimal.NewFromInt(1),
		Status:      models.OrderExecuted,
		FillPrice:   pos.EntryPrice,
	}
	m.HandleOrderUpdate(order)

	got, _ := m.Get(pos.ID)
	if got.Status != models.StatusClosed {
		t.Fatalf("expected position closed after full exit, got %s", got.Status)
	}
	if got.CloseReason != "mirror_exit" {
		t.Fatalf("expected close_reason mirror_exit, got %s", got.CloseReason)
	}
	if !got.CurrentAmount.IsZero() {
		t.Fatalf("expected zero current_amount, got %s", got.CurrentAmount)
	}
}

// TestOnCloseFiresOnlyForExitNotEntryFailure checks the breaker-wiring hook:
// a fully-exited position notifies onClose, but a failed entry (capital
// never deployed) does not.
func TestOnCloseFiresOnlyForExitNotEntryFailure(t *testing.T) {
	var closed []models.Position
	m := newTestManagerWithOnClose(t, config.Default(), func(p models.Position) {
		closed = append(closed, p)
	})

	wallet := models.WalletEntry{Address: "w1", IsMonitored: true}
	pos, err := m.CreateEntry(scoredSignal("w1", "tokenA"), wallet, "")
	if err != nil || pos == nil {
		t.Fatalf("expected pending entry to be created, err=%v pos=%v", err, pos)
	}
	if pos.Status != models.StatusPendingEntry {
		t.Fatalf("expected a live (non-simulation) wallet to enqueue a pending entry, got %s", pos.Status)
	}

	m.HandleOrderUpdate(models.Order{
		PositionRef: pos.ID,
		Type:        models.OrderEntry,
		Status:      models.OrderFailed,
	})
	if len(closed) != 0 {
		t.Fatalf("expected a failed entry order not to fire onClose, got %d calls", len(closed))
	}
	got, _ := m.Get(pos.ID)
	if got.Status != models.StatusErrored {
		t.Fatalf("expected errored status after entry failure, got %s", got.Status)
	}

	pos2, _ := m.CreateEntry(scoredSignal("w1", "tokenB"), models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}, "")
	m.HandleOrderUpdate(models.Order{
		PositionRef: pos2.ID,
		Type:        models.OrderExitMirror,
		Fraction:    decimal.NewFromInt(1),
		Status:      models.OrderExecuted,
		FillPrice:   pos2.EntryPrice,
	})
	if len(closed) != 1 {
		t.Fatalf("expected exactly one onClose call after the full exit, got %d", len(closed))
	}
	if closed[0].ID != pos2.ID {
		t.Fatalf("expected onClose to report the exited position, got %s", closed[0].ID)
	}
}

// TestConcentrationLimitPerCluster checks the max-per-cluster limit counts
// only positions tagged with the same cluster id (the counts() bug fixed
// during development).
func TestConcentrationLimitPerCluster(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MaxPerCluster = 1
	m, _ := newTestManager(t, cfg)

	wallet := models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}
	if _, err := m.CreateEntry(scoredSignal("w1", "tokenA"), wallet, "clusterX"); err != nil {
		t.Fatalf("first entry in cluster should succeed: %v", err)
	}
	_, err := m.CreateEntry(scoredSignal("w1", "tokenB"), wallet, "clusterX")
	if err == nil {
		t.Fatalf("expected second entry in the same cluster to be refused by max_per_cluster")
	}
	// A different cluster must not be blocked by clusterX's occupancy.
	if _, err := m.CreateEntry(scoredSignal("w1", "tokenC"), wallet, "clusterY"); err != nil {
		t.Fatalf("entry in a different cluster should succeed: %v", err)
	}
}

// TestUpdatePriceDropsStaleTicks checks that an out-of-order price tick never
// overwrites a fresher one.
func TestUpdatePriceDropsStaleTicks(t *testing.T) {
	m, _ := newTestManager(t, config.Default())
	wallet := models.WalletEntry{Address: "w1", IsMonitored: true, SimulationOnly: true}
	pos, _ := m.CreateEntry(scoredSignal("w1", "tokenA"), wallet, "")

	now := time.Now()
	m.UpdatePrice("tokenA", decimal.NewFromInt(10), now)
	m.UpdatePrice("tokenA", decimal.NewFromInt(5), now.Add(-time.Second))

	got, _ := m.Get(pos.ID)
	if !got.CurrentPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected stale tick to be dropped, current_price=%s", got.CurrentPrice)
	}
}
