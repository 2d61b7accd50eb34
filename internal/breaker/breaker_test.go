package breaker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/pkg/models"
)

func newTestBreaker(t *testing.T) (*Breaker, *[]models.BreakerEvent) {
	t.Helper()
	cfgStore := config.NewForTest(config.Default())
	events := &[]models.BreakerEvent{}
	b := New(cfgStore, func(e models.BreakerEvent) { *events = append(*events, e) }, zerolog.Nop())
	return b, events
}

func closedPosition(pnl decimal.Decimal) models.Position {
	return models.Position{Status: models.StatusClosed, RealizedPnL: pnl}
}

func TestActivatesOnConsecutiveLosses(t *testing.T) {
	b, events := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	}
	if !b.IsActive() {
		t.Fatal("expected breaker to activate after 5 consecutive losses")
	}
	if len(*events) != 1 {
		t.Fatalf("expected one activation event, got %d", len(*events))
	}
}

func TestDoesNotActivateBelowWinRateFloorUntilMinPositions(t *testing.T) {
	b, _ := newTestBreaker(t)
	// 3 losses then a win: win rate 0.25 is below 0.35 but window (4) < min_positions (10).
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(1)))
	if b.IsActive() {
		t.Fatal("expected breaker to stay inactive before min_positions is reached")
	}
}

// TestCooldownStartsOnlyAtDeactivationAttempt checks that the cooldown
// clock only starts once conditions have cleared and evaluate() runs
// again (a "deactivation attempt"), not
// from the moment of activation.
func TestCooldownStartsOnlyAtDeactivationAttempt(t *testing.T) {
	b, _ := newTestBreaker(t)
	cfg := config.Default()
	cfg.Breaker.CooldownMinutes = 0 // so any attempt after conditions clear deactivates immediately
	cfg.Breaker.ConsecutiveLossLimit = 2
	b.cfgStore = config.NewForTest(cfg)

	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	if !b.IsActive() {
		t.Fatal("expected breaker active after consecutive losses")
	}

	// A win breaks the consecutive-loss streak: first evaluate with cleared
	// conditions only starts the cooldown, it does not deactivate yet.
	b.RecordClose(closedPosition(decimal.NewFromInt(5)))
	if !b.IsActive() {
		t.Fatal("expected breaker to remain active on the first clear evaluation (cooldown just started)")
	}

	// A second clear evaluation, with cooldown=0, now deactivates.
	b.RecordClose(closedPosition(decimal.NewFromInt(5)))
	if b.IsActive() {
		t.Fatal("expected breaker to deactivate on the second clear evaluation with cooldown elapsed")
	}
}

func TestForceActivateAndDeactivate(t *testing.T) {
	b, events := newTestBreaker(t)
	b.ForceActivate("manual review")
	if !b.IsActive() {
		t.Fatal("expected force-activate to set active")
	}
	b.ForceDeactivate()
	if b.IsActive() {
		t.Fatal("expected force-deactivate to clear active")
	}
	if len(*events) != 2 {
		t.Fatalf("expected 2 logged events (activate+deactivate), got %d", len(*events))
	}
	if !(*events)[1].Forced {
		t.Fatal("expected the deactivation event to be marked forced")
	}
}

func TestDrawdownActivation(t *testing.T) {
	b, _ := newTestBreaker(t)
	b.RecordClose(closedPosition(decimal.NewFromInt(100))) // peak 100
	b.RecordClose(closedPosition(decimal.NewFromInt(-30))) // current 70, drawdown 30% > 25%
	if !b.IsActive() {
		t.Fatal("expected breaker to activate once drawdown exceeds max_drawdown_pct")
	}
}

func TestConsecutiveLossCountResetsOnWin(t *testing.T) {
	b, _ := newTestBreaker(t)
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(1)))
	b.RecordClose(closedPosition(decimal.NewFromInt(-1)))
	if b.IsActive() {
		t.Fatal("a single loss after a win must not re-trip a 5-loss consecutive limit")
	}
	_ = time.Now()
}
