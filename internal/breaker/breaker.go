// Package breaker implements the capital-protection circuit breaker.
// Deliberately hand-rolled over a mutex-guarded rolling window rather than
// built on github.com/sony/gobreaker: gobreaker's ReadyToTrip(Counts)
// callback only sees request/success/failure counts that reset on every
// state change, with no way to express a drawdown percentage or a cooldown
// clock that starts only at a deactivation attempt, without distorting the
// library's own model. The swap queue instead wraps gobreaker around the
// swap gateway HTTP client, a narrower and better-fit use of it.
package breaker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/pkg/models"
)

const maxWindow = 200

// Breaker tracks a rolling window of closed positions and exposes a boolean
// is_active gate consumed by swapqueue.Enqueue.
type Breaker struct {
	mu sync.Mutex

	cfgStore *config.Store
	onEvent  func(models.BreakerEvent)
	log      zerolog.Logger

	window []decimal.Decimal // realized PnL of each closed position, oldest first

	equityPeak    decimal.Decimal
	equityCurrent decimal.Decimal

	active          bool
	current         models.BreakerEvent
	coolDownStarted time.Time
}

func New(cfgStore *config.Store, onEvent func(models.BreakerEvent), log zerolog.Logger) *Breaker {
	return &Breaker{
		cfgStore: cfgStore,
		onEvent:  onEvent,
		log:      log.With().Str("component", "breaker").Logger(),
	}
}

// IsActive reports the current gate state, read by swapqueue before
// admitting a NORMAL-priority (entry) order.
func (b *Breaker) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// RecordClose folds a just-closed position's realized PnL into the rolling
// window and re-evaluates the activation conditions. Does not close
// existing positions itself: exits continue to flow through the exit
// evaluator and swap queue regardless of breaker state.
func (b *Breaker) RecordClose(pos models.Position) {
	cfg, ok := b.cfgStore.Active()
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.equityCurrent = b.equityCurrent.Add(pos.TotalPnL())
	if b.equityCurrent.GreaterThan(b.equityPeak) {
		b.equityPeak = b.equityCurrent
	}

	b.window = append(b.window, pos.TotalPnL())
	if len(b.window) > maxWindow {
		b.window = b.window[len(b.window)-maxWindow:]
	}

	b.evaluate(cfg.Breaker)
}

func (b *Breaker) metrics() models.BreakerMetrics {
	wins := 0
	consecutiveLosses := 0
	for i := len(b.window) - 1; i >= 0; i-- {
		if b.window[i].IsPositive() {
			break
		}
		consecutiveLosses++
	}
	for _, pnl := range b.window {
		if pnl.IsPositive() {
			wins++
		}
	}

	winRate := decimal.Zero
	if len(b.window) > 0 {
		winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(b.window))))
	}

	drawdownPct := decimal.Zero
	if b.equityPeak.IsPositive() {
		drawdownPct = b.equityPeak.Sub(b.equityCurrent).Div(b.equityPeak).Mul(decimal.NewFromInt(100))
	}

	return models.BreakerMetrics{
		WindowPositions:   len(b.window),
		DrawdownPct:       drawdownPct,
		WinRate:           winRate,
		ConsecutiveLosses: consecutiveLosses,
	}
}

// evaluate must be called with mu held.
func (b *Breaker) evaluate(thresholds models.BreakerThresholds) {
	m := b.metrics()

	shouldActivate := m.DrawdownPct.GreaterThan(thresholds.MaxDrawdownPct) ||
		(m.WindowPositions >= thresholds.MinPositions && m.WinRate.LessThan(thresholds.MinWinRate)) ||
		m.ConsecutiveLosses >= thresholds.ConsecutiveLossLimit

	if !b.active {
		if shouldActivate {
			b.activateLocked("threshold breached", m, thresholds, false)
		}
		return
	}

	// Already active: a deactivation attempt only starts the cooldown clock
	// the first time conditions clear, and restarts it if they reassert
	// before the cooldown elapses.
	if shouldActivate {
		b.coolDownStarted = time.Time{}
		return
	}

	if b.coolDownStarted.IsZero() {
		b.coolDownStarted = time.Now()
		return
	}
	if time.Since(b.coolDownStarted) >= time.Duration(thresholds.CooldownMinutes)*time.Minute {
		b.deactivateLocked(false)
	}
}

func (b *Breaker) activateLocked(reason string, m models.BreakerMetrics, thresholds models.BreakerThresholds, forced bool) {
	b.active = true
	b.coolDownStarted = time.Time{}
	b.current = models.BreakerEvent{
		ID:                 uuid.NewString(),
		ActivatedAt:        time.Now(),
		Reason:             reason,
		MetricsSnapshot:    m,
		ThresholdsSnapshot: thresholds,
		Forced:             forced,
	}
	b.log.Warn().Str("reason", reason).Bool("forced", forced).Msg("circuit breaker activated")
	if b.onEvent != nil {
		b.onEvent(b.current)
	}
}

func (b *Breaker) deactivateLocked(forced bool) {
	now := time.Now()
	b.current.DeactivatedAt = &now
	b.current.Forced = b.current.Forced || forced
	event := b.current
	b.active = false
	b.coolDownStarted = time.Time{}
	b.log.Info().Bool("forced", forced).Msg("circuit breaker deactivated")
	if b.onEvent != nil {
		b.onEvent(event)
	}
}

// ForceActivate is the manual override, logged the same as an automatic trip.
func (b *Breaker) ForceActivate(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return
	}
	cfg, _ := b.cfgStore.Active()
	var thresholds models.BreakerThresholds
	if cfg != nil {
		thresholds = cfg.Breaker
	}
	b.activateLocked(reason, b.metrics(), thresholds, true)
}

// ForceDeactivate is the manual override; it bypasses the cooldown entirely,
// since an operator override is an explicit, informed decision.
func (b *Breaker) ForceDeactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return
	}
	b.deactivateLocked(true)
}

// Snapshot returns the current activation event, if the breaker is active.
func (b *Breaker) Snapshot() (models.BreakerEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return models.BreakerEvent{}, false
	}
	return b.current, true
}
