package position

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/pkg/models"
)

// RequestExit enqueues an exit order for fraction of entry_amount at the
// priority matching orderType.
// levelKey is only meaningful for OrderExitScaling (idempotence guard so a
// level never fires twice); it is empty for every other exit type.
func (m *Manager) RequestExit(positionID string, orderType models.OrderType, fraction decimal.Decimal, levelKey string) error {
	m.mu.RLock()
	mp, ok := m.positions[positionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	mp.mu.Lock()
	if mp.pos.Status != models.StatusOpen {
		mp.mu.Unlock()
		return nil // no rule may fire while the position is not open
	}
	if levelKey != "" && mp.pos.ScalingFired(levelKey) {
		mp.mu.Unlock()
		return nil // a level never fires twice
	}
	mp.pos.Status = models.StatusExiting
	wallet, token := mp.pos.Wallet, mp.pos.Token
	mode := mp.pos.Mode
	amountToken := mp.pos.EntryAmount.Mul(fraction)
	if amountToken.GreaterThan(mp.pos.CurrentAmount) {
		amountToken = mp.pos.CurrentAmount
	}
	mp.mu.Unlock()

	cfg, _ := m.cfgStore.Active()
	maxRetries := 3
	if cfg != nil {
		maxRetries = cfg.Queue.MaxRetries
	}

	order := &models.Order{
		PositionRef: positionID,
		Type:        orderType,
		Mode:        mode,
		Priority:    models.PriorityFor(orderType),
		Wallet:      wallet,
		Token:       token,
		AmountToken: amountToken,
		Fraction:    fraction,
		LevelKey:    levelKey,
		RequestedAt: time.Now(),
		MaxRetries:  maxRetries,
	}
	return m.queue.Enqueue(order)
}

// HandleOrderUpdate is the swapqueue callback invoked on every terminal
// order. It applies the order's effect to its owning position and is the
// single writer of Position state alongside CreateEntry: everything else
// reads a snapshot, nothing else mutates one.
func (m *Manager) HandleOrderUpdate(order models.Order) {
	if order.PositionRef == "" {
		return
	}
	m.mu.RLock()
	mp, ok := m.positions[order.PositionRef]
	m.mu.RUnlock()
	if !ok {
		return
	}

	mp.mu.Lock()
	isEntry := order.Type == models.OrderEntry
	switch order.Type {
	case models.OrderEntry:
		m.applyEntryResult(mp, order)
	default:
		m.applyExitResult(mp, order)
	}
	// An entry that never filled never deployed capital, so it is not a
	// position-close event for the breaker; only a position that was
	// actually open (and is now closed or errored out of an exit) feeds it.
	closed := !isEntry && (mp.pos.Status == models.StatusClosed || mp.pos.Status == models.StatusErrored)
	snapshot := mp.pos
	mp.mu.Unlock()

	if closed && m.onClose != nil {
		m.onClose(snapshot)
	}
}

func (m *Manager) applyEntryResult(mp *managedPosition, order models.Order) {
	if order.Status == models.OrderFailed {
		mp.pos.Status = models.StatusErrored
		mp.pos.CloseReason = "entry_order_failed"
		closedAt := time.Now()
		mp.pos.ClosedAt = &closedAt
		return
	}
	if order.Status != models.OrderExecuted {
		return
	}

	fillPrice := order.FillPrice
	mp.pos.EntryPrice = fillPrice
	mp.pos.CurrentPrice = fillPrice
	mp.pos.PeakPrice = fillPrice
	if fillPrice.IsPositive() {
		mp.pos.EntryAmount = order.AmountToken.Div(fillPrice)
	}
	mp.pos.CurrentAmount = mp.pos.EntryAmount
	mp.pos.Status = models.StatusOpen
}

func (m *Manager) applyExitResult(mp *managedPosition, order models.Order) {
	if order.Status == models.OrderFailed {
		if order.RetriesExhausted() {
			mp.pos.Status = models.StatusErrored
			mp.pos.CloseReason = "exit_order_failed"
			closedAt := time.Now()
			mp.pos.ClosedAt = &closedAt
			return
		}
		// Not yet exhausted: swapqueue itself retries; position stays
		// "exiting" until a terminal status arrives.
		return
	}
	if order.Status != models.OrderExecuted {
		return
	}

	exitAmount := mp.pos.EntryAmount.Mul(order.Fraction)
	if exitAmount.GreaterThan(mp.pos.CurrentAmount) {
		exitAmount = mp.pos.CurrentAmount
	}
	realizedDelta := exitAmount.Mul(order.FillPrice.Sub(mp.pos.EntryPrice))
	mp.pos.RealizedPnL = mp.pos.RealizedPnL.Add(realizedDelta)
	mp.pos.CurrentAmount = mp.pos.CurrentAmount.Sub(exitAmount)
	if mp.pos.CurrentAmount.IsNegative() {
		mp.pos.CurrentAmount = decimal.Zero
	}

	if order.LevelKey != "" {
		mp.pos.ExecutedScalingLevels[order.LevelKey] = true
	}

	if mp.pos.CurrentAmount.IsZero() {
		mp.pos.Status = models.StatusClosed
		closedAt := time.Now()
		mp.pos.ClosedAt = &closedAt
		mp.pos.CloseReason = closeReasonFor(order.Type)
	} else {
		mp.pos.Status = models.StatusOpen
	}
}

func closeReasonFor(t models.OrderType) string {
	switch t {
	case models.OrderExitMirror:
		return "mirror_exit"
	case models.OrderExitStopLoss:
		return "stop_loss"
	case models.OrderExitTrailing:
		return "trailing_stop"
	case models.OrderExitScaling:
		return "scaling_out"
	default:
		return "manual"
	}
}

// UpdatePrice applies a fresh price tick to every open position on token,
// recomputing peak price and unrealized PnL. A staler tick (at not after the
// position's last PriceUpdatedAt) is dropped, the compare-and-set ordering
// guarantee holds per position.
func (m *Manager) UpdatePrice(token string, price decimal.Decimal, at time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mp := range m.positions {
		mp.mu.Lock()
		if mp.pos.Token == token && mp.pos.Status == models.StatusOpen {
			if !at.After(mp.pos.PriceUpdatedAt) && !mp.pos.PriceUpdatedAt.IsZero() {
				mp.mu.Unlock()
				continue
			}
			mp.pos.CurrentPrice = price
			if price.GreaterThan(mp.pos.PeakPrice) {
				mp.pos.PeakPrice = price
			}
			mp.pos.UnrealizedPnL = mp.pos.CurrentAmount.Mul(price.Sub(mp.pos.EntryPrice))
			mp.pos.PriceUpdatedAt = at
			mp.pos.PriceStale = false
		}
		mp.mu.Unlock()
	}
}

// MarkStale flags every open position on token as price_stale: the exit
// evaluator ignores stale positions for price-sensitive rules
// until refreshed.
func (m *Manager) MarkStale(token string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mp := range m.positions {
		mp.mu.Lock()
		if mp.pos.Token == token && mp.pos.Status == models.StatusOpen {
			mp.pos.PriceStale = true
		}
		mp.mu.Unlock()
	}
}
