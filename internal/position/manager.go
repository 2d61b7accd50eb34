// Package position implements the position-lifecycle state machine.
// Mutations on a single position are serialised through that position's own
// sync.Mutex, giving each position a single-owner task for every mutation;
// the top-level map of positions is
// guarded separately so lookups never block on an in-flight mutation of an
// unrelated position.
package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/internal/swapqueue"
	"github.com/walltrack/engine/pkg/models"
)

type managedPosition struct {
	mu  sync.Mutex
	pos models.Position
}

// Manager owns every Position; other components only ever observe a copy
// returned from Manager's methods.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*managedPosition
	clusterOf map[string]string // position id -> cluster id, for concentration limits

	cfgStore *config.Store
	queue    *swapqueue.Queue
	onClose  func(models.Position)
	log      zerolog.Logger
}

// New builds a Manager. onClose, if non-nil, fires once every time a
// position reaches a terminal state through an exit order; a position that
// errors because its entry order failed does not fire it. This lets a breaker
// evaluator observe every position-close event; wiring it to a real
// evaluator is the caller's job (cmd/engine wires it to
// breaker.Breaker.RecordClose).
func New(cfgStore *config.Store, queue *swapqueue.Queue, onClose func(models.Position), log zerolog.Logger) *Manager {
	return &Manager{
		positions: make(map[string]*managedPosition),
		clusterOf: make(map[string]string),
		cfgStore:  cfgStore,
		queue:     queue,
		onClose:   onClose,
		log:       log.With().Str("component", "position").Logger(),
	}
}

// Get returns a snapshot of the position, if tracked.
func (m *Manager) Get(id string) (models.Position, bool) {
	m.mu.RLock()
	mp, ok := m.positions[id]
	m.mu.RUnlock()
	if !ok {
		return models.Position{}, false
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.pos, true
}

// ListOpen returns a snapshot of every position in the open state, for the
// price monitor and exit evaluator to iterate.
func (m *Manager) ListOpen() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Position, 0, len(m.positions))
	for _, mp := range m.positions {
		mp.mu.Lock()
		if mp.pos.Status == models.StatusOpen {
			out = append(out, mp.pos)
		}
		mp.mu.Unlock()
	}
	return out
}

// FindOpenByWalletToken returns the ids of open positions sourced from
// wallet on token, for mirror-exit matching. Matches on the full token
// address.
func (m *Manager) FindOpenByWalletToken(wallet, token string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, mp := range m.positions {
		mp.mu.Lock()
		if mp.pos.Wallet == wallet && mp.pos.Token == token &&
			(mp.pos.Status == models.StatusOpen || mp.pos.Status == models.StatusExiting) {
			ids = append(ids, id)
		}
		mp.mu.Unlock()
	}
	return ids
}

func (m *Manager) register(pos models.Position, clusterID string) *managedPosition {
	mp := &managedPosition{pos: pos}
	m.mu.Lock()
	m.positions[pos.ID] = mp
	m.clusterOf[pos.ID] = clusterID
	m.mu.Unlock()
	return mp
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.positions, id)
	delete(m.clusterOf, id)
	m.mu.Unlock()
}

// counts used by CreateEntry's concentration limits.
func (m *Manager) counts(token, clusterID string) (total, perToken, perCluster int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, mp := range m.positions {
		mp.mu.Lock()
		active := mp.pos.Status == models.StatusPendingEntry || mp.pos.Status == models.StatusOpen || mp.pos.Status == models.StatusExiting
		tok := mp.pos.Token
		mp.mu.Unlock()
		if !active {
			continue
		}
		total++
		if tok == token {
			perToken++
		}
		if clusterID != "" && m.clusterOf[id] == clusterID {
			perCluster++
		}
	}
	return total, perToken, perCluster
}

// CreateEntry implements the entry and position-sizing contract.
// Returns (nil, nil) when the signal is not trade-eligible (nothing to do,
// not an error); returns apperr.ErrLimitExceeded without logging an error
// when a concentration/concurrency limit would be exceeded.
func (m *Manager) CreateEntry(scored models.ScoredSignal, wallet models.WalletEntry, clusterID string) (*models.Position, error) {
	if !scored.TradeEligible() {
		return nil, nil
	}

	cfg, ok := m.cfgStore.Active()
	if !ok {
		return nil, fmt.Errorf("%w: no active config", apperr.ErrInternal)
	}

	total, perToken, perCluster := m.counts(scored.Event.Token, clusterID)
	if total >= cfg.Limits.MaxConcurrent || perToken >= cfg.Limits.MaxPerToken || perCluster >= cfg.Limits.MaxPerCluster {
		return nil, apperr.ErrLimitExceeded
	}

	size := cfg.Limits.BaseSizeSOL.Mul(scored.PositionMultiplier)
	mode := models.ModeLive
	if wallet.SimulationOnly {
		mode = models.ModeSimulation
	}

	pos := models.Position{
		ID:                    uuid.NewString(),
		Wallet:                scored.Event.Wallet,
		Token:                 scored.Event.Token,
		Mode:                  mode,
		Status:                models.StatusPendingEntry,
		EntryValue:            size,
		ExitStrategyID:        cfg.DefaultExitStrategyID,
		ExecutedScalingLevels: make(map[string]bool),
		OpenedAt:              time.Now(),
	}

	if mode == models.ModeSimulation {
		price := observedPrice(scored.Event)
		pos.EntryPrice = price
		pos.PeakPrice = price
		pos.CurrentPrice = price
		if price.IsPositive() {
			pos.EntryAmount = size.Div(price)
		}
		pos.CurrentAmount = pos.EntryAmount
		pos.Status = models.StatusOpen
		m.register(pos, clusterID)
		m.log.Info().Str("position", pos.ID).Msg("simulated entry filled immediately")
		out := pos
		return &out, nil
	}

	mp := m.register(pos, clusterID)

	order := &models.Order{
		PositionRef: pos.ID,
		Type:        models.OrderEntry,
		Mode:        mode,
		Priority:    models.PriorityFor(models.OrderEntry),
		Wallet:      pos.Wallet,
		Token:       pos.Token,
		AmountToken: size, // SOL amount to spend; resolved into token units on fill
		Fraction:    decimal.NewFromInt(1),
		RequestedAt: time.Now(),
		MaxRetries:  cfg.Queue.MaxRetries,
	}

	if err := m.queue.Enqueue(order); err != nil {
		m.unregister(pos.ID)
		return nil, err
	}

	mp.mu.Lock()
	out := mp.pos
	mp.mu.Unlock()
	return &out, nil
}

func observedPrice(event models.SwapEvent) decimal.Decimal {
	if event.AmountToken.IsZero() {
		return decimal.Zero
	}
	return event.AmountSOL.Div(event.AmountToken)
}
