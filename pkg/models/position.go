package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionMode distinguishes live trading from synthetic fills.
type PositionMode string

const (
	ModeSimulation PositionMode = "simulation"
	ModeLive       PositionMode = "live"
)

// PositionStatus is the position-lifecycle state machine's current state.
type PositionStatus string

const (
	StatusPendingEntry PositionStatus = "pending_entry"
	StatusOpen         PositionStatus = "open"
	StatusExiting      PositionStatus = "exiting"
	StatusClosed       PositionStatus = "closed"
	StatusErrored      PositionStatus = "errored"
)

// Position is owned exclusively by the position manager; other components
// observe snapshots.
type Position struct {
	ID                    string                `json:"id"`
	Wallet                string                `json:"wallet"`
	Token                 string                `json:"token"`
	Mode                  PositionMode          `json:"mode"`
	Status                PositionStatus        `json:"status"`
	EntryPrice            decimal.Decimal       `json:"entryPrice"`
	EntryAmount           decimal.Decimal       `json:"entryAmount"`
	EntryValue            decimal.Decimal       `json:"entryValue"`
	CurrentAmount         decimal.Decimal       `json:"currentAmount"`
	CurrentPrice          decimal.Decimal       `json:"currentPrice"`
	PeakPrice             decimal.Decimal       `json:"peakPrice"`
	RealizedPnL           decimal.Decimal       `json:"realizedPnl"`
	UnrealizedPnL         decimal.Decimal       `json:"unrealizedPnl"`
	ExitStrategyID        string                `json:"exitStrategyId"`
	ExitStrategyOverride  *ExitStrategyOverride `json:"exitStrategyOverride,omitempty"`
	ExecutedScalingLevels map[string]bool       `json:"executedScalingLevels"` // keyed by ProfitPct.String()
	PriceStale            bool                  `json:"priceStale"`
	PriceUpdatedAt        time.Time             `json:"priceUpdatedAt"`
	OpenedAt              time.Time             `json:"openedAt"`
	ClosedAt              *time.Time            `json:"closedAt,omitempty"`
	CloseReason           string                `json:"closeReason,omitempty"`
}

// TotalPnL returns realized + unrealized PnL (testable property 8).
func (p Position) TotalPnL() decimal.Decimal {
	return p.RealizedPnL.Add(p.UnrealizedPnL)
}

// PnLPct returns the signed percentage gain/loss against entry price, using
// the current price. Returns zero if EntryPrice is zero.
func (p Position) PnLPct() decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// ScalingFired reports whether the given level key has already executed.
func (p Position) ScalingFired(levelKey string) bool {
	return p.ExecutedScalingLevels[levelKey]
}
