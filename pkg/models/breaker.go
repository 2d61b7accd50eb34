package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BreakerMetrics is the rolling-window snapshot the breaker evaluates
// against BreakerThresholds.
type BreakerMetrics struct {
	WindowPositions   int             `json:"windowPositions"`
	DrawdownPct       decimal.Decimal `json:"drawdownPct"`
	WinRate           decimal.Decimal `json:"winRate"`
	ConsecutiveLosses int             `json:"consecutiveLosses"`
}

// BreakerEvent is an append-only activation/deactivation pair.
type BreakerEvent struct {
	ID                 string            `json:"id"`
	ActivatedAt        time.Time         `json:"activatedAt"`
	Reason             string            `json:"reason"`
	MetricsSnapshot    BreakerMetrics    `json:"metricsSnapshot"`
	ThresholdsSnapshot BreakerThresholds `json:"thresholdsSnapshot"`
	Forced             bool              `json:"forced"`
	DeactivatedAt      *time.Time        `json:"deactivatedAt,omitempty"`
}

func (e BreakerEvent) Active() bool {
	return e.DeactivatedAt == nil
}
