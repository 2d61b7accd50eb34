package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConfigStatus is the lifecycle state of a Config snapshot.
type ConfigStatus string

const (
	ConfigDraft    ConfigStatus = "draft"
	ConfigActive   ConfigStatus = "active"
	ConfigArchived ConfigStatus = "archived"
)

// ScoringWeights must sum to 1.0 (within the config store's 0.001 tolerance).
type ScoringWeights struct {
	Wallet  decimal.Decimal `json:"wallet"`
	Cluster decimal.Decimal `json:"cluster"`
	Token   decimal.Decimal `json:"token"`
	Context decimal.Decimal `json:"context"`
}

// ScalingLevel is one partial-exit tier: exit Fraction of entry_amount once
// pnl_pct reaches ProfitPct.
type ScalingLevel struct {
	ProfitPct decimal.Decimal `json:"profitPct"`
	Fraction  decimal.Decimal `json:"fraction"`
}

// ExitStrategy is a named template of exit rules; a Position may carry a
// per-position override that whole-field-replaces any of these fields.
type ExitStrategy struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	StopLossPct        decimal.Decimal `json:"stopLossPct"`
	TrailingPct        decimal.Decimal `json:"trailingPct"`
	TrailingActivation decimal.Decimal `json:"trailingActivationPct"`
	ScalingLevels      []ScalingLevel  `json:"scalingLevels"`
}

// ExitStrategyOverride merges onto an ExitStrategy at evaluation time; a nil
// field means "use the template's value". ScalingLevels, when non-nil,
// replaces the template's list wholesale rather than merging level by level.
type ExitStrategyOverride struct {
	StopLossPct        *decimal.Decimal `json:"stopLossPct,omitempty"`
	TrailingPct        *decimal.Decimal `json:"trailingPct,omitempty"`
	TrailingActivation *decimal.Decimal `json:"trailingActivationPct,omitempty"`
	ScalingLevels      []ScalingLevel   `json:"scalingLevels,omitempty"`
}

// Merge returns the effective strategy after layering o onto base.
func (o *ExitStrategyOverride) Merge(base ExitStrategy) ExitStrategy {
	if o == nil {
		return base
	}
	out := base
	if o.StopLossPct != nil {
		out.StopLossPct = *o.StopLossPct
	}
	if o.TrailingPct != nil {
		out.TrailingPct = *o.TrailingPct
	}
	if o.TrailingActivation != nil {
		out.TrailingActivation = *o.TrailingActivation
	}
	if o.ScalingLevels != nil {
		out.ScalingLevels = o.ScalingLevels
	}
	return out
}

// BreakerThresholds configure the circuit breaker.
type BreakerThresholds struct {
	MaxDrawdownPct        decimal.Decimal `json:"maxDrawdownPct"`
	MinWinRate            decimal.Decimal `json:"minWinRate"`
	MinPositions          int             `json:"minPositions"`
	ConsecutiveLossLimit  int             `json:"consecutiveLossLimit"`
	CooldownMinutes       int             `json:"cooldownMinutes"`
}

// QueueConfig configures swap-queue pacing.
type QueueConfig struct {
	MinSpacingSeconds decimal.Decimal `json:"minSpacingSeconds"`
	MaxRetries        int             `json:"maxRetries"`
}

// TradeLimits bound position creation and sizing.
type TradeLimits struct {
	BaseSizeSOL       decimal.Decimal `json:"baseSizeSol"`
	MaxConcurrent     int             `json:"maxConcurrentPositions"`
	MaxPerToken       int             `json:"maxPerToken"`
	MaxPerCluster     int             `json:"maxPerCluster"`
}

// TokenFactorConfig parameterizes the token factor computation.
type TokenFactorConfig struct {
	MinLiquidityUSD       decimal.Decimal `json:"minLiquidityUsd"`
	OptimalLiquidityUSD   decimal.Decimal `json:"optimalLiquidityUsd"`
	OptimalMarketCapUSD   decimal.Decimal `json:"optimalMarketCapUsd"`
	NewTokenPenaltyMin    decimal.Decimal `json:"newTokenPenaltyMinutes"`
	Top10ConcentrationPct decimal.Decimal `json:"top10ConcentrationPct"`
}

// PollingIntervals configure the price monitor's bucket tick rates, in
// seconds.
type PollingIntervals struct {
	UrgentSeconds int `json:"urgentSeconds"`
	ActiveSeconds int `json:"activeSeconds"`
	StableSeconds int `json:"stableSeconds"`
}

// Snapshot is one immutable, versioned Config record.
type Snapshot struct {
	Version               int64             `json:"version"`
	Status                ConfigStatus      `json:"status"`
	Weights               ScoringWeights    `json:"weights"`
	TradeThreshold        decimal.Decimal   `json:"tradeThreshold"`
	HighConvictionThresh  decimal.Decimal   `json:"highConvictionThreshold"`
	SoloClusterBase       decimal.Decimal   `json:"soloClusterBase"`
	TokenFactor           TokenFactorConfig `json:"tokenFactor"`
	ExitStrategies        []ExitStrategy    `json:"exitStrategies"`
	DefaultExitStrategyID string            `json:"defaultExitStrategyId"`
	Breaker               BreakerThresholds `json:"breaker"`
	Queue                  QueueConfig       `json:"queue"`
	Limits                 TradeLimits       `json:"limits"`
	Polling                PollingIntervals  `json:"polling"`
	CreatedAt              time.Time         `json:"createdAt"`
	ActivatedAt             *time.Time        `json:"activatedAt,omitempty"`
	ArchivedAt               *time.Time        `json:"archivedAt,omitempty"`
}

// WeightSum returns the sum of the four scoring weights.
func (w ScoringWeights) WeightSum() decimal.Decimal {
	return w.Wallet.Add(w.Cluster).Add(w.Token).Add(w.Context)
}
