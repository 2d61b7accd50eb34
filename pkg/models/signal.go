package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapDirection is the side of a SwapEvent relative to the source wallet.
type SwapDirection string

const (
	DirectionBuy  SwapDirection = "buy"
	DirectionSell SwapDirection = "sell"
)

// SwapEvent is a normalised swap produced by the webhook ingest, consumed by
// the filter, scorer, and position manager, and persisted by the event log.
// Idempotency key: TxSignature.
type SwapEvent struct {
	TxSignature string          `json:"txSignature"`
	Wallet      string          `json:"wallet"`
	Token       string          `json:"token"`
	Direction   SwapDirection   `json:"direction"`
	AmountToken decimal.Decimal `json:"amountToken"`
	AmountSOL   decimal.Decimal `json:"amountSol"`
	Slot        uint64          `json:"slot"`
	Timestamp   time.Time       `json:"ts"`
	RawPayload  []byte          `json:"-"`
}

// FilteredSignal is a SwapEvent that survived the signal filter, enriched
// with wallet context for the scorer.
type FilteredSignal struct {
	Event      SwapEvent `json:"event"`
	ClusterID  string    `json:"clusterId,omitempty"`
	IsLeader   bool      `json:"isLeader"`
	Reputation float64   `json:"reputation"`
}

// ConvictionTier determines whether and how large to trade a ScoredSignal.
type ConvictionTier string

const (
	TierNone     ConvictionTier = "none"
	TierStandard ConvictionTier = "standard"
	TierHigh     ConvictionTier = "high"
)

// FactorBreakdown preserves every intermediate factor value for
// observability and later analysis.
type FactorBreakdown struct {
	WalletFactor  decimal.Decimal `json:"walletFactor"`
	ClusterFactor decimal.Decimal `json:"clusterFactor"`
	TokenFactor   decimal.Decimal `json:"tokenFactor"`
	ContextFactor decimal.Decimal `json:"contextFactor"`
	FailedGates   []string        `json:"failedGates,omitempty"`
}

// ScoredSignal is the immutable output of the scorer.
type ScoredSignal struct {
	Event              SwapEvent        `json:"event"`
	FinalScore         decimal.Decimal  `json:"finalScore"`
	ConvictionTier     ConvictionTier   `json:"convictionTier"`
	PositionMultiplier decimal.Decimal  `json:"positionMultiplier"`
	Breakdown          FactorBreakdown  `json:"breakdown"`
	WeightsSnapshot    ScoringWeights   `json:"weightsSnapshot"`
	ConfigVersion      int64            `json:"configVersion"`
	ScoredAt           time.Time        `json:"scoredAt"`
}

// TradeEligible reports whether the signal should proceed to position
// creation.
func (s ScoredSignal) TradeEligible() bool {
	return s.ConvictionTier != TierNone
}
