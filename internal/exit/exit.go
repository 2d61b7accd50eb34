// Package exit implements the exit rule evaluator. Every function here
// is pure: it reads a Position and a merged ExitStrategy and returns a
// decision, never mutating either. The caller (internal/pricemonitor, on
// each tick) is responsible for turning a
// Decision into a position.Manager.RequestExit call.
package exit

import (
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/pkg/models"
)

// Rule identifies which of the four ordered rules fired.
type Rule string

const (
	RuleNone      Rule = ""
	RuleMirror    Rule = "mirror_exit"
	RuleStopLoss  Rule = "stop_loss"
	RuleTrailing  Rule = "trailing_stop"
	RuleScaling   Rule = "scaling_out"
)

// Decision is the outcome of evaluating one position. Fraction is the
// portion of entry_amount to exit; LevelKey is set only for RuleScaling.
type Decision struct {
	Rule     Rule
	Fraction decimal.Decimal
	LevelKey string
}

// Fired reports whether any rule matched.
func (d Decision) Fired() bool {
	return d.Rule != RuleNone
}

// Evaluate applies the four rules in priority order against pos using the
// strategy already merged by ExitStrategyOverride.Merge. mirrorSold reports
// whether the source wallet has sold this position's token (the price
// monitor always passes false; the ingest pipeline requests mirror exits
// directly through position.Manager.RequestExit). No rule fires unless
// the position is open, and a stale price excludes it from the
// price-sensitive rules (stop-loss, trailing-stop); mirror exit and
// scaling-out do not depend on a fresh tick.
func Evaluate(pos models.Position, strategy models.ExitStrategy, mirrorSold bool) Decision {
	if pos.Status != models.StatusOpen {
		return Decision{}
	}

	if mirrorSold {
		return Decision{Rule: RuleMirror, Fraction: decimal.NewFromInt(1)}
	}

	if !pos.PriceStale {
		pnlPct := pos.PnLPct()

		if pnlPct.LessThanOrEqual(strategy.StopLossPct.Neg()) {
			return Decision{Rule: RuleStopLoss, Fraction: decimal.NewFromInt(1)}
		}

		if trailingEngaged(pos, strategy) {
			drawdownFromPeak := pos.CurrentPrice.Sub(pos.PeakPrice).Div(pos.PeakPrice).Mul(decimal.NewFromInt(100))
			if drawdownFromPeak.LessThanOrEqual(strategy.TrailingPct.Neg()) {
				return Decision{Rule: RuleTrailing, Fraction: decimal.NewFromInt(1)}
			}
		}
	}

	for _, level := range strategy.ScalingLevels {
		key := level.ProfitPct.String()
		if pos.ScalingFired(key) {
			continue
		}
		if pos.PnLPct().GreaterThanOrEqual(level.ProfitPct) {
			return Decision{Rule: RuleScaling, Fraction: level.Fraction, LevelKey: key}
		}
	}

	return Decision{}
}

// trailingEngaged reports whether the position's peak gain ever reached the
// strategy's activation threshold, arming the trailing-stop rule.
func trailingEngaged(pos models.Position, strategy models.ExitStrategy) bool {
	if pos.EntryPrice.IsZero() {
		return false
	}
	peakPct := pos.PeakPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(decimal.NewFromInt(100))
	return peakPct.GreaterThanOrEqual(strategy.TrailingActivation)
}

// Bucket is the price monitor's proximity classification, used to pick a
// polling cadence.
type Bucket string

const (
	BucketUrgent Bucket = "urgent"
	BucketActive Bucket = "active"
	BucketStable Bucket = "stable"
)

// Classify buckets a position by proximity to its nearest price-sensitive
// trigger: within 5% of the stop-loss is urgent, trailing engaged is active,
// everything else is stable.
func Classify(pos models.Position, strategy models.ExitStrategy) Bucket {
	if trailingEngaged(pos, strategy) {
		return BucketActive
	}
	pnlPct := pos.PnLPct()
	distanceToStop := pnlPct.Add(strategy.StopLossPct) // 0 at the stop, positive above it
	if distanceToStop.LessThanOrEqual(decimal.NewFromInt(5)) {
		return BucketUrgent
	}
	return BucketStable
}
