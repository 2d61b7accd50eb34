// Package scorer implements the weighted signal-scoring stage and its
// threshold/tier mapping. Stateless: a pure function of
// (FilteredSignal, WalletEntry, TokenRecord, Config snapshot, now). The four
// factor computations run concurrently via golang.org/x/sync/errgroup, the
// idiomatic fan-out-join primitive for joining N independent goroutines and
// propagating the first error once every input is already resolved.
package scorer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/walltrack/engine/pkg/models"
)

type Scorer struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "scorer").Logger()}
}

// Score computes the weighted final score and conviction tier. Each factor
// is pure arithmetic (all IO already resolved by the caller); errgroup here
// buys nothing for correctness today but leaves room for a factor to grow
// IO-bound later without reshaping the call site.
func (s *Scorer) Score(signal models.FilteredSignal, wallet models.WalletEntry, token models.TokenRecord, cfg *models.Snapshot, now time.Time) models.ScoredSignal {
	var walletFactor, clusterFactor, tokenFactor, contextFactor decimal.Decimal
	var failedGates []string

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error { walletFactor = computeWalletFactor(wallet); return nil })
	g.Go(func() error { clusterFactor = computeClusterFactor(wallet, cfg.SoloClusterBase); return nil })
	g.Go(func() error { tokenFactor = computeTokenFactor(token, cfg.TokenFactor); return nil })
	g.Go(func() error { contextFactor = computeContextFactor(now); return nil })
	_ = g.Wait() // factor funcs never return an error; Wait cannot fail

	final := cfg.Weights.Wallet.Mul(walletFactor).
		Add(cfg.Weights.Cluster.Mul(clusterFactor)).
		Add(cfg.Weights.Token.Mul(tokenFactor)).
		Add(cfg.Weights.Context.Mul(contextFactor))
	final = clamp01(final)

	tier, multiplier := tierFor(final, cfg.TradeThreshold, cfg.HighConvictionThresh)

	if tier != models.TierNone {
		if token.LiquidityUSD.LessThan(cfg.TokenFactor.MinLiquidityUSD) {
			failedGates = append(failedGates, "min_liquidity")
		}
		if token.IsHoneypot {
			failedGates = append(failedGates, "honeypot")
		}
		if len(failedGates) > 0 {
			tier = models.TierNone
			multiplier = zero
		}
	}

	scored := models.ScoredSignal{
		Event:              signal.Event,
		FinalScore:         final,
		ConvictionTier:     tier,
		PositionMultiplier: multiplier,
		Breakdown: models.FactorBreakdown{
			WalletFactor:  walletFactor,
			ClusterFactor: clusterFactor,
			TokenFactor:   tokenFactor,
			ContextFactor: contextFactor,
			FailedGates:   failedGates,
		},
		WeightsSnapshot: cfg.Weights,
		ConfigVersion:   cfg.Version,
		ScoredAt:        now,
	}

	s.log.Debug().
		Str("wallet", signal.Event.Wallet).
		Str("token", signal.Event.Token).
		Str("score", final.String()).
		Str("tier", string(tier)).
		Msg("signal scored")

	return scored
}

// tierFor implements the threshold check and tier mapping.
func tierFor(final, tradeThreshold, highConvictionThreshold decimal.Decimal) (models.ConvictionTier, decimal.Decimal) {
	switch {
	case final.GreaterThan(highConvictionThreshold):
		return models.TierHigh, decimal.NewFromFloat(1.5)
	case final.GreaterThan(tradeThreshold):
		return models.TierStandard, decimal.NewFromInt(1)
	default:
		return models.TierNone, zero
	}
}

func computeWalletFactor(w models.WalletEntry) decimal.Decimal {
	winRate := decimal.NewFromFloat(w.WinRate)
	avgPnL := normalise(decimal.NewFromFloat(w.AvgPnLPct), decimal.NewFromInt(-100), decimal.NewFromInt(500))
	timing := decimal.NewFromFloat(w.TimingPercentile)
	consistency := decimal.NewFromFloat(w.Consistency)

	factor := decimal.NewFromFloat(0.35).Mul(winRate).
		Add(decimal.NewFromFloat(0.25).Mul(avgPnL)).
		Add(decimal.NewFromFloat(0.25).Mul(timing)).
		Add(decimal.NewFromFloat(0.15).Mul(consistency))

	if w.IsClusterLeader {
		factor = factor.Add(decimal.NewFromFloat(0.05))
	}
	if w.IsDecaying {
		factor = factor.Sub(decimal.NewFromFloat(0.15))
	}
	return clamp01(factor)
}

func computeClusterFactor(w models.WalletEntry, soloBase decimal.Decimal) decimal.Decimal {
	if w.ClusterID == "" {
		return soloBase
	}
	m := decimal.NewFromFloat(w.ClusterMultiple)
	// Map m from [1.0, 1.8] onto [soloBase, 1.0].
	frac := normalise(m, one, decimal.NewFromFloat(1.8))
	span := one.Sub(soloBase)
	return clamp01(soloBase.Add(frac.Mul(span)))
}

func computeTokenFactor(t models.TokenRecord, cfg models.TokenFactorConfig) decimal.Decimal {
	liquidity := piecewise(t.LiquidityUSD, cfg.MinLiquidityUSD, cfg.OptimalLiquidityUSD)
	marketCap := piecewise(t.MarketCapUSD, zero, cfg.OptimalMarketCapUSD)

	holderScore := zero
	if t.HolderCount > 0 {
		holderScore = normalise(decimal.NewFromInt(int64(t.HolderCount)), zero, decimal.NewFromInt(500))
	}
	if t.Top10HolderPct.GreaterThan(cfg.Top10ConcentrationPct) {
		excess := t.Top10HolderPct.Sub(cfg.Top10ConcentrationPct)
		holderScore = clamp01(holderScore.Sub(excess.Div(hundred)))
	}

	volume := normalise(t.Volume24hUSD, zero, cfg.OptimalLiquidityUSD.Mul(decimal.NewFromInt(2)))

	blend := liquidity.Mul(decimal.NewFromFloat(0.35)).
		Add(marketCap.Mul(decimal.NewFromFloat(0.25))).
		Add(holderScore.Mul(decimal.NewFromFloat(0.25))).
		Add(volume.Mul(decimal.NewFromFloat(0.15)))

	if t.AgeMinutes.LessThan(cfg.NewTokenPenaltyMin) {
		agePenalty := one.Sub(t.AgeMinutes.Div(cfg.NewTokenPenaltyMin)).Mul(decimal.NewFromFloat(0.3))
		blend = blend.Sub(agePenalty)
	}

	if t.IsHoneypot {
		blend = blend.Sub(decimal.NewFromFloat(0.5))
	} else if t.HasMintAuthority || t.HasFreezeAuthority {
		blend = blend.Sub(decimal.NewFromFloat(0.2))
	}

	return clamp01(blend)
}

func computeContextFactor(now time.Time) decimal.Decimal {
	hour := now.UTC().Hour()
	var timeScore decimal.Decimal
	switch {
	case hour >= 13 && hour < 21: // peak: US afternoon/evening UTC
		timeScore = decimal.NewFromFloat(1.0)
	case (hour >= 8 && hour < 13) || (hour >= 21 && hour < 24):
		timeScore = decimal.NewFromFloat(0.8)
	default:
		timeScore = decimal.NewFromFloat(0.6)
	}
	// Placeholder volatility/activity defaults until real feeds exist.
	volatilityDefault := decimal.NewFromFloat(0.6)
	activityDefault := decimal.NewFromFloat(0.6)

	return clamp01(timeScore.Mul(decimal.NewFromFloat(0.6)).
		Add(volatilityDefault.Mul(decimal.NewFromFloat(0.2))).
		Add(activityDefault.Mul(decimal.NewFromFloat(0.2))))
}
