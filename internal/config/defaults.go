package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/pkg/models"
)

// Default returns the seed snapshot used when no active config exists yet.
func Default() models.Snapshot {
	d := func(s string) decimal.Decimal {
		v, _ := decimal.NewFromString(s)
		return v
	}
	return models.Snapshot{
		Status: models.ConfigActive,
		Weights: models.ScoringWeights{
			Wallet:  d("0.40"),
			Cluster: d("0.20"),
			Token:   d("0.25"),
			Context: d("0.15"),
		},
		TradeThreshold:       d("0.70"),
		HighConvictionThresh: d("0.85"),
		SoloClusterBase:      d("0.5"),
		TokenFactor: models.TokenFactorConfig{
			MinLiquidityUSD:       d("10000"),
			OptimalLiquidityUSD:   d("100000"),
			OptimalMarketCapUSD:   d("1000000"),
			NewTokenPenaltyMin:    d("30"),
			Top10ConcentrationPct: d("30"),
		},
		ExitStrategies: []models.ExitStrategy{
			{
				ID:                 "default",
				Name:               "default",
				StopLossPct:        d("20"),
				TrailingPct:        d("15"),
				TrailingActivation: d("50"),
				ScalingLevels: []models.ScalingLevel{
					{ProfitPct: d("100"), Fraction: d("0.5")},
					{ProfitPct: d("200"), Fraction: d("0.25")},
				},
			},
		},
		DefaultExitStrategyID: "default",
		Breaker: models.BreakerThresholds{
			MaxDrawdownPct:       d("25"),
			MinWinRate:           d("0.35"),
			MinPositions:         10,
			ConsecutiveLossLimit: 5,
			CooldownMinutes:      60,
		},
		Queue: models.QueueConfig{
			MinSpacingSeconds: d("2.0"),
			MaxRetries:        3,
		},
		Limits: models.TradeLimits{
			BaseSizeSOL:   d("0.5"),
			MaxConcurrent: 20,
			MaxPerToken:   1,
			MaxPerCluster: 5,
		},
		Polling: models.PollingIntervals{
			UrgentSeconds: 20,
			ActiveSeconds: 30,
			StableSeconds: 60,
		},
		CreatedAt: time.Now(),
	}
}
