package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenRecord is the token cache's per-mint record. Immutable after
// write; a refresh replaces the entire record rather than mutating fields.
type TokenRecord struct {
	Address            string          `json:"address"`
	Symbol             string          `json:"symbol,omitempty"`
	PriceUSD           decimal.Decimal `json:"priceUsd"`
	LiquidityUSD       decimal.Decimal `json:"liquidityUsd"`
	MarketCapUSD        decimal.Decimal `json:"marketCapUsd,omitempty"`
	Volume24hUSD         decimal.Decimal `json:"volume24hUsd"`
	AgeMinutes            decimal.Decimal `json:"ageMinutes"`
	HolderCount            int             `json:"holderCount,omitempty"`
	Top10HolderPct          decimal.Decimal `json:"top10HolderPct,omitempty"`
	IsHoneypot               bool            `json:"isHoneypot,omitempty"`
	HasMintAuthority          bool            `json:"hasMintAuthority,omitempty"`
	HasFreezeAuthority         bool            `json:"hasFreezeAuthority,omitempty"`
	Source                      string          `json:"source"` // "primary", "fallback", "stale", "neutral"
	FetchedAt                    time.Time       `json:"fetchedAt"`
	TTLSeconds                     int             `json:"ttlSeconds"`
}

// IsCacheValid reports whether the record is still fresh at time now.
func (t TokenRecord) IsCacheValid(now time.Time) bool {
	return now.Sub(t.FetchedAt) < time.Duration(t.TTLSeconds)*time.Second
}

// IsNew reports whether the token is younger than newTokenAgeMinutes.
func (t TokenRecord) IsNew(newTokenAgeMinutes decimal.Decimal) bool {
	return t.AgeMinutes.LessThan(newTokenAgeMinutes)
}

// NeutralRecord synthesizes a safe-default record when every real layer of
// the read-through chain has failed to resolve in time.
func NeutralRecord(address string, now time.Time) TokenRecord {
	return TokenRecord{
		Address:      address,
		PriceUSD:     decimal.Zero,
		LiquidityUSD: decimal.Zero,
		Volume24hUSD: decimal.Zero,
		AgeMinutes:   decimal.NewFromInt(0),
		Source:       "neutral",
		FetchedAt:    now,
		TTLSeconds:   0,
	}
}
