// Package filter implements the signal filter: drops events from
// non-monitored/blacklisted
// wallets and enriches survivors with wallet context.
package filter

import (
	"github.com/rs/zerolog"

	"github.com/walltrack/engine/internal/walletcache"
	"github.com/walltrack/engine/pkg/models"
)

// Outcome classifies what happened to a SwapEvent in the filter.
type Outcome string

const (
	OutcomeBlacklisted Outcome = "blacklisted"
	OutcomeNotMonitored Outcome = "not_monitored"
	OutcomePassed       Outcome = "passed"
)

type Filter struct {
	wallets *walletcache.Store
	log     zerolog.Logger
}

func New(wallets *walletcache.Store, log zerolog.Logger) *Filter {
	return &Filter{wallets: wallets, log: log.With().Str("component", "filter").Logger()}
}

// Apply looks up the event's wallet and returns the outcome plus, on
// OutcomePassed, the enriched FilteredSignal. Lookup failures (unknown
// wallet) count as not_monitored: the filter never admits an unknown
// wallet (testable property 3, fail-closed).
func (f *Filter) Apply(event models.SwapEvent) (Outcome, *models.FilteredSignal) {
	entry, hit := f.wallets.Get(event.Wallet)

	if entry.IsBlacklisted {
		f.log.Info().Str("wallet", event.Wallet).Msg("signal dropped: wallet blacklisted")
		return OutcomeBlacklisted, nil
	}

	if !hit || !entry.IsMonitored {
		f.log.Debug().Str("wallet", event.Wallet).Msg("signal dropped: wallet not monitored")
		return OutcomeNotMonitored, nil
	}

	signal := &models.FilteredSignal{
		Event:      event,
		ClusterID:  entry.ClusterID,
		IsLeader:   entry.IsClusterLeader,
		Reputation: entry.Reputation,
	}
	return OutcomePassed, signal
}
