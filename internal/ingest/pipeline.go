package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/internal/eventlog"
	"github.com/walltrack/engine/internal/filter"
	"github.com/walltrack/engine/internal/position"
	"github.com/walltrack/engine/internal/scorer"
	"github.com/walltrack/engine/internal/tokencache"
	"github.com/walltrack/engine/internal/walletcache"
	"github.com/walltrack/engine/pkg/models"
)

// signalRecorder narrows *eventlog.Log to the one method the pipeline
// depends on, so tests can fake the inserted/duplicate outcome without a
// database.
type signalRecorder interface {
	RecordSignal(ctx context.Context, event models.SwapEvent) (bool, error)
}

// Pipeline is the async consumer draining the channel the HTTP handler hands
// decoded SwapEvents to. It owns no state of its own: every dependency is a
// shared component reused by other parts of the engine: filter, score, and
// act on a signal without holding up the webhook response.
type Pipeline struct {
	events chan models.SwapEvent

	filter    *filter.Filter
	wallets   *walletcache.Store
	tokens    *tokencache.Store
	scorer    *scorer.Scorer
	positions *position.Manager
	cfgStore  *config.Store
	eventLog  signalRecorder

	log zerolog.Logger
}

func NewPipeline(
	wallets *walletcache.Store,
	tokens *tokencache.Store,
	positions *position.Manager,
	cfgStore *config.Store,
	eventLog *eventlog.Log,
	log zerolog.Logger,
) *Pipeline {
	p := &Pipeline{
		events:    make(chan models.SwapEvent, 1024),
		filter:    filter.New(wallets, log),
		wallets:   wallets,
		tokens:    tokens,
		scorer:    scorer.New(log),
		positions: positions,
		cfgStore:  cfgStore,
		log:       log.With().Str("component", "ingest_pipeline").Logger(),
	}
	// A nil *eventlog.Log assigned directly to the signalRecorder interface
	// field would produce a non-nil interface wrapping a nil pointer, so the
	// `p.eventLog != nil` check in process() would no longer catch it.
	if eventLog != nil {
		p.eventLog = eventLog
	}
	return p
}

// Submit hands a decoded event to the async consumer. Never blocks the
// caller beyond the channel's buffer: a full buffer means the consumer is
// falling behind, and the handler drops the event rather than stall the
// webhook response.
func (p *Pipeline) Submit(event models.SwapEvent) bool {
	select {
	case p.events <- event:
		return true
	default:
		p.log.Warn().Str("tx", event.TxSignature).Msg("pipeline buffer full, dropping event")
		return false
	}
}

// Run drains the channel until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.events:
			p.process(ctx, event)
		}
	}
}

// process records event and, unless it is a replay of an already-recorded
// tx_signature, drives it through the entry or exit path. Re-delivery of the
// same signature (provider retries, webhook replays) must produce at most
// one downstream effect, so a duplicate is recorded (a no-op row) but never
// reaches processEntry/processExit a second time.
func (p *Pipeline) process(ctx context.Context, event models.SwapEvent) {
	if p.eventLog != nil {
		inserted, err := p.eventLog.RecordSignal(ctx, event)
		if err != nil {
			p.log.Error().Err(err).Str("tx", event.TxSignature).Msg("failed to record signal")
		} else if !inserted {
			p.log.Debug().Str("tx", event.TxSignature).Msg("duplicate signal, skipping downstream effect")
			return
		}
	}

	switch event.Direction {
	case models.DirectionBuy:
		p.processEntry(ctx, event)
	case models.DirectionSell:
		p.processExit(event)
	}
}

func (p *Pipeline) processEntry(ctx context.Context, event models.SwapEvent) {
	outcome, signal := p.filter.Apply(event)
	if outcome != filter.OutcomePassed {
		return
	}

	wallet, _ := p.wallets.Get(event.Wallet)
	token := p.tokens.Get(ctx, event.Token)

	cfg, ok := p.cfgStore.Active()
	if !ok {
		p.log.Error().Msg("no active config, dropping signal")
		return
	}

	scored := p.scorer.Score(*signal, wallet, token, cfg, time.Now())
	if !scored.TradeEligible() {
		return
	}

	pos, err := p.positions.CreateEntry(scored, wallet, signal.ClusterID)
	if err != nil {
		p.log.Warn().Err(err).Str("wallet", event.Wallet).Str("token", event.Token).Msg("entry rejected")
		return
	}
	if pos != nil {
		p.log.Info().Str("position", pos.ID).Str("tier", string(scored.ConvictionTier)).Msg("entry created")
	}
}

// processExit implements the mirror-exit path: a sell from a
// mirrored wallet on a token with an open position matching that wallet
// closes the whole position, regardless of scoring or the circuit breaker.
func (p *Pipeline) processExit(event models.SwapEvent) {
	if !p.wallets.IsMonitored(event.Wallet) {
		return
	}
	for _, id := range p.positions.FindOpenByWalletToken(event.Wallet, event.Token) {
		if err := p.positions.RequestExit(id, models.OrderExitMirror, decimal.NewFromInt(1), ""); err != nil {
			p.log.Warn().Err(err).Str("position", id).Msg("mirror exit request failed")
		}
	}
}
