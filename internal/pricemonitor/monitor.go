// Package pricemonitor implements the price monitor. A ticker-driven
// background loop per
// bucket: tick + select on ctx.Done(), three independently-ticking buckets
// instead of one fixed poll interval. Batch progress is tracked with atomic
// counters.
package pricemonitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/internal/exit"
	"github.com/walltrack/engine/internal/position"
	"github.com/walltrack/engine/pkg/models"
)

const staleGraceWindow = 300 * time.Second

type cachedPrice struct {
	price decimal.Decimal
	at    time.Time
}

// Monitor drives three bucketed polling loops against the position manager.
type Monitor struct {
	positions     *position.Manager
	cfgStore      *config.Store
	primary       PriceProvider
	fallback      PriceProvider
	breakerActive func() bool

	cacheMu sync.Mutex
	cache   map[string]cachedPrice

	totalTicks   atomic.Int64
	totalQuoted  atomic.Int64
	totalStale   atomic.Int64

	log zerolog.Logger
}

func New(positions *position.Manager, cfgStore *config.Store, primary, fallback PriceProvider, breakerActive func() bool, log zerolog.Logger) *Monitor {
	return &Monitor{
		positions:     positions,
		cfgStore:      cfgStore,
		primary:       primary,
		fallback:      fallback,
		breakerActive: breakerActive,
		cache:         make(map[string]cachedPrice),
		log:           log.With().Str("component", "pricemonitor").Logger(),
	}
}

// Run starts the three bucket loops and blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	cfg, ok := m.cfgStore.Active()
	urgent, active, stable := 20, 30, 60
	if ok {
		urgent, active, stable = cfg.Polling.UrgentSeconds, cfg.Polling.ActiveSeconds, cfg.Polling.StableSeconds
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.runBucket(ctx, exit.BucketUrgent, time.Duration(urgent)*time.Second) }()
	go func() { defer wg.Done(); m.runBucket(ctx, exit.BucketActive, time.Duration(active)*time.Second) }()
	go func() { defer wg.Done(); m.runBucket(ctx, exit.BucketStable, time.Duration(stable)*time.Second) }()
	wg.Wait()
}

func (m *Monitor) runBucket(ctx context.Context, bucket exit.Bucket, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, bucket)
		}
	}
}

// tick collects the distinct token set for bucket's current membership and
// resolves a price for each. Pausing entirely while the breaker is active
// would leave open positions blind to exit-triggering price moves, so the
// monitor keeps polling through a breaker activation: only new entries are
// blocked, existing positions are never stranded.
func (m *Monitor) tick(ctx context.Context, bucket exit.Bucket) {
	m.totalTicks.Add(1)

	cfg, ok := m.cfgStore.Active()
	if !ok {
		return
	}

	tokens := m.tokensForBucket(bucket, *cfg)
	if len(tokens) == 0 {
		return
	}

	prices := m.resolvePrices(ctx, tokens)
	now := time.Now()
	updated := make(map[string]bool, len(prices))
	for token, price := range prices {
		m.positions.UpdatePrice(token, price, now)
		m.totalQuoted.Add(1)
		updated[token] = true
	}
	for _, token := range tokens {
		if _, ok := prices[token]; !ok {
			m.positions.MarkStale(token)
			m.totalStale.Add(1)
			m.log.Warn().Str("token", token).Msg("price unresolved past fallback chain, marking stale")
		}
	}

	m.evaluateExits(*cfg, updated)
}

// evaluateExits runs the exit evaluator against every open position on a token whose price
// was just refreshed this tick, enqueuing whichever rule fires first. Mirror
// exit is excluded here: it is detected directly from the mirrored wallet's
// sell event by the ingest pipeline, not from a price tick.
func (m *Monitor) evaluateExits(cfg models.Snapshot, updatedTokens map[string]bool) {
	if len(updatedTokens) == 0 {
		return
	}

	strategyByID := make(map[string]models.ExitStrategy, len(cfg.ExitStrategies))
	for _, s := range cfg.ExitStrategies {
		strategyByID[s.ID] = s
	}

	for _, pos := range m.positions.ListOpen() {
		if !updatedTokens[pos.Token] {
			continue
		}
		strategy := pos.ExitStrategyOverride.Merge(strategyByID[pos.ExitStrategyID])
		decision := exit.Evaluate(pos, strategy, false)
		if !decision.Fired() {
			continue
		}
		orderType, ok := orderTypeForRule(decision.Rule)
		if !ok {
			continue
		}
		if err := m.positions.RequestExit(pos.ID, orderType, decision.Fraction, decision.LevelKey); err != nil {
			m.log.Warn().Err(err).Str("position", pos.ID).Str("rule", string(decision.Rule)).Msg("exit request failed")
		}
	}
}

func orderTypeForRule(rule exit.Rule) (models.OrderType, bool) {
	switch rule {
	case exit.RuleStopLoss:
		return models.OrderExitStopLoss, true
	case exit.RuleTrailing:
		return models.OrderExitTrailing, true
	case exit.RuleScaling:
		return models.OrderExitScaling, true
	default:
		return "", false
	}
}

func (m *Monitor) tokensForBucket(bucket exit.Bucket, cfg models.Snapshot) []string {
	strategyByID := make(map[string]models.ExitStrategy, len(cfg.ExitStrategies))
	for _, s := range cfg.ExitStrategies {
		strategyByID[s.ID] = s
	}

	seen := make(map[string]struct{})
	var tokens []string
	for _, pos := range m.positions.ListOpen() {
		strategy := strategyByID[pos.ExitStrategyID]
		strategy = pos.ExitStrategyOverride.Merge(strategy)
		if exit.Classify(pos, strategy) != bucket {
			continue
		}
		if _, dup := seen[pos.Token]; dup {
			continue
		}
		seen[pos.Token] = struct{}{}
		tokens = append(tokens, pos.Token)
	}
	return tokens
}

// resolvePrices implements the primary -> fallback -> stale-cache ->
// unresolved chain in batches bounded by each provider's MaxBatch.
func (m *Monitor) resolvePrices(ctx context.Context, tokens []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(tokens))

	remaining := m.batchFetch(ctx, m.primary, tokens, out)
	if len(remaining) > 0 && m.fallback != nil {
		remaining = m.batchFetch(ctx, m.fallback, remaining, out)
	}

	if len(remaining) == 0 {
		m.updateCache(out)
		return out
	}

	now := time.Now()
	m.cacheMu.Lock()
	var stillMissing []string
	for _, token := range remaining {
		if cp, ok := m.cache[token]; ok && now.Sub(cp.at) < staleGraceWindow {
			out[token] = cp.price
		} else {
			stillMissing = append(stillMissing, token)
		}
	}
	m.cacheMu.Unlock()

	m.updateCache(out)
	_ = stillMissing // left unresolved; caller marks these stale
	return out
}

func (m *Monitor) batchFetch(ctx context.Context, provider PriceProvider, tokens []string, out map[string]decimal.Decimal) []string {
	if provider == nil {
		return tokens
	}

	max := provider.MaxBatch()
	if max <= 0 {
		max = len(tokens)
	}

	var missing []string
	for start := 0; start < len(tokens); start += max {
		end := start + max
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		prices, err := provider.BatchPrice(ctx, chunk)
		if err != nil {
			m.log.Warn().Str("provider", provider.Name()).Err(err).Int("tokens", len(chunk)).Msg("batch price call failed")
			missing = append(missing, chunk...)
			continue
		}
		for _, token := range chunk {
			if p, ok := prices[token]; ok {
				out[token] = p
			} else {
				missing = append(missing, token)
			}
		}
	}
	return missing
}

func (m *Monitor) updateCache(prices map[string]decimal.Decimal) {
	now := time.Now()
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	for token, price := range prices {
		m.cache[token] = cachedPrice{price: price, at: now}
	}
}

// Progress exposes the monitor's batch counters.
type Progress struct {
	TotalTicks  int64 `json:"totalTicks"`
	TotalQuoted int64 `json:"totalQuoted"`
	TotalStale  int64 `json:"totalStale"`
}

func (m *Monitor) Progress() Progress {
	return Progress{
		TotalTicks:  m.totalTicks.Load(),
		TotalQuoted: m.totalQuoted.Load(),
		TotalStale:  m.totalStale.Load(),
	}
}
