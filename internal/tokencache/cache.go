package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/walltrack/engine/pkg/models"
)

const (
	defaultTTL      = 300 * time.Second
	defaultMaxWait  = 400 * time.Millisecond
	staleGraceWindow = 300 * time.Second
)

// Store is the read-through cache: in-memory (if fresh) → primary → fallback
// → stale in-memory → synthesized neutral record.
// Concurrent misses for the same address coalesce via singleflight — the
// idiomatic Go primitive for exactly this, already indirectly pulled in by
// the gin stack and promoted here to a direct, exercised dependency.
type Store struct {
	mu      sync.RWMutex
	records map[string]models.TokenRecord

	primary  Provider
	fallback Provider

	group   singleflight.Group
	maxWait time.Duration
	ttl     time.Duration

	log zerolog.Logger
}

func New(primary, fallback Provider, log zerolog.Logger) *Store {
	return &Store{
		records:  make(map[string]models.TokenRecord),
		primary:  primary,
		fallback: fallback,
		maxWait:  defaultMaxWait,
		ttl:      defaultTTL,
		log:      log.With().Str("component", "tokencache").Logger(),
	}
}

// Get resolves a token record through the fallback chain, never blocking
// scoring indefinitely: after maxWait it returns whatever layer has
// resolved, including a neutral record.
func (s *Store) Get(ctx context.Context, address string) models.TokenRecord {
	now := time.Now()

	s.mu.RLock()
	if rec, ok := s.records[address]; ok && rec.IsCacheValid(now) {
		s.mu.RUnlock()
		return rec
	}
	s.mu.RUnlock()

	type result struct {
		rec models.TokenRecord
		ok  bool
	}
	resultCh := make(chan result, 1)

	go func() {
		v, _, _ := s.group.Do(address, func() (interface{}, error) {
			return s.fetchThroughChain(ctx, address, now), nil
		})
		resultCh <- result{rec: v.(models.TokenRecord), ok: true}
	}()

	select {
	case r := <-resultCh:
		s.store(r.rec)
		return r.rec
	case <-time.After(s.maxWait):
		s.mu.RLock()
		stale, ok := s.records[address]
		s.mu.RUnlock()
		if ok {
			stale.Source = "stale"
			return stale
		}
		return models.NeutralRecord(address, now)
	}
}

func (s *Store) fetchThroughChain(ctx context.Context, address string, now time.Time) models.TokenRecord {
	if s.primary != nil {
		if rec, err := s.primary.Fetch(ctx, address); err == nil {
			rec.TTLSeconds = int(s.ttl.Seconds())
			rec.Source = "primary"
			return rec
		} else {
			s.log.Warn().Err(err).Str("token", address).Msg("primary token provider failed, falling through")
		}
	}
	if s.fallback != nil {
		if rec, err := s.fallback.Fetch(ctx, address); err == nil {
			rec.TTLSeconds = int(s.ttl.Seconds())
			rec.Source = "fallback"
			return rec
		} else {
			s.log.Warn().Err(err).Str("token", address).Msg("fallback token provider failed, falling through")
		}
	}

	s.mu.RLock()
	stale, ok := s.records[address]
	s.mu.RUnlock()
	if ok && now.Sub(stale.FetchedAt) < staleGraceWindow {
		stale.Source = "stale"
		return stale
	}

	return models.NeutralRecord(address, now)
}

func (s *Store) store(rec models.TokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Address] = rec
}
