// Package config implements the hot-reloadable parameter store.
// Snapshots are immutable; activation is atomic and fans the new active
// snapshot out to subscribers, the same fan-out-to-typed-channel shape as a
// websocket broadcast hub, generalized to an internal fan-out of typed
// snapshots.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/internal/db"
	"github.com/walltrack/engine/pkg/models"
)

const weightSumTolerance = "0.001"

// Store holds the current draft and active snapshot under a single mutex,
// backed by the configs table for durability across restarts.
type Store struct {
	mu     sync.RWMutex
	draft  *models.Snapshot
	active *models.Snapshot

	store *db.Store
	log   zerolog.Logger

	subMu sync.Mutex
	subs  []chan *models.Snapshot
}

func New(store *db.Store, log zerolog.Logger) *Store {
	return &Store{store: store, log: log.With().Str("component", "config").Logger()}
}

// Load restores draft/active from the database on startup, picking the
// highest-version row of each status.
func (s *Store) Load(ctx context.Context) error {
	rows, err := s.store.Pool.Query(ctx,
		`SELECT version, status, payload, created_at, activated_at, archived_at
		 FROM configs WHERE status IN ('draft','active') ORDER BY version DESC`)
	if err != nil {
		return fmt.Errorf("config: load: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	for rows.Next() {
		var (
			version                 int64
			status                  string
			payload                 []byte
			createdAt               time.Time
			activatedAt, archivedAt *time.Time
		)
		if err := rows.Scan(&version, &status, &payload, &createdAt, &activatedAt, &archivedAt); err != nil {
			return fmt.Errorf("config: scan: %w", err)
		}
		var snap models.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return fmt.Errorf("config: unmarshal snapshot %d: %w", version, err)
		}
		snap.Version = version
		snap.Status = models.ConfigStatus(status)
		snap.CreatedAt = createdAt
		snap.ActivatedAt = activatedAt
		snap.ArchivedAt = archivedAt

		switch snap.Status {
		case models.ConfigActive:
			if s.active == nil || snap.Version > s.active.Version {
				s.active = &snap
			}
		case models.ConfigDraft:
			if s.draft == nil || snap.Version > s.draft.Version {
				s.draft = &snap
			}
		}
	}
	return rows.Err()
}

// Active returns a copy of the current active snapshot. Callers never see a
// partially-updated snapshot because Activate swaps the pointer atomically
// under mu.
func (s *Store) Active() (*models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, false
	}
	snap := *s.active
	return &snap, true
}

// Draft returns a copy of the pending draft, if any.
func (s *Store) Draft() (*models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.draft == nil {
		return nil, false
	}
	snap := *s.draft
	return &snap, true
}

// SaveDraft validates nothing beyond shape and stores the candidate as the
// single draft, overwriting any prior one (at most one draft at a time).
func (s *Store) SaveDraft(ctx context.Context, snap models.Snapshot) (*models.Snapshot, error) {
	s.mu.Lock()
	nextVersion := int64(1)
	if s.active != nil && s.active.Version >= nextVersion {
		nextVersion = s.active.Version + 1
	}
	snap.Version = nextVersion
	snap.Status = models.ConfigDraft
	snap.CreatedAt = time.Now()
	s.draft = &snap
	s.mu.Unlock()

	if err := s.persist(ctx, snap); err != nil {
		return nil, err
	}
	out := snap
	return &out, nil
}

// Activate validates the draft (weight sum, threshold ordering, non-negative
// numerics), then atomically swaps active/draft pointers and archives the
// previous active, all inside one pgx transaction.
func (s *Store) Activate(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	if s.draft == nil {
		s.mu.Unlock()
		return nil, apperr.ErrNoDraft
	}
	candidate := *s.draft
	if err := validate(candidate); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidConfig, err)
	}

	now := time.Now()
	candidate.Status = models.ConfigActive
	candidate.ActivatedAt = &now

	var previous *models.Snapshot
	if s.active != nil {
		prev := *s.active
		prev.Status = models.ConfigArchived
		prev.ArchivedAt = &now
		previous = &prev
	}
	s.mu.Unlock()

	tx, err := s.store.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: begin activate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if previous != nil {
		if err := upsert(ctx, tx, *previous); err != nil {
			return nil, err
		}
	}
	if err := upsert(ctx, tx, candidate); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("config: commit activate tx: %w", err)
	}

	s.mu.Lock()
	out := candidate
	s.active = &out
	s.draft = nil
	s.mu.Unlock()

	s.publish(&out)
	s.log.Info().Int64("version", out.Version).Msg("config activated")
	return &out, nil
}

// DiscardDraft drops the pending draft without affecting active.
func (s *Store) DiscardDraft(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
	return nil
}

// Subscribe registers a channel that receives every future activated
// snapshot. Buffered by 1 so a slow subscriber never blocks Activate;
// callers that need every update must drain promptly.
func (s *Store) Subscribe() <-chan *models.Snapshot {
	ch := make(chan *models.Snapshot, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) publish(snap *models.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop rather than block; readers tolerate brief staleness until
			// the next broadcast.
		}
	}
}

func validate(snap models.Snapshot) error {
	sum := snap.Weights.WeightSum()
	tol, _ := decimal.NewFromString(weightSumTolerance)
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(tol) {
		return fmt.Errorf("scoring weights sum to %s, want 1.0 ± %s", sum, tol)
	}
	if !snap.HighConvictionThresh.GreaterThan(snap.TradeThreshold) {
		return fmt.Errorf("high_conviction_threshold (%s) must exceed trade_threshold (%s)",
			snap.HighConvictionThresh, snap.TradeThreshold)
	}
	for name, v := range map[string]decimal.Decimal{
		"trade_threshold":         snap.TradeThreshold,
		"high_conviction_threshold": snap.HighConvictionThresh,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	return nil
}

func upsert(ctx context.Context, tx pgx.Tx, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("config: marshal snapshot %d: %w", snap.Version, err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO configs (version, status, payload, created_at, activated_at, archived_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (version) DO UPDATE SET
		   status = EXCLUDED.status, payload = EXCLUDED.payload,
		   activated_at = EXCLUDED.activated_at, archived_at = EXCLUDED.archived_at`,
		snap.Version, snap.Status, payload, snap.CreatedAt, snap.ActivatedAt, snap.ArchivedAt)
	if err != nil {
		return fmt.Errorf("config: upsert snapshot %d: %w", snap.Version, err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, snap models.Snapshot) error {
	tx, err := s.store.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("config: begin draft tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := upsert(ctx, tx, snap); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
