package walletcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/walltrack/engine/internal/db"
	"github.com/walltrack/engine/pkg/models"
)

const (
	defaultMaxSize  = 10_000
	entryTTL        = 5 * time.Minute
	refreshInterval = 60 * time.Second
)

// Store holds the two hot boolean sets plus an LRU-bounded map of full
// entries: a sync.RWMutex-guarded map generalized into three views over the
// same underlying address space.
type Store struct {
	mu sync.RWMutex

	monitored   map[string]bool
	blacklisted map[string]bool

	entries  map[string]*list.Element // address -> lru element
	lru      *list.List               // front = most recently used
	maxSize  int

	clusters *clusterEngine

	db  *db.Store
	log zerolog.Logger

	refreshFailed bool
}

type lruItem struct {
	address string
	entry   models.WalletEntry
}

func New(store *db.Store, log zerolog.Logger) *Store {
	return &Store{
		monitored:   make(map[string]bool),
		blacklisted: make(map[string]bool),
		entries:     make(map[string]*list.Element),
		lru:         list.New(),
		maxSize:     defaultMaxSize,
		clusters:    newClusterEngine(),
		db:          store,
		log:         log.With().Str("component", "walletcache").Logger(),
	}
}

// Get returns (entry, cacheHit). A miss for a monitored address triggers a
// background refresh; the caller still gets a cache-miss result immediately
// rather than block on that refresh.
func (s *Store) Get(address string) (models.WalletEntry, bool) {
	s.mu.Lock()
	elem, hit := s.entries[address]
	var entry models.WalletEntry
	if hit {
		s.lru.MoveToFront(elem)
		entry = elem.Value.(*lruItem).entry
	}
	isBlacklisted := s.blacklisted[address]
	isMonitored := s.monitored[address]
	s.mu.Unlock()

	if isBlacklisted {
		entry.IsBlacklisted = true
		entry.IsMonitored = false
	} else if !hit {
		entry.IsMonitored = isMonitored
	}

	if !hit && isMonitored {
		go s.refreshOne(address)
	}

	return entry.Effective(), hit
}

// IsBlacklisted reports blacklist status directly from the hot set,
// regardless of whether the full entry is resident in the LRU: blacklist
// always takes precedence over monitored status.
func (s *Store) IsBlacklisted(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blacklisted[address]
}

// IsMonitored reports monitored status, fail-closed (false) on unknown
// addresses, feeding the signal filter's fail-closed semantics.
func (s *Store) IsMonitored(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.blacklisted[address] {
		return false
	}
	return s.monitored[address]
}

// Put inserts or replaces a full entry, evicting the least-recently-used
// entry if the LRU is at capacity.
func (s *Store) Put(entry models.WalletEntry) {
	entry = entry.Effective()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.monitored[entry.Address] = entry.IsMonitored
	s.blacklisted[entry.Address] = entry.IsBlacklisted

	if elem, ok := s.entries[entry.Address]; ok {
		elem.Value.(*lruItem).entry = entry
		s.lru.MoveToFront(elem)
		return
	}

	item := &lruItem{address: entry.Address, entry: entry}
	elem := s.lru.PushFront(item)
	s.entries[entry.Address] = elem

	if len(s.entries) > s.maxSize {
		oldest := s.lru.Back()
		if oldest != nil {
			s.lru.Remove(oldest)
			delete(s.entries, oldest.Value.(*lruItem).address)
		}
	}
}

// ApplyMembership folds a discovery-subsystem cluster publication into the
// cache's union-find tracker and the corresponding entry, if resident.
func (s *Store) ApplyMembership(m models.ClusterMembership) {
	root := s.clusters.union(m.Wallet, m.ClusterID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[m.Wallet]; ok {
		item := elem.Value.(*lruItem)
		item.entry.ClusterID = root
		item.entry.IsClusterLeader = m.IsLeader
		item.entry.ClusterMultiple = m.Amplification
	}
}

// LoadClusterRoot returns the union-find root for an address, if tracked.
func (s *Store) LoadClusterRoot(address string) (string, bool) {
	return s.clusters.root(address)
}

// WarmLoad populates monitored/blacklisted/entries from the tabular store at
// startup.
func (s *Store) WarmLoad(ctx context.Context) error {
	rows, err := s.db.Pool.Query(ctx, `SELECT address, is_monitored, is_blacklisted, cluster_id,
		is_cluster_leader, cluster_amplification, reputation, win_rate, avg_pnl_pct,
		timing_percentile, consistency, is_decaying, updated_at FROM wallets`)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var e models.WalletEntry
		var clusterID *string
		if err := rows.Scan(&e.Address, &e.IsMonitored, &e.IsBlacklisted, &clusterID,
			&e.IsClusterLeader, &e.ClusterMultiple, &e.Reputation, &e.WinRate, &e.AvgPnLPct,
			&e.TimingPercentile, &e.Consistency, &e.IsDecaying, &e.CachedAt); err != nil {
			return err
		}
		if clusterID != nil {
			e.ClusterID = *clusterID
		}
		s.Put(e)
		count++
	}
	s.log.Info().Int("count", count).Msg("wallet cache warm-loaded")
	return rows.Err()
}

// RunRefreshLoop periodically reloads the full set from the tabular store.
// On failure the previous snapshot is retained and a warning is logged.
func (s *Store) RunRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.WarmLoad(ctx); err != nil {
				s.mu.Lock()
				s.refreshFailed = true
				s.mu.Unlock()
				s.log.Warn().Err(err).Msg("wallet cache refresh failed, retaining previous snapshot")
			} else {
				s.mu.Lock()
				s.refreshFailed = false
				s.mu.Unlock()
			}
		}
	}
}

func (s *Store) refreshOne(address string) {
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	row := s.db.Pool.QueryRow(ctx, `SELECT address, is_monitored, is_blacklisted, cluster_id,
		is_cluster_leader, cluster_amplification, reputation, win_rate, avg_pnl_pct,
		timing_percentile, consistency, is_decaying, updated_at FROM wallets WHERE address=$1`, address)

	var e models.WalletEntry
	var clusterID *string
	if err := row.Scan(&e.Address, &e.IsMonitored, &e.IsBlacklisted, &clusterID,
		&e.IsClusterLeader, &e.ClusterMultiple, &e.Reputation, &e.WinRate, &e.AvgPnLPct,
		&e.TimingPercentile, &e.Consistency, &e.IsDecaying, &e.CachedAt); err != nil {
		return
	}
	if clusterID != nil {
		e.ClusterID = *clusterID
	}
	s.Put(e)
}

// Size returns the number of entries resident in the LRU.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
