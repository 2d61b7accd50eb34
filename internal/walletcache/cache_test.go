package walletcache

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/walltrack/engine/pkg/models"
)

func TestBlacklistPrecedence(t *testing.T) {
	s := New(nil, zerolog.Nop())
	s.Put(models.WalletEntry{Address: "A", IsMonitored: true, IsBlacklisted: true})

	entry, _ := s.Get("A")
	if !entry.IsBlacklisted || entry.IsMonitored {
		t.Fatalf("expected blacklist to win over monitored, got %+v", entry)
	}
	if s.IsMonitored("A") {
		t.Fatal("IsMonitored must be false once blacklisted")
	}
}

func TestIsMonitored_FailClosedOnUnknown(t *testing.T) {
	s := New(nil, zerolog.Nop())
	if s.IsMonitored("unknown") {
		t.Fatal("unknown address must not be treated as monitored")
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(nil, zerolog.Nop())
	s.maxSize = 2

	s.Put(models.WalletEntry{Address: "A", IsMonitored: true})
	s.Put(models.WalletEntry{Address: "B", IsMonitored: true})
	s.Put(models.WalletEntry{Address: "C", IsMonitored: true})

	if s.Size() != 2 {
		t.Fatalf("expected LRU bounded to 2 entries, got %d", s.Size())
	}
	if _, hit := s.Get("A"); hit {
		t.Fatal("expected oldest entry A to be evicted")
	}
}

func TestClusterUnion(t *testing.T) {
	s := New(nil, zerolog.Nop())
	s.Put(models.WalletEntry{Address: "A", IsMonitored: true})

	s.ApplyMembership(models.ClusterMembership{Wallet: "A", ClusterID: "K", IsLeader: true, Amplification: 1.4})

	entry, hit := s.Get("A")
	if !hit {
		t.Fatal("expected A to be resident after ApplyMembership")
	}
	if !entry.IsClusterLeader || entry.ClusterMultiple != 1.4 {
		t.Fatalf("expected cluster membership applied, got %+v", entry)
	}
}
