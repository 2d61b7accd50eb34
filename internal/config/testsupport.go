package config

import "github.com/walltrack/engine/pkg/models"

// NewForTest builds a Store pre-seeded with snap as the active snapshot and
// no database backing, for unit tests of other components that depend on an
// active config (position, scorer, swapqueue). Never call this outside tests.
func NewForTest(snap models.Snapshot) *Store {
	out := snap
	return &Store{active: &out}
}
