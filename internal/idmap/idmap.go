// Package idmap tracks how surrogate ids translate from a source store to a
// destination store during one merge run.
package idmap

import "github.com/rfletcher/jwlsync/internal/schema"

// Table maps source-store surrogate ids to their destination counterparts
// for one entity kind.
type Table map[int64]int64

// Put records the destination id assigned to a source id. Each source id is
// processed once per run, so entries are never overwritten in practice.
func (t Table) Put(oldID, newID int64) {
	t[oldID] = newID
}

// Resolve returns the destination id recorded for a source id.
func (t Table) Resolve(oldID int64) (int64, bool) {
	newID, ok := t[oldID]
	return newID, ok
}

// Set holds one run's translation tables, one per kind with a surrogate id.
// A Set is never shared across runs. Resolving against a kind that has not
// merged yet finds nothing; the merge schedule orders kinds so that never
// happens for bound references.
type Set map[schema.Kind]Table

// NewSet returns an empty translation set for one run.
func NewSet() Set {
	return make(Set)
}

// For returns the table for kind, creating it on first use.
func (s Set) For(kind schema.Kind) Table {
	t, ok := s[kind]
	if !ok {
		t = make(Table)
		s[kind] = t
	}
	return t
}
