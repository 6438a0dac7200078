// Package idmap maintains the bridge between a bookmark's natural external id
// and the surrogate key assigned by the remote substrate.
//
// The mapping is runtime-only: it is rebuilt from rows on every remote load
// and consulted/extended on every remote save, never persisted on its own.
package idmap

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Row is the slice of a remote bookmark row the bridge needs.
type Row struct {
	InternalID uuid.UUID
	ExternalID string
	UpdatedAt  time.Time
}

// Map is a bijective-per-owner mapping externalId <-> internalId.
type Map struct {
	byExternal map[string]uuid.UUID
	byInternal map[uuid.UUID]string
	orphans    []uuid.UUID
}

// New returns an empty map, ready to be extended during a save.
func New() *Map {
	return &Map{
		byExternal: map[string]uuid.UUID{},
		byInternal: map[uuid.UUID]string{},
	}
}

// Build constructs the mapping from remote rows. The remote substrate may
// hold several rows for one external id (drifted duplicates); for each
// external id the row with the latest update timestamp wins and the losers
// are reported via Orphans so a purge can eventually remove them. Build is a
// pure function of its input.
func Build(rows []Row) *Map {
	winners := make(map[string]Row, len(rows))
	m := New()
	for _, r := range rows {
		prev, ok := winners[r.ExternalID]
		if !ok {
			winners[r.ExternalID] = r
			continue
		}
		if r.UpdatedAt.After(prev.UpdatedAt) {
			winners[r.ExternalID] = r
			m.orphans = append(m.orphans, prev.InternalID)
		} else {
			m.orphans = append(m.orphans, r.InternalID)
		}
	}
	for ext, r := range winners {
		m.byExternal[ext] = r.InternalID
		m.byInternal[r.InternalID] = ext
	}
	return m
}

// Resolve returns the internal id for an external id. ok is false when the
// record has never been remote-persisted.
func (m *Map) Resolve(externalID string) (uuid.UUID, bool) {
	id, ok := m.byExternal[externalID]
	return id, ok
}

// ResolveInternal is the reverse lookup, used when re-attaching association
// rows (tags, highlights, queue entries) to their owning bookmark.
func (m *Map) ResolveInternal(internalID uuid.UUID) (string, bool) {
	ext, ok := m.byInternal[internalID]
	return ext, ok
}

// Put records a freshly assigned surrogate key during a save.
func (m *Map) Put(externalID string, internalID uuid.UUID) {
	m.byExternal[externalID] = internalID
	m.byInternal[internalID] = externalID
}

// Orphans lists surrogate keys of duplicate rows that lost deduplication.
// The bridge only reports them; purging is someone else's job.
func (m *Map) Orphans() []uuid.UUID { return m.orphans }

// Len returns the number of mapped external ids.
func (m *Map) Len() int { return len(m.byExternal) }
