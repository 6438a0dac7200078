// Package repository declares the persistence interfaces consumed by the
// session controller and the migration coordinator.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/model"
)

// EntityError records a per-record failure during a batched write. The write
// as a whole keeps going; callers inspect the report afterwards.
type EntityError struct {
	ExternalID string
	Err        error
}

// SaveReport summarizes one family write. InsertedIDs lists the external ids
// of rows created by this call, letting callers act on first-time inserts
// only (highlight migration keys off it).
type SaveReport struct {
	Inserted    int
	Updated     int
	Skipped     int
	InsertedIDs []string
	Errors      []EntityError
}

// Add folds another report into r, used when a save spans several families.
func (r *SaveReport) Add(o SaveReport) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Skipped += o.Skipped
	r.InsertedIDs = append(r.InsertedIDs, o.InsertedIDs...)
	r.Errors = append(r.Errors, o.Errors...)
}

// PurgeReport counts rows removed per family during an account erase.
type PurgeReport struct {
	BookmarkTags        int64
	Highlights          int64
	QueueEntries        int64
	CollectionBookmarks int64
	Collections         int64
	Tags                int64
	Bookmarks           int64
	Errors              []error
}

// TagRecord is the remote shape of one tag row. Group membership travels in
// Description using the "group: <label>" convention.
type TagRecord struct {
	Name        string
	Color       string
	Icon        string
	Description string
	AIGenerated bool
}

// StoreRepository is the remote persistence adapter. Every method is scoped
// to a single owner; cross-owner access is impossible by construction.
type StoreRepository interface {
	// Load assembles the owner's full store from remote rows and rebuilds
	// the id bridge. Returns errs.ErrNotFound when the owner has no remote
	// data at all.
	Load(ctx context.Context, ownerID uuid.UUID) (model.Store, *idmap.Map, error)

	// SaveBookmarks upserts bookmarks one by one: existing rows (probed by
	// external id) are updated in place, unknown ones inserted under a fresh
	// surrogate key which is recorded in the bridge. Unique violations are
	// counted as skipped, permission denials abort the whole save.
	SaveBookmarks(ctx context.Context, ownerID uuid.UUID, bookmarks []model.Bookmark, m *idmap.Map) (SaveReport, error)

	// ReplaceQueue rewrites the owner's reading queue wholesale.
	ReplaceQueue(ctx context.Context, ownerID uuid.UUID, q model.ReadingQueue, m *idmap.Map) error

	// SaveTags upserts tag rows keyed by (owner, name).
	SaveTags(ctx context.Context, ownerID uuid.UUID, tags []TagRecord) (SaveReport, error)

	// LinkBookmarkTags attaches tag names to bookmarks. Unknown bookmarks or
	// tags are reported as skipped, existing links are left untouched.
	LinkBookmarkTags(ctx context.Context, ownerID uuid.UUID, links map[string][]string, m *idmap.Map) (SaveReport, error)

	// SaveCollections upserts the nested collection tree in two passes:
	// nodes first, parent pointers once every node has a surrogate key.
	SaveCollections(ctx context.Context, ownerID uuid.UUID, nested map[string]model.Collection, m *idmap.Map) (SaveReport, error)

	// SaveHighlights inserts highlight rows for the listed bookmarks.
	SaveHighlights(ctx context.Context, ownerID uuid.UUID, highlights map[string][]model.Highlight, m *idmap.Map) (SaveReport, error)

	// Purge erases every remote row of the owner, junctions first.
	Purge(ctx context.Context, ownerID uuid.UUID) (PurgeReport, error)
}
