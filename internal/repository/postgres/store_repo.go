package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/model"
)

// tagGroupPrefix marks a tag row as belonging to a named group. The label
// rides in the description column; there is no separate groups table.
const tagGroupPrefix = "group: "

// StoreRepo implements repository.StoreRepository using PostgreSQL.
type StoreRepo struct{ db *DB }

// NewStoreRepo constructs a store repository.
func NewStoreRepo(db *DB) *StoreRepo { return &StoreRepo{db: db} }

// Load assembles the owner's store. Bookmark rows are read in one pass and
// deduplicated through the id bridge (latest updated_at wins); association
// rows are fetched in id batches so the statements stay bounded regardless of
// library size.
func (r *StoreRepo) Load(ctx context.Context, ownerID uuid.UUID) (model.Store, *idmap.Map, error) {
	store := model.DefaultStore()

	const probe = `SELECT EXISTS(SELECT 1 FROM bookmarks WHERE owner_id=$1)`
	var hasAny bool
	if err := r.db.Pool.QueryRow(ctx, probe, ownerID).Scan(&hasAny); err != nil {
		return store, nil, err
	}
	if !hasAny {
		return store, nil, errs.ErrNotFound
	}

	byInternal, mapRows, err := r.loadBookmarkRows(ctx, ownerID)
	if err != nil {
		return store, nil, err
	}
	bridge := idmap.Build(mapRows)

	// Only dedup winners make it into the store, in row order.
	ids := make([]uuid.UUID, 0, bridge.Len())
	for _, row := range mapRows {
		if _, ok := bridge.ResolveInternal(row.InternalID); ok {
			b := byInternal[row.InternalID]
			b.InternalID = row.InternalID
			store.Bookmarks = append(store.Bookmarks, b)
			ids = append(ids, row.InternalID)
		}
	}

	var batchErrs []error
	batchErrs = append(batchErrs, r.loadTags(ctx, ownerID, ids, bridge, &store)...)
	batchErrs = append(batchErrs, r.loadHighlights(ctx, ids, bridge, &store)...)
	if err := r.loadCollections(ctx, ownerID, ids, bridge, &store, &batchErrs); err != nil {
		return store, bridge, err
	}
	if err := r.loadQueue(ctx, ownerID, bridge, &store); err != nil {
		return store, bridge, err
	}

	return store, bridge, errors.Join(batchErrs...)
}

const bookmarkColumns = `id, external_id, posted_at, author, author_handle,
author_avatar_url, author_profile_url, url, content, comments, media_url,
sentiment, summary, analysis, reading_status, priority, reading_time,
last_read_at, progress, notes, ai_tags, suggested_tags, updated_at`

func (r *StoreRepo) loadBookmarkRows(
	ctx context.Context, ownerID uuid.UUID,
) (map[uuid.UUID]model.Bookmark, []idmap.Row, error) {
	const q = `SELECT ` + bookmarkColumns + `
FROM bookmarks WHERE owner_id=$1 ORDER BY posted_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	byInternal := map[uuid.UUID]model.Bookmark{}
	var mapRows []idmap.Row
	for rows.Next() {
		var (
			b        model.Bookmark
			id       uuid.UUID
			analysis []byte
			updated  time.Time
		)
		if err := rows.Scan(
			&id, &b.ExternalID, &b.PostedAt, &b.Author, &b.AuthorHandle,
			&b.AuthorAvatarURL, &b.AuthorProfileURL, &b.URL, &b.Content, &b.Comments, &b.MediaURL,
			&b.Sentiment, &b.Summary, &analysis, &b.ReadingStatus, &b.Priority, &b.ReadingTime,
			&b.LastReadAt, &b.Progress, &b.Notes, &b.AITags, &b.SuggestedTags, &updated,
		); err != nil {
			return nil, nil, err
		}
		if len(b.AITags) == 0 {
			b.AITags = nil
		}
		if len(b.SuggestedTags) == 0 {
			b.SuggestedTags = nil
		}
		if len(analysis) > 0 {
			var a model.Analysis
			if err := json.Unmarshal(analysis, &a); err == nil {
				b.Analysis = &a
			}
		}
		b.Tags = []string{}
		byInternal[id] = b
		mapRows = append(mapRows, idmap.Row{InternalID: id, ExternalID: b.ExternalID, UpdatedAt: updated})
	}
	return byInternal, mapRows, rows.Err()
}

func (r *StoreRepo) loadTags(
	ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, bridge *idmap.Map, store *model.Store,
) []error {
	// Owner-level tag rows rebuild the named groups.
	const tq = `SELECT name, color, icon, description, ai_generated FROM tags WHERE owner_id=$1`
	rows, err := r.db.Pool.Query(ctx, tq, ownerID)
	if err != nil {
		return []error{err}
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, color, icon, descr string
			aiGen                    bool
		)
		if err := rows.Scan(&name, &color, &icon, &descr, &aiGen); err != nil {
			return []error{err}
		}
		if !strings.HasPrefix(descr, tagGroupPrefix) {
			continue
		}
		label := strings.TrimPrefix(descr, tagGroupPrefix)
		if store.TagGroups == nil {
			store.TagGroups = map[string]model.TagGroup{}
		}
		g := store.TagGroups[label]
		g.Tags = append(g.Tags, name)
		g.Color = color
		g.Icon = icon
		g.AIGenerated = aiGen
		store.TagGroups[label] = g
	}
	if err := rows.Err(); err != nil {
		return []error{err}
	}

	byExternal := indexBookmarks(store)
	const jq = `
SELECT bt.bookmark_id, t.name
FROM bookmark_tags bt JOIN tags t ON t.id = bt.tag_id
WHERE bt.bookmark_id = ANY($1)`
	return inBatches(ids, queryBatchSize, func(batch []uuid.UUID) error {
		rows, err := r.db.Pool.Query(ctx, jq, batch)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				bID  uuid.UUID
				name string
			)
			if err := rows.Scan(&bID, &name); err != nil {
				return err
			}
			if ext, ok := bridge.ResolveInternal(bID); ok {
				if i, ok := byExternal[ext]; ok {
					store.Bookmarks[i].Tags = append(store.Bookmarks[i].Tags, name)
				}
			}
		}
		return rows.Err()
	})
}

func (r *StoreRepo) loadHighlights(
	ctx context.Context, ids []uuid.UUID, bridge *idmap.Map, store *model.Store,
) []error {
	byExternal := indexBookmarks(store)
	const q = `
SELECT bookmark_id, quote, color, created_at
FROM highlights WHERE bookmark_id = ANY($1) ORDER BY created_at`
	return inBatches(ids, queryBatchSize, func(batch []uuid.UUID) error {
		rows, err := r.db.Pool.Query(ctx, q, batch)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				bID uuid.UUID
				h   model.Highlight
			)
			if err := rows.Scan(&bID, &h.Text, &h.Color, &h.Timestamp); err != nil {
				return err
			}
			if ext, ok := bridge.ResolveInternal(bID); ok {
				if i, ok := byExternal[ext]; ok {
					store.Bookmarks[i].Highlights = append(store.Bookmarks[i].Highlights, h)
				}
			}
		}
		return rows.Err()
	})
}

func (r *StoreRepo) loadCollections(
	ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, bridge *idmap.Map,
	store *model.Store, batchErrs *[]error,
) error {
	const q = `
SELECT id, name, parent_id, icon, color, sort_order, description, is_private, updated_at
FROM collections WHERE owner_id=$1 ORDER BY sort_order`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id     uuid.UUID
			parent *uuid.UUID
			c      model.Collection
		)
		if err := rows.Scan(&id, &c.Name, &parent, &c.Icon, &c.Color, &c.Order,
			&c.Description, &c.Private, &c.LastModified); err != nil {
			return err
		}
		if parent != nil {
			c.ParentID = parent.String()
		}
		c.Bookmarks = []string{}
		c.Children = []string{}
		store.Nested[id.String()] = c
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Children lists are derived, not stored.
	for id, c := range store.Nested {
		if c.ParentID == "" {
			continue
		}
		if p, ok := store.Nested[c.ParentID]; ok {
			p.Children = append(p.Children, id)
			store.Nested[c.ParentID] = p
		}
	}

	const jq = `
SELECT collection_id, bookmark_id
FROM collection_bookmarks WHERE bookmark_id = ANY($1)`
	*batchErrs = append(*batchErrs, inBatches(ids, queryBatchSize, func(batch []uuid.UUID) error {
		rows, err := r.db.Pool.Query(ctx, jq, batch)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var colID, bID uuid.UUID
			if err := rows.Scan(&colID, &bID); err != nil {
				return err
			}
			ext, ok := bridge.ResolveInternal(bID)
			if !ok {
				continue
			}
			if c, exists := store.Nested[colID.String()]; exists {
				c.Bookmarks = append(c.Bookmarks, ext)
				store.Nested[colID.String()] = c
			}
		}
		return rows.Err()
	})...)
	return nil
}

func (r *StoreRepo) loadQueue(
	ctx context.Context, ownerID uuid.UUID, bridge *idmap.Map, store *model.Store,
) error {
	const q = `
SELECT bookmark_id, status, is_favorite, favorite_category FROM reading_queue
WHERE owner_id=$1 ORDER BY position`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			bID      uuid.UUID
			status   model.ReadingStatus
			favorite bool
			category string
		)
		if err := rows.Scan(&bID, &status, &favorite, &category); err != nil {
			return err
		}
		ext, ok := bridge.ResolveInternal(bID)
		if !ok {
			continue // row points at a dedup orphan
		}
		if favorite {
			if store.Queue.Favorites == nil {
				store.Queue.Favorites = map[string]model.FavoriteList{}
			}
			fav, ok := store.Queue.Favorites[category]
			if !ok {
				fav = model.FavoriteList{Bookmarks: []string{}, Color: "gray", Icon: "bookmark", Order: len(store.Queue.Favorites)}
			}
			fav.Bookmarks = append(fav.Bookmarks, ext)
			store.Queue.Favorites[category] = fav
			continue
		}
		switch status {
		case model.StatusUnread:
			store.Queue.Unread = append(store.Queue.Unread, ext)
		case model.StatusReading:
			store.Queue.Reading = append(store.Queue.Reading, ext)
		case model.StatusCompleted:
			store.Queue.Completed = append(store.Queue.Completed, ext)
		}
	}
	return rows.Err()
}

func indexBookmarks(store *model.Store) map[string]int {
	idx := make(map[string]int, len(store.Bookmarks))
	for i, b := range store.Bookmarks {
		idx[b.ExternalID] = i
	}
	return idx
}
