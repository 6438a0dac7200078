package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/repository"
)

// Purge erases every remote row belonging to the owner. Junction and child
// rows go first so foreign keys never block the sweep; bookmark-keyed deletes
// run in small id batches. A failing step is recorded and the sweep keeps
// going, so a partial purge can simply be retried.
func (r *StoreRepo) Purge(ctx context.Context, ownerID uuid.UUID) (repository.PurgeReport, error) {
	var rep repository.PurgeReport

	ids, err := r.ownerBookmarkIDs(ctx, ownerID)
	if err != nil {
		if isPermissionDenied(err) {
			return rep, fmt.Errorf("list bookmarks: %w", errs.ErrPermissionDenied)
		}
		return rep, err
	}

	byBookmark := func(q string, total *int64) {
		for _, err := range inBatches(ids, deleteBatchSize, func(batch []uuid.UUID) error {
			tag, err := r.db.Pool.Exec(ctx, q, batch)
			if err != nil {
				return err
			}
			*total += tag.RowsAffected()
			return nil
		}) {
			rep.Errors = append(rep.Errors, err)
		}
	}

	byBookmark(`DELETE FROM bookmark_tags WHERE bookmark_id = ANY($1)`, &rep.BookmarkTags)
	byBookmark(`DELETE FROM highlights WHERE bookmark_id = ANY($1)`, &rep.Highlights)
	byBookmark(`DELETE FROM collection_bookmarks WHERE bookmark_id = ANY($1)`, &rep.CollectionBookmarks)

	byOwner := func(q string, total *int64) {
		tag, err := r.db.Pool.Exec(ctx, q, ownerID)
		if err != nil {
			rep.Errors = append(rep.Errors, err)
			return
		}
		*total += tag.RowsAffected()
	}

	byOwner(`DELETE FROM reading_queue WHERE owner_id=$1`, &rep.QueueEntries)
	byOwner(`DELETE FROM collections WHERE owner_id=$1`, &rep.Collections)
	byOwner(`DELETE FROM tags WHERE owner_id=$1`, &rep.Tags)
	byOwner(`DELETE FROM bookmarks WHERE owner_id=$1`, &rep.Bookmarks)

	return rep, nil
}

func (r *StoreRepo) ownerBookmarkIDs(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT id FROM bookmarks WHERE owner_id=$1`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
