package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/model"
	"github.com/m-novikov/bookhaven/internal/repository"
)

// SaveCollections upserts the nested tree in two passes. Pass one writes
// every node without its parent pointer and remembers the surrogate key per
// local id; pass two rewires parent_id now that all keys exist, so the order
// nodes arrive in never matters. Bookmark membership goes through the
// junction table with the id bridge resolving external ids.
func (r *StoreRepo) SaveCollections(
	ctx context.Context, ownerID uuid.UUID, nested map[string]model.Collection, m *idmap.Map,
) (repository.SaveReport, error) {
	var rep repository.SaveReport

	localIDs := make([]string, 0, len(nested))
	for id := range nested {
		localIDs = append(localIDs, id)
	}
	sort.Strings(localIDs)

	const sel = `SELECT id FROM collections WHERE owner_id=$1 AND name=$2`
	const upd = `
UPDATE collections SET icon=$2, color=$3, sort_order=$4, description=$5,
is_private=$6, updated_at=now() WHERE id=$1`
	const ins = `
INSERT INTO collections (id, owner_id, name, icon, color, sort_order, description, is_private)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	remote := make(map[string]uuid.UUID, len(nested))
	for _, localID := range localIDs {
		c := nested[localID]
		var existing uuid.UUID
		scanErr := r.db.Pool.QueryRow(ctx, sel, ownerID, c.Name).Scan(&existing)
		switch {
		case scanErr == nil:
			if _, err := r.db.Pool.Exec(ctx, upd, existing, c.Icon, c.Color, c.Order, c.Description, c.Private); err != nil {
				if isPermissionDenied(err) {
					return rep, fmt.Errorf("update collection %s: %w", c.Name, errs.ErrPermissionDenied)
				}
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: localID, Err: err})
				continue
			}
			remote[localID] = existing
			rep.Updated++

		case errors.Is(scanErr, pgx.ErrNoRows):
			id, err := uuid.NewV4()
			if err != nil {
				return rep, err
			}
			_, err = r.db.Pool.Exec(ctx, ins, id, ownerID, c.Name, c.Icon, c.Color, c.Order, c.Description, c.Private)
			switch {
			case err == nil:
				remote[localID] = id
				rep.Inserted++
			case isUniqueViolation(err):
				rep.Skipped++
			case isPermissionDenied(err):
				return rep, fmt.Errorf("insert collection %s: %w", c.Name, errs.ErrPermissionDenied)
			default:
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: localID, Err: err})
			}

		default:
			if isPermissionDenied(scanErr) {
				return rep, fmt.Errorf("probe collection %s: %w", c.Name, errs.ErrPermissionDenied)
			}
			rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: localID, Err: scanErr})
		}
	}

	const reparent = `UPDATE collections SET parent_id=$2 WHERE id=$1`
	for _, localID := range localIDs {
		c := nested[localID]
		if c.ParentID == "" {
			continue
		}
		childID, okChild := remote[localID]
		parentID, okParent := remote[c.ParentID]
		if !okChild || !okParent {
			continue
		}
		if _, err := r.db.Pool.Exec(ctx, reparent, childID, parentID); err != nil {
			if isPermissionDenied(err) {
				return rep, fmt.Errorf("reparent collection %s: %w", c.Name, errs.ErrPermissionDenied)
			}
			rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: localID, Err: err})
		}
	}

	const link = `
INSERT INTO collection_bookmarks (collection_id, bookmark_id)
VALUES ($1,$2) ON CONFLICT DO NOTHING`
	for _, localID := range localIDs {
		colID, ok := remote[localID]
		if !ok {
			continue
		}
		for _, ext := range nested[localID].Bookmarks {
			bookmarkID, ok := m.Resolve(ext)
			if !ok {
				rep.Skipped++
				continue
			}
			if _, err := r.db.Pool.Exec(ctx, link, colID, bookmarkID); err != nil {
				if isPermissionDenied(err) {
					return rep, fmt.Errorf("collection member %s: %w", ext, errs.ErrPermissionDenied)
				}
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: ext, Err: err})
			}
		}
	}
	return rep, nil
}
