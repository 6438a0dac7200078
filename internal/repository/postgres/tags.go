package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/repository"
)

// SaveTags upserts tag rows keyed by (owner, name), same probe-then-write
// shape as bookmark saves.
func (r *StoreRepo) SaveTags(
	ctx context.Context, ownerID uuid.UUID, tags []repository.TagRecord,
) (repository.SaveReport, error) {
	var rep repository.SaveReport

	const sel = `SELECT id FROM tags WHERE owner_id=$1 AND name=$2`
	const upd = `UPDATE tags SET color=$2, icon=$3, description=$4, ai_generated=$5 WHERE id=$1`
	const ins = `
INSERT INTO tags (id, owner_id, name, color, icon, description, ai_generated)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

	for _, t := range tags {
		var existing uuid.UUID
		scanErr := r.db.Pool.QueryRow(ctx, sel, ownerID, t.Name).Scan(&existing)
		switch {
		case scanErr == nil:
			if _, err := r.db.Pool.Exec(ctx, upd, existing, t.Color, t.Icon, t.Description, t.AIGenerated); err != nil {
				if isPermissionDenied(err) {
					return rep, fmt.Errorf("update tag %s: %w", t.Name, errs.ErrPermissionDenied)
				}
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: t.Name, Err: err})
				continue
			}
			rep.Updated++

		case errors.Is(scanErr, pgx.ErrNoRows):
			id, err := uuid.NewV4()
			if err != nil {
				return rep, err
			}
			_, err = r.db.Pool.Exec(ctx, ins, id, ownerID, t.Name, t.Color, t.Icon, t.Description, t.AIGenerated)
			switch {
			case err == nil:
				rep.Inserted++
			case isUniqueViolation(err):
				rep.Skipped++
			case isPermissionDenied(err):
				return rep, fmt.Errorf("insert tag %s: %w", t.Name, errs.ErrPermissionDenied)
			default:
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: t.Name, Err: err})
			}

		default:
			if isPermissionDenied(scanErr) {
				return rep, fmt.Errorf("probe tag %s: %w", t.Name, errs.ErrPermissionDenied)
			}
			rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: t.Name, Err: scanErr})
		}
	}
	return rep, nil
}

// LinkBookmarkTags attaches tag names to bookmarks through the junction
// table. Bookmarks without a surrogate key and names without a tag row are
// counted as skipped; existing links stay as they are.
func (r *StoreRepo) LinkBookmarkTags(
	ctx context.Context, ownerID uuid.UUID, links map[string][]string, m *idmap.Map,
) (repository.SaveReport, error) {
	var rep repository.SaveReport

	const sel = `SELECT id FROM tags WHERE owner_id=$1 AND name=$2`
	const ins = `
INSERT INTO bookmark_tags (bookmark_id, tag_id)
VALUES ($1,$2) ON CONFLICT DO NOTHING`

	tagIDs := map[string]uuid.UUID{}
	for ext, names := range links {
		bookmarkID, ok := m.Resolve(ext)
		if !ok {
			rep.Skipped += len(names)
			continue
		}
		for _, name := range names {
			tagID, ok := tagIDs[name]
			if !ok {
				scanErr := r.db.Pool.QueryRow(ctx, sel, ownerID, name).Scan(&tagID)
				if errors.Is(scanErr, pgx.ErrNoRows) {
					rep.Skipped++
					continue
				}
				if scanErr != nil {
					if isPermissionDenied(scanErr) {
						return rep, fmt.Errorf("probe tag %s: %w", name, errs.ErrPermissionDenied)
					}
					rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: ext, Err: scanErr})
					continue
				}
				tagIDs[name] = tagID
			}
			tag, err := r.db.Pool.Exec(ctx, ins, bookmarkID, tagID)
			if err != nil {
				if isPermissionDenied(err) {
					return rep, fmt.Errorf("link %s/%s: %w", ext, name, errs.ErrPermissionDenied)
				}
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: ext, Err: err})
				continue
			}
			if tag.RowsAffected() == 0 {
				rep.Skipped++
			} else {
				rep.Inserted++
			}
		}
	}
	return rep, nil
}
