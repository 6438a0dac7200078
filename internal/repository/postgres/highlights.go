package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/model"
	"github.com/m-novikov/bookhaven/internal/repository"
)

// SaveHighlights inserts highlight rows for the listed bookmarks. The caller
// is expected to pass only bookmarks whose highlights are not remote yet;
// there is no per-highlight natural key to probe on.
func (r *StoreRepo) SaveHighlights(
	ctx context.Context, ownerID uuid.UUID, highlights map[string][]model.Highlight, m *idmap.Map,
) (repository.SaveReport, error) {
	var rep repository.SaveReport

	const ins = `
INSERT INTO highlights (id, bookmark_id, owner_id, quote, color, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`

	for ext, hs := range highlights {
		bookmarkID, ok := m.Resolve(ext)
		if !ok {
			rep.Skipped += len(hs)
			continue
		}
		for _, h := range hs {
			id, err := uuid.NewV4()
			if err != nil {
				return rep, err
			}
			if _, err := r.db.Pool.Exec(ctx, ins, id, bookmarkID, ownerID, h.Text, h.Color, h.Timestamp); err != nil {
				if isPermissionDenied(err) {
					return rep, fmt.Errorf("highlight for %s: %w", ext, errs.ErrPermissionDenied)
				}
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: ext, Err: err})
				continue
			}
			rep.Inserted++
		}
	}
	return rep, nil
}
