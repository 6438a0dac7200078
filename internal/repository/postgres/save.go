package postgres

import (
	"context"
	"encoding/json"
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

// SaveBookmarks walks the snapshot one bookmark at a time: probe by external
// id, update the existing row or insert under a fresh surrogate key. A unique
// violation means a concurrent writer beat us to the insert; the row is
// counted as skipped and the save moves on. Permission denial aborts
// immediately with errs.ErrPermissionDenied.
func (r *StoreRepo) SaveBookmarks(
	ctx context.Context, ownerID uuid.UUID, bookmarks []model.Bookmark, m *idmap.Map,
) (repository.SaveReport, error) {
	var rep repository.SaveReport

	const sel = `SELECT id FROM bookmarks WHERE owner_id=$1 AND external_id=$2`
	const upd = `
UPDATE bookmarks SET posted_at=$2, author=$3, author_handle=$4, author_avatar_url=$5,
author_profile_url=$6, url=$7, content=$8, comments=$9, media_url=$10, sentiment=$11,
summary=$12, analysis=$13, reading_status=$14, priority=$15, reading_time=$16,
last_read_at=$17, progress=$18, notes=$19, ai_tags=$20, suggested_tags=$21, updated_at=now()
WHERE id=$1`
	const ins = `
INSERT INTO bookmarks (id, owner_id, external_id, posted_at, author, author_handle,
author_avatar_url, author_profile_url, url, content, comments, media_url, sentiment,
summary, analysis, reading_status, priority, reading_time, last_read_at, progress, notes,
ai_tags, suggested_tags)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

	for _, b := range bookmarks {
		analysis, err := marshalAnalysis(b.Analysis)
		if err != nil {
			rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: b.ExternalID, Err: err})
			continue
		}

		var existing uuid.UUID
		scanErr := r.db.Pool.QueryRow(ctx, sel, ownerID, b.ExternalID).Scan(&existing)
		switch {
		case scanErr == nil:
			_, err := r.db.Pool.Exec(ctx, upd, existing,
				b.PostedAt, b.Author, b.AuthorHandle, b.AuthorAvatarURL, b.AuthorProfileURL,
				b.URL, b.Content, b.Comments, b.MediaURL, b.Sentiment, b.Summary, analysis,
				b.ReadingStatus, b.Priority, b.ReadingTime, b.LastReadAt, b.Progress, b.Notes,
				textArray(b.AITags), textArray(b.SuggestedTags))
			if err != nil {
				if isPermissionDenied(err) {
					return rep, fmt.Errorf("update bookmark %s: %w", b.ExternalID, errs.ErrPermissionDenied)
				}
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: b.ExternalID, Err: err})
				continue
			}
			m.Put(b.ExternalID, existing)
			rep.Updated++

		case errors.Is(scanErr, pgx.ErrNoRows):
			id, err := uuid.NewV4()
			if err != nil {
				return rep, err
			}
			_, err = r.db.Pool.Exec(ctx, ins, id, ownerID, b.ExternalID,
				b.PostedAt, b.Author, b.AuthorHandle, b.AuthorAvatarURL, b.AuthorProfileURL,
				b.URL, b.Content, b.Comments, b.MediaURL, b.Sentiment, b.Summary, analysis,
				b.ReadingStatus, b.Priority, b.ReadingTime, b.LastReadAt, b.Progress, b.Notes,
				textArray(b.AITags), textArray(b.SuggestedTags))
			switch {
			case err == nil:
				m.Put(b.ExternalID, id)
				rep.Inserted++
				rep.InsertedIDs = append(rep.InsertedIDs, b.ExternalID)
			case isUniqueViolation(err):
				rep.Skipped++
			case isPermissionDenied(err):
				return rep, fmt.Errorf("insert bookmark %s: %w", b.ExternalID, errs.ErrPermissionDenied)
			default:
				rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: b.ExternalID, Err: err})
			}

		default:
			if isPermissionDenied(scanErr) {
				return rep, fmt.Errorf("probe bookmark %s: %w", b.ExternalID, errs.ErrPermissionDenied)
			}
			rep.Errors = append(rep.Errors, repository.EntityError{ExternalID: b.ExternalID, Err: scanErr})
		}
	}
	return rep, nil
}

// ReplaceQueue rewrites the owner's queue rows wholesale: delete everything,
// then reinsert from the snapshot. The window between the two steps is
// accepted; a load during it sees an empty queue, never a corrupt one.
// Status buckets come first, then one row per favorite category membership.
func (r *StoreRepo) ReplaceQueue(
	ctx context.Context, ownerID uuid.UUID, q model.ReadingQueue, m *idmap.Map,
) error {
	const del = `DELETE FROM reading_queue WHERE owner_id=$1`
	if _, err := r.db.Pool.Exec(ctx, del, ownerID); err != nil {
		if isPermissionDenied(err) {
			return fmt.Errorf("clear queue: %w", errs.ErrPermissionDenied)
		}
		return err
	}

	const ins = `
INSERT INTO reading_queue (owner_id, bookmark_id, status, is_favorite, favorite_category, position)
VALUES ($1,$2,$3,$4,$5,$6)`
	pos := 0
	insert := func(ids []string, status model.ReadingStatus, favorite bool, category string) error {
		for _, ext := range ids {
			internal, ok := m.Resolve(ext)
			if !ok {
				continue // not remote-persisted yet
			}
			if _, err := r.db.Pool.Exec(ctx, ins, ownerID, internal, status, favorite, category, pos); err != nil {
				if isPermissionDenied(err) {
					return fmt.Errorf("queue entry %s: %w", ext, errs.ErrPermissionDenied)
				}
				return err
			}
			pos++
		}
		return nil
	}

	if err := insert(q.Unread, model.StatusUnread, false, ""); err != nil {
		return err
	}
	if err := insert(q.Reading, model.StatusReading, false, ""); err != nil {
		return err
	}
	if err := insert(q.Completed, model.StatusCompleted, false, ""); err != nil {
		return err
	}

	categories := make([]string, 0, len(q.Favorites))
	for cat := range q.Favorites {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		if err := insert(q.Favorites[cat].Bookmarks, "", true, cat); err != nil {
			return err
		}
	}
	return nil
}

func marshalAnalysis(a *model.Analysis) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// textArray keeps nil slices out of NOT NULL text[] columns.
func textArray(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
