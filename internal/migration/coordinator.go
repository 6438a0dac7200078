// Package migration moves a locally accumulated store into the remote
// substrate family by family.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/model"
	"github.com/m-novikov/bookhaven/internal/repository"
)

// Remote is the slice of the store repository the coordinator needs.
type Remote interface {
	SaveBookmarks(ctx context.Context, ownerID uuid.UUID, bookmarks []model.Bookmark, m *idmap.Map) (repository.SaveReport, error)
	SaveTags(ctx context.Context, ownerID uuid.UUID, tags []repository.TagRecord) (repository.SaveReport, error)
	LinkBookmarkTags(ctx context.Context, ownerID uuid.UUID, links map[string][]string, m *idmap.Map) (repository.SaveReport, error)
	SaveCollections(ctx context.Context, ownerID uuid.UUID, nested map[string]model.Collection, m *idmap.Map) (repository.SaveReport, error)
	SaveHighlights(ctx context.Context, ownerID uuid.UUID, highlights map[string][]model.Highlight, m *idmap.Map) (repository.SaveReport, error)
	ReplaceQueue(ctx context.Context, ownerID uuid.UUID, q model.ReadingQueue, m *idmap.Map) error
}

// FamilyReport counts outcomes for one record family. Records already present
// remotely count as skipped, so a re-run of a finished migration reports
// succeeded=0 across the board.
type FamilyReport struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// Report is the outcome of one migration run.
type Report struct {
	Bookmarks   FamilyReport
	Tags        FamilyReport
	Collections FamilyReport
	Highlights  FamilyReport
	QueueMoved  bool
	Errors      []error
}

// Total returns the summed family counters.
func (r Report) Total() FamilyReport {
	var t FamilyReport
	for _, f := range []FamilyReport{r.Bookmarks, r.Tags, r.Collections, r.Highlights} {
		t.Succeeded += f.Succeeded
		t.Skipped += f.Skipped
		t.Failed += f.Failed
	}
	return t
}

// Coordinator drives a migration run.
type Coordinator struct {
	remote Remote
	logger *zap.Logger
}

// New constructs a coordinator.
func New(remote Remote, logger *zap.Logger) *Coordinator {
	return &Coordinator{remote: remote, logger: logger}
}

// Migrate pushes the snapshot into the remote substrate: bookmarks first so
// every later family can resolve surrogate keys through the bridge, then tags
// and their links, collections, highlights of first-time bookmarks, and
// finally the reading queue. A failed family is recorded and the run moves
// on; permission denial aborts the whole run.
func (c *Coordinator) Migrate(
	ctx context.Context, ownerID uuid.UUID, store model.Store, bridge *idmap.Map,
) (Report, error) {
	var rep Report
	if bridge == nil {
		bridge = idmap.New()
	}

	bookRep, err := c.remote.SaveBookmarks(ctx, ownerID, store.Bookmarks, bridge)
	rep.Bookmarks = toFamily(bookRep)
	if err != nil {
		// Without bookmark keys nothing downstream can attach; stop here.
		return rep, fmt.Errorf("migrate bookmarks: %w", err)
	}
	c.logger.Info("bookmarks migrated",
		zap.Int("succeeded", rep.Bookmarks.Succeeded),
		zap.Int("skipped", rep.Bookmarks.Skipped),
		zap.Int("failed", rep.Bookmarks.Failed))

	tagRep, err := c.remote.SaveTags(ctx, ownerID, tagRecords(store))
	if abort := c.family(&rep, "tags", err); abort != nil {
		return rep, abort
	}
	linkRep, err := c.remote.LinkBookmarkTags(ctx, ownerID, tagLinks(store), bridge)
	if abort := c.family(&rep, "tag links", err); abort != nil {
		return rep, abort
	}
	tagRep.Add(linkRep)
	rep.Tags = toFamily(tagRep)

	colRep, err := c.remote.SaveCollections(ctx, ownerID, store.Nested, bridge)
	rep.Collections = toFamily(colRep)
	if abort := c.family(&rep, "collections", err); abort != nil {
		return rep, abort
	}

	// Highlights only follow bookmarks created by this very run, so re-runs
	// never duplicate them.
	highlights := map[string][]model.Highlight{}
	for _, ext := range bookRep.InsertedIDs {
		for _, b := range store.Bookmarks {
			if b.ExternalID == ext && len(b.Highlights) > 0 {
				highlights[ext] = b.Highlights
			}
		}
	}
	hlRep, err := c.remote.SaveHighlights(ctx, ownerID, highlights, bridge)
	rep.Highlights = toFamily(hlRep)
	if abort := c.family(&rep, "highlights", err); abort != nil {
		return rep, abort
	}

	if err := c.remote.ReplaceQueue(ctx, ownerID, store.Queue, bridge); err != nil {
		if abort := c.family(&rep, "queue", err); abort != nil {
			return rep, abort
		}
	} else {
		rep.QueueMoved = true
	}

	total := rep.Total()
	c.logger.Info("migration finished",
		zap.Int("succeeded", total.Succeeded),
		zap.Int("skipped", total.Skipped),
		zap.Int("failed", total.Failed),
		zap.Bool("queue_moved", rep.QueueMoved))
	return rep, nil
}

// family records a family-level error; a permission denial is returned so the
// run stops instead of hammering a substrate that will refuse every write.
func (c *Coordinator) family(rep *Report, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errs.ErrPermissionDenied) {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	c.logger.Warn("family migration failed", zap.String("family", name), zap.Error(err))
	rep.Errors = append(rep.Errors, fmt.Errorf("migrate %s: %w", name, err))
	return nil
}

func toFamily(r repository.SaveReport) FamilyReport {
	return FamilyReport{
		Succeeded: r.Inserted,
		Skipped:   r.Updated + r.Skipped,
		Failed:    len(r.Errors),
	}
}

// tagRecords flattens the store's tag surface into remote rows: grouped tags
// carry their group label in the description, loose tags found on bookmarks
// get a bare row.
func tagRecords(store model.Store) []repository.TagRecord {
	grouped := map[string]bool{}
	var recs []repository.TagRecord

	labels := make([]string, 0, len(store.TagGroups))
	for label := range store.TagGroups {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		g := store.TagGroups[label]
		for _, name := range g.Tags {
			if grouped[name] {
				continue
			}
			grouped[name] = true
			recs = append(recs, repository.TagRecord{
				Name:        name,
				Color:       g.Color,
				Icon:        g.Icon,
				Description: "group: " + label,
				AIGenerated: g.AIGenerated,
			})
		}
	}

	seen := map[string]bool{}
	for _, b := range store.Bookmarks {
		for _, name := range b.Tags {
			if grouped[name] || seen[name] {
				continue
			}
			seen[name] = true
			recs = append(recs, repository.TagRecord{Name: name})
		}
	}
	return recs
}

func tagLinks(store model.Store) map[string][]string {
	links := make(map[string][]string, len(store.Bookmarks))
	for _, b := range store.Bookmarks {
		if len(b.Tags) > 0 {
			links[b.ExternalID] = b.Tags
		}
	}
	return links
}
