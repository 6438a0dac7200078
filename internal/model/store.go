package model

import (
	"fmt"
	"time"
)

// DefaultStore returns the canonical empty store. Loaded data is deep-merged
// against this shape so old snapshots missing newer fields never crash.
func DefaultStore() Store {
	return Store{
		Bookmarks:   []Bookmark{},
		Collections: map[string][]string{},
		Nested:      map[string]Collection{},
		Queue: ReadingQueue{
			Unread:    []string{},
			Reading:   []string{},
			Completed: []string{},
			Favorites: map[string]FavoriteList{
				"Quick Access": {Bookmarks: []string{}, Color: "yellow", Icon: "star", Order: 0},
				"Must Read":    {Bookmarks: []string{}, Color: "red", Icon: "bookmark", Order: 1},
				"Reference":    {Bookmarks: []string{}, Color: "blue", Icon: "book", Order: 2},
			},
			History: []HistoryEntry{},
		},
		SortBy:              "date",
		SortOrder:           "desc",
		FilterReadingStatus: "all",
		Theme:               "light",
		ViewMode:            "normal",
		Settings: Settings{
			AIEnabled:        true,
			AutoGroupTags:    true,
			MarkReadOnScroll: true,
			ProgressTracking: true,
		},
	}
}

// Clone returns a deep copy. Snapshots handed to adapters must never share
// mutable state with the controller's canonical store.
func (s Store) Clone() Store {
	out := s

	out.Bookmarks = make([]Bookmark, len(s.Bookmarks))
	for i, b := range s.Bookmarks {
		out.Bookmarks[i] = b.clone()
	}

	out.Collections = make(map[string][]string, len(s.Collections))
	for name, ids := range s.Collections {
		out.Collections[name] = append([]string(nil), ids...)
	}

	out.Nested = make(map[string]Collection, len(s.Nested))
	for id, c := range s.Nested {
		c.Bookmarks = append([]string(nil), c.Bookmarks...)
		c.Children = append([]string(nil), c.Children...)
		out.Nested[id] = c
	}

	if s.TagGroups != nil {
		out.TagGroups = make(map[string]TagGroup, len(s.TagGroups))
		for name, g := range s.TagGroups {
			g.Tags = append([]string(nil), g.Tags...)
			out.TagGroups[name] = g
		}
	}

	out.Queue = s.Queue.clone()
	out.SelectedTags = append([]string(nil), s.SelectedTags...)
	if s.DateRange != nil {
		dr := *s.DateRange
		out.DateRange = &dr
	}
	return out
}

func (b Bookmark) clone() Bookmark {
	out := b
	out.Tags = append([]string(nil), b.Tags...)
	out.AITags = append([]string(nil), b.AITags...)
	out.SuggestedTags = append([]string(nil), b.SuggestedTags...)
	out.Highlights = append([]Highlight(nil), b.Highlights...)
	if b.Analysis != nil {
		a := *b.Analysis
		a.KeyTopics = append([]string(nil), b.Analysis.KeyTopics...)
		a.SuggestedCollections = append([]string(nil), b.Analysis.SuggestedCollections...)
		a.RelatedBookmarks = append([]string(nil), b.Analysis.RelatedBookmarks...)
		out.Analysis = &a
	}
	if b.LastReadAt != nil {
		t := *b.LastReadAt
		out.LastReadAt = &t
	}
	return out
}

func (q ReadingQueue) clone() ReadingQueue {
	out := q
	out.Unread = append([]string(nil), q.Unread...)
	out.Reading = append([]string(nil), q.Reading...)
	out.Completed = append([]string(nil), q.Completed...)
	out.Favorites = make(map[string]FavoriteList, len(q.Favorites))
	for cat, f := range q.Favorites {
		f.Bookmarks = append([]string(nil), f.Bookmarks...)
		out.Favorites[cat] = f
	}
	out.History = append([]HistoryEntry(nil), q.History...)
	return out
}

// DedupBookmarks collapses bookmarks that share an externalId. The later
// occurrence wins (it carries the most recent edits); order follows the first
// appearance of each id. Returns the number of duplicates removed.
func DedupBookmarks(s Store) (Store, int) {
	seen := make(map[string]int, len(s.Bookmarks))
	unique := make([]Bookmark, 0, len(s.Bookmarks))
	removed := 0
	for _, b := range s.Bookmarks {
		if i, ok := seen[b.ExternalID]; ok {
			unique[i] = b
			removed++
			continue
		}
		seen[b.ExternalID] = len(unique)
		unique = append(unique, b)
	}
	s.Bookmarks = unique
	return s, removed
}

// SetReadingStatus moves a bookmark between the exclusive status buckets,
// stamps LastReadAt on completion and appends a history event.
func SetReadingStatus(s Store, externalID string, status ReadingStatus, now time.Time) (Store, error) {
	if !status.Valid() {
		return s, fmt.Errorf("reading status %q: invalid", status)
	}
	found := false
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ExternalID != externalID {
			continue
		}
		found = true
		s.Bookmarks[i].ReadingStatus = status
		if status == StatusCompleted {
			t := now
			s.Bookmarks[i].LastReadAt = &t
		}
	}
	if !found {
		return s, fmt.Errorf("bookmark %q: not found", externalID)
	}

	s.Queue.Unread = remove(s.Queue.Unread, externalID)
	s.Queue.Reading = remove(s.Queue.Reading, externalID)
	s.Queue.Completed = remove(s.Queue.Completed, externalID)
	switch status {
	case StatusUnread:
		s.Queue.Unread = append(s.Queue.Unread, externalID)
	case StatusReading:
		s.Queue.Reading = append(s.Queue.Reading, externalID)
	case StatusCompleted:
		s.Queue.Completed = append(s.Queue.Completed, externalID)
	}

	s.Queue.History = append(s.Queue.History, HistoryEntry{
		BookmarkID: externalID,
		Action:     historyAction(status),
		Timestamp:  now,
	})
	return s, nil
}

func historyAction(status ReadingStatus) string {
	switch status {
	case StatusReading:
		return "start"
	case StatusCompleted:
		return "complete"
	default:
		return "resume"
	}
}

// ToggleFavorite adds or removes a bookmark from a favorites category,
// creating the category on first use.
func ToggleFavorite(s Store, externalID, category string) Store {
	fav, ok := s.Queue.Favorites[category]
	if !ok {
		fav = FavoriteList{Bookmarks: []string{}, Color: "gray", Icon: "bookmark", Order: len(s.Queue.Favorites)}
	}
	if contains(fav.Bookmarks, externalID) {
		fav.Bookmarks = remove(fav.Bookmarks, externalID)
	} else {
		fav.Bookmarks = append(fav.Bookmarks, externalID)
	}
	s.Queue.Favorites[category] = fav
	return s
}

// Reparent moves a nested collection under a new parent. Moving a collection
// under itself or one of its descendants is rejected and the tree is left
// unchanged. An empty newParentID makes the collection a root.
func Reparent(s Store, id, newParentID string) (Store, error) {
	node, ok := s.Nested[id]
	if !ok {
		return s, fmt.Errorf("collection %q: not found", id)
	}
	if newParentID != "" {
		if _, ok := s.Nested[newParentID]; !ok {
			return s, fmt.Errorf("collection %q: not found", newParentID)
		}
		// Walk up from the proposed parent; hitting id means a cycle.
		for cur := newParentID; cur != ""; {
			if cur == id {
				return s, fmt.Errorf("collection %q: reparent under own descendant %q", id, newParentID)
			}
			cur = s.Nested[cur].ParentID
		}
	}

	if node.ParentID != "" {
		if old, ok := s.Nested[node.ParentID]; ok {
			old.Children = remove(old.Children, id)
			s.Nested[node.ParentID] = old
		}
	}
	node.ParentID = newParentID
	node.LastModified = time.Now().UTC()
	s.Nested[id] = node
	if newParentID != "" {
		parent := s.Nested[newParentID]
		if !contains(parent.Children, id) {
			parent.Children = append(parent.Children, id)
		}
		s.Nested[newParentID] = parent
	}
	return s, nil
}

// AcceptSuggestedTags unions a bookmark's pending suggestions into its tag
// set and clears the pending list.
func AcceptSuggestedTags(s Store, externalID string) Store {
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ExternalID != externalID {
			continue
		}
		for _, t := range s.Bookmarks[i].SuggestedTags {
			if !contains(s.Bookmarks[i].Tags, t) {
				s.Bookmarks[i].Tags = append(s.Bookmarks[i].Tags, t)
			}
		}
		s.Bookmarks[i].SuggestedTags = nil
	}
	return s
}

// AppendNotes concatenates onto a bookmark's free-text notes. Notes are
// append-only; there is no operation that rewrites them.
func AppendNotes(s Store, externalID, text string) Store {
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ExternalID != externalID {
			continue
		}
		if s.Bookmarks[i].Notes == "" {
			s.Bookmarks[i].Notes = text
		} else {
			s.Bookmarks[i].Notes += "\n" + text
		}
	}
	return s
}

// AddHighlight appends a highlight to a bookmark.
func AddHighlight(s Store, externalID string, h Highlight) Store {
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ExternalID == externalID {
			s.Bookmarks[i].Highlights = append(s.Bookmarks[i].Highlights, h)
		}
	}
	return s
}

// SetPriority sets a bookmark's user-assigned priority.
func SetPriority(s Store, externalID string, p Priority) (Store, error) {
	if p != PriorityLow && p != PriorityMedium && p != PriorityHigh {
		return s, fmt.Errorf("priority %q: invalid", p)
	}
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ExternalID == externalID {
			s.Bookmarks[i].Priority = p
		}
	}
	return s, nil
}

// SetProgress records reading progress, clamped to 0-100.
func SetProgress(s Store, externalID string, progress int) Store {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ExternalID == externalID {
			s.Bookmarks[i].Progress = progress
		}
	}
	return s
}

// AddCollection creates a nested collection node, optionally under a parent.
// The id doubles as the flat-map key so both views stay addressable.
func AddCollection(s Store, id, name, parentID string) (Store, error) {
	if id == "" || name == "" {
		return s, fmt.Errorf("collection needs an id and a name")
	}
	if _, ok := s.Nested[id]; ok {
		return s, fmt.Errorf("collection %q: already exists", id)
	}
	if parentID != "" {
		if _, ok := s.Nested[parentID]; !ok {
			return s, fmt.Errorf("collection %q: not found", parentID)
		}
	}
	if s.Nested == nil {
		s.Nested = map[string]Collection{}
	}
	s.Nested[id] = Collection{
		Name:         name,
		Bookmarks:    []string{},
		Children:     []string{},
		ParentID:     parentID,
		LastModified: time.Now().UTC(),
	}
	if parentID != "" {
		parent := s.Nested[parentID]
		parent.Children = append(parent.Children, id)
		s.Nested[parentID] = parent
	}
	if s.Collections == nil {
		s.Collections = map[string][]string{}
	}
	if _, ok := s.Collections[name]; !ok {
		s.Collections[name] = []string{}
	}
	return s, nil
}

func remove(ss []string, v string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
