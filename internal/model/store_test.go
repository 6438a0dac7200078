package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func bk(id, content string) Bookmark {
	return Bookmark{ExternalID: id, Content: content, Tags: []string{}, ReadingStatus: StatusUnread, Priority: PriorityMedium}
}

func TestDedupBookmarks_LaterOccurrenceWins(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	s.Bookmarks = []Bookmark{bk("a", "first"), bk("b", "middle"), bk("a", "second")}

	out, removed := DedupBookmarks(s)
	require.Equal(t, 1, removed)
	require.Len(t, out.Bookmarks, 2)
	require.Equal(t, "a", out.Bookmarks[0].ExternalID)
	require.Equal(t, "second", out.Bookmarks[0].Content)
	require.Equal(t, "b", out.Bookmarks[1].ExternalID)
}

func TestDedupBookmarks_NoDuplicates(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	s.Bookmarks = []Bookmark{bk("a", "x"), bk("b", "y")}

	out, removed := DedupBookmarks(s)
	require.Zero(t, removed)
	require.Len(t, out.Bookmarks, 2)
}

func TestSetReadingStatus_Exclusive(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := DefaultStore()
	s.Bookmarks = []Bookmark{bk("a", "x")}
	s.Queue.Unread = []string{"a"}

	s, err := SetReadingStatus(s, "a", StatusReading, now)
	require.NoError(t, err)
	s, err = SetReadingStatus(s, "a", StatusCompleted, now)
	require.NoError(t, err)
	s, err = SetReadingStatus(s, "a", StatusReading, now)
	require.NoError(t, err)

	buckets := 0
	for _, b := range [][]string{s.Queue.Unread, s.Queue.Reading, s.Queue.Completed} {
		for _, id := range b {
			if id == "a" {
				buckets++
			}
		}
	}
	require.Equal(t, 1, buckets, "bookmark must sit in exactly one status bucket")
	require.Equal(t, []string{"a"}, s.Queue.Reading)
	require.Len(t, s.Queue.History, 3)
	require.Equal(t, StatusReading, s.Bookmarks[0].ReadingStatus)
}

func TestSetReadingStatus_CompletedStampsLastRead(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := DefaultStore()
	s.Bookmarks = []Bookmark{bk("a", "x")}

	s, err := SetReadingStatus(s, "a", StatusCompleted, now)
	require.NoError(t, err)
	require.NotNil(t, s.Bookmarks[0].LastReadAt)
	require.Equal(t, now, *s.Bookmarks[0].LastReadAt)
}

func TestSetReadingStatus_UnknownBookmark(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	_, err := SetReadingStatus(s, "missing", StatusReading, time.Now())
	require.Error(t, err)
}

func TestReparent_RejectsCycle(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	s.Nested = map[string]Collection{
		"A": {Name: "A", Children: []string{"B"}},
		"B": {Name: "B", ParentID: "A", Children: []string{"C"}},
		"C": {Name: "C", ParentID: "B"},
	}

	_, err := Reparent(s, "A", "C")
	require.Error(t, err)
	// tree unchanged
	require.Equal(t, "", s.Nested["A"].ParentID)
	require.Equal(t, []string{"B"}, s.Nested["A"].Children)

	_, err = Reparent(s, "A", "A")
	require.Error(t, err)
}

func TestReparent_MovesNode(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	s.Nested = map[string]Collection{
		"A": {Name: "A", Children: []string{"B"}},
		"B": {Name: "B", ParentID: "A"},
		"X": {Name: "X"},
	}

	s, err := Reparent(s, "B", "X")
	require.NoError(t, err)
	require.Equal(t, "X", s.Nested["B"].ParentID)
	require.Equal(t, []string{"B"}, s.Nested["X"].Children)
	require.Empty(t, s.Nested["A"].Children)

	// make B a root again
	s, err = Reparent(s, "B", "")
	require.NoError(t, err)
	require.Equal(t, "", s.Nested["B"].ParentID)
	require.Empty(t, s.Nested["X"].Children)
}

func TestToggleFavorite(t *testing.T) {
	t.Parallel()
	s := DefaultStore()

	s = ToggleFavorite(s, "a", "Must Read")
	require.Equal(t, []string{"a"}, s.Queue.Favorites["Must Read"].Bookmarks)

	// a bookmark may live in several categories at once
	s = ToggleFavorite(s, "a", "Reference")
	require.Equal(t, []string{"a"}, s.Queue.Favorites["Reference"].Bookmarks)

	s = ToggleFavorite(s, "a", "Must Read")
	require.Empty(t, s.Queue.Favorites["Must Read"].Bookmarks)

	// unknown category is created on first use
	s = ToggleFavorite(s, "a", "Later")
	require.Equal(t, []string{"a"}, s.Queue.Favorites["Later"].Bookmarks)
}

func TestAcceptSuggestedTags(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	b := bk("a", "x")
	b.Tags = []string{"go"}
	b.SuggestedTags = []string{"go", "databases"}
	s.Bookmarks = []Bookmark{b}

	s = AcceptSuggestedTags(s, "a")
	require.Equal(t, []string{"go", "databases"}, s.Bookmarks[0].Tags)
	require.Empty(t, s.Bookmarks[0].SuggestedTags)
}

func TestAppendNotes(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	s.Bookmarks = []Bookmark{bk("a", "x")}

	s = AppendNotes(s, "a", "first")
	s = AppendNotes(s, "a", "second")
	require.Equal(t, "first\nsecond", s.Bookmarks[0].Notes)
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	b := bk("a", "x")
	b.Tags = []string{"go"}
	b.Highlights = []Highlight{{Text: "h", Color: "yellow"}}
	s.Bookmarks = []Bookmark{b}
	s.Collections["col"] = []string{"a"}
	s.Nested["n1"] = Collection{Name: "n1", Bookmarks: []string{"a"}}
	s.Queue.Unread = []string{"a"}

	c := s.Clone()
	c.Bookmarks[0].Tags[0] = "changed"
	c.Bookmarks[0].Highlights[0].Text = "changed"
	c.Collections["col"][0] = "changed"
	c.Queue.Unread[0] = "changed"
	n := c.Nested["n1"]
	n.Bookmarks[0] = "changed"
	c.Nested["n1"] = n

	require.Equal(t, "go", s.Bookmarks[0].Tags[0])
	require.Equal(t, "h", s.Bookmarks[0].Highlights[0].Text)
	require.Equal(t, "a", s.Collections["col"][0])
	require.Equal(t, "a", s.Queue.Unread[0])
	require.Equal(t, "a", s.Nested["n1"].Bookmarks[0])
}

func TestSetPriority(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	s.Bookmarks = []Bookmark{bk("a", "x")}

	s, err := SetPriority(s, "a", PriorityHigh)
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, s.Bookmarks[0].Priority)

	_, err = SetPriority(s, "a", Priority("urgent"))
	require.Error(t, err)
}

func TestSetProgress_Clamps(t *testing.T) {
	t.Parallel()
	s := DefaultStore()
	s.Bookmarks = []Bookmark{bk("a", "x")}

	s = SetProgress(s, "a", 250)
	require.Equal(t, 100, s.Bookmarks[0].Progress)
	s = SetProgress(s, "a", -3)
	require.Equal(t, 0, s.Bookmarks[0].Progress)
}

func TestAddCollection(t *testing.T) {
	t.Parallel()
	s := DefaultStore()

	s, err := AddCollection(s, "c1", "Go", "")
	require.NoError(t, err)
	s, err = AddCollection(s, "c2", "Concurrency", "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, s.Nested["c1"].Children)
	require.Equal(t, "c1", s.Nested["c2"].ParentID)

	_, err = AddCollection(s, "c1", "Go again", "")
	require.Error(t, err)
	_, err = AddCollection(s, "c3", "Orphan", "missing")
	require.Error(t, err)
}
