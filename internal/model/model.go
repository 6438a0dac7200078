// Package model defines domain entities shared by the session controller,
// persistence adapters and services.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ReadingStatus tracks where a bookmark sits in the reading queue.
type ReadingStatus string

const (
	StatusUnread    ReadingStatus = "unread"
	StatusReading   ReadingStatus = "reading"
	StatusCompleted ReadingStatus = "completed"
)

// Valid reports whether s is one of the three known statuses.
func (s ReadingStatus) Valid() bool {
	return s == StatusUnread || s == StatusReading || s == StatusCompleted
}

// Priority is the user-assigned importance of a bookmark.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Sentiment is the model-derived tone of a bookmark's content.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Highlight is a user-marked passage inside a bookmark.
type Highlight struct {
	Text      string    `json:"text"`
	Color     string    `json:"color"`
	Timestamp time.Time `json:"timestamp"`
}

// Analysis is the opaque enrichment payload attached to a bookmark.
type Analysis struct {
	Summary              string   `json:"summary"`
	KeyTopics            []string `json:"keyTopics"`
	SuggestedCollections []string `json:"suggestedCollections"`
	RelatedBookmarks     []string `json:"relatedBookmarks,omitempty"`
	Difficulty           string   `json:"difficulty"` // easy | medium | hard
	EstimatedReadTime    int      `json:"estimatedReadTime"`
}

// Bookmark is a single saved post.
//
// ExternalID is the stable identifier from the originating export and the
// domain's natural key: unique per owner. InternalID is the remote substrate's
// surrogate key; it stays uuid.Nil until the bookmark has been remote-persisted
// at least once and observed through a load.
type Bookmark struct {
	ExternalID string    `json:"externalId"`
	InternalID uuid.UUID `json:"internalId,omitempty"`

	PostedAt         time.Time `json:"postedAt"`
	Author           string    `json:"author"`
	AuthorHandle     string    `json:"authorHandle"`
	AuthorAvatarURL  string    `json:"authorAvatarUrl"`
	AuthorProfileURL string    `json:"authorProfileUrl"`
	URL              string    `json:"url"`
	Content          string    `json:"content"`
	Comments         string    `json:"comments"`
	MediaURL         string    `json:"mediaUrl"`

	Tags          []string  `json:"tags"`
	AITags        []string  `json:"aiTags,omitempty"`
	SuggestedTags []string  `json:"suggestedTags,omitempty"`
	Sentiment     Sentiment `json:"sentiment,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Analysis      *Analysis `json:"analysis,omitempty"`

	ReadingStatus ReadingStatus `json:"readingStatus"`
	Priority      Priority      `json:"priority"`
	ReadingTime   int           `json:"readingTime,omitempty"` // minutes
	LastReadAt    *time.Time    `json:"lastReadAt,omitempty"`
	Progress      int           `json:"progress"` // 0-100
	Notes         string        `json:"notes,omitempty"`
	Highlights    []Highlight   `json:"highlights,omitempty"`
}

// TagGroup bundles tag names under a label. Tag names themselves are plain
// case-sensitive strings in the domain model; only the remote substrate
// assigns them surrogate ids.
type TagGroup struct {
	Tags         []string  `json:"tags"`
	Color        string    `json:"color,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	Description  string    `json:"description,omitempty"`
	AIGenerated  bool      `json:"aiGenerated"`
	LastModified time.Time `json:"lastModified"`
}

// Collection is a node of the nested collection tree, keyed by collection id
// in Store.Nested. The graph must stay acyclic; Reparent enforces that.
type Collection struct {
	Name         string    `json:"name,omitempty"`
	Bookmarks    []string  `json:"bookmarks"` // bookmark externalIds
	Children     []string  `json:"children"`
	ParentID     string    `json:"parentId,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	Color        string    `json:"color,omitempty"`
	Order        int       `json:"order,omitempty"`
	Description  string    `json:"description,omitempty"`
	Private      bool      `json:"private"`
	LastModified time.Time `json:"lastModified"`
}

// FavoriteList is one named favorites category inside the reading queue.
type FavoriteList struct {
	Bookmarks []string `json:"bookmarks"`
	Color     string   `json:"color,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Order     int      `json:"order"`
}

// HistoryEntry is an append-only reading event.
type HistoryEntry struct {
	BookmarkID string    `json:"bookmarkId"`
	Action     string    `json:"action"` // start | resume | complete
	Timestamp  time.Time `json:"timestamp"`
}

// ReadingQueue holds the three exclusive status buckets, the favorites map and
// the reading history. A bookmark id appears in at most one status bucket but
// may appear in any number of favorite categories.
type ReadingQueue struct {
	Unread    []string                `json:"unread"`
	Reading   []string                `json:"reading"`
	Completed []string                `json:"completed"`
	Favorites map[string]FavoriteList `json:"favorites"`
	History   []HistoryEntry          `json:"history"`
}

// DateRange bounds a date filter. Stored as RFC 3339 strings on disk and
// parsed back to time values on load.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Settings are user preferences carried with the store.
type Settings struct {
	AIEnabled        bool `json:"aiEnabled"`
	AutoAnalyze      bool `json:"autoAnalyze"`
	AutoGroupTags    bool `json:"autoGroupTags"`
	MarkReadOnScroll bool `json:"markReadOnScroll"`
	ProgressTracking bool `json:"progressTracking"`
	Notifications    bool `json:"notifications"`
	ShowMedia        bool `json:"showMedia"`
	AutoArchiveDays  int  `json:"autoArchiveDays,omitempty"`
}

// Store is the aggregate root. It is owned exclusively by the session
// controller; every other component receives a snapshot (see Clone) and
// returns a new snapshot.
type Store struct {
	Bookmarks []Bookmark `json:"bookmarks"`

	Collections map[string][]string   `json:"collections"` // flat: name -> externalIds
	Nested      map[string]Collection `json:"nestedCollections"`
	TagGroups   map[string]TagGroup   `json:"tagGroups,omitempty"`
	Queue       ReadingQueue          `json:"readingQueue"`

	SearchTerm          string     `json:"searchTerm"`
	SelectedTags        []string   `json:"selectedTags"`
	SortBy              string     `json:"sortBy"`    // date | author | sentiment
	SortOrder           string     `json:"sortOrder"` // asc | desc
	FilterReadingStatus string     `json:"filterReadingStatus"`
	DateRange           *DateRange `json:"dateRange,omitempty"`
	Theme               string     `json:"theme"`
	ViewMode            string     `json:"viewMode"`
	Settings            Settings   `json:"settings"`
}

// User is an account row in the remote substrate.
type User struct {
	ID        uuid.UUID
	Email     string // unique
	PwdHash   []byte // Argon2id(password, SaltAuth)
	SaltAuth  []byte // per-user auth salt
	CreatedAt time.Time
}
