// Package ingest parses exported bookmark archives into domain bookmarks.
package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m-novikov/bookhaven/internal/model"
)

// header aliases, matched case-insensitively. Exports from different tools
// name the same column differently.
var columnAliases = map[string]string{
	"id":          "id",
	"external_id": "id",
	"tweet_id":    "id",
	"date":        "posted_at",
	"created_at":  "posted_at",
	"posted_at":   "posted_at",
	"author":      "author",
	"name":        "author",
	"handle":      "handle",
	"username":    "handle",
	"avatar":      "avatar",
	"profile":     "profile",
	"url":         "url",
	"link":        "url",
	"text":        "content",
	"content":     "content",
	"comments":    "comments",
	"media":       "media",
	"media_url":   "media",
	"tags":        "tags",
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
}

// Result is the outcome of parsing one archive.
type Result struct {
	Bookmarks []model.Bookmark
	Dropped   int
}

// ParseCSV reads an exported archive. Rows with neither content nor a URL
// are dropped and counted; rows without an id get a deterministic one derived
// from their payload, so re-importing the same file never multiplies
// bookmarks.
func ParseCSV(r io.Reader, now time.Time) (Result, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if canon, ok := columnAliases[key]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	if _, ok := cols["content"]; !ok {
		if _, ok := cols["url"]; !ok {
			return Result{}, fmt.Errorf("archive has neither a content nor a url column")
		}
	}

	var res Result
	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// malformed row, not a malformed file
			res.Dropped++
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		content := field("content")
		url := field("url")
		if content == "" && url == "" {
			res.Dropped++
			continue
		}

		b := model.Bookmark{
			ExternalID:       field("id"),
			Author:           field("author"),
			AuthorHandle:     field("handle"),
			AuthorAvatarURL:  field("avatar"),
			AuthorProfileURL: field("profile"),
			URL:              url,
			Content:          content,
			Comments:         field("comments"),
			MediaURL:         field("media"),
			Tags:             splitTags(field("tags")),
			ReadingStatus:    model.StatusUnread,
			Priority:         model.PriorityMedium,
			PostedAt:         parseDate(field("posted_at"), now),
		}
		if b.ExternalID == "" {
			b.ExternalID = fallbackID(url, b.Author, content, row)
		}
		res.Bookmarks = append(res.Bookmarks, b)
	}
	return res, nil
}

// fallbackID derives a stable id from the row payload plus its position, so
// two identical rows in one file still get distinct ids.
func fallbackID(url, author, content string, row int) string {
	sum := sha256.Sum256([]byte(url + "|" + author + "|" + content))
	return fmt.Sprintf("import-%s-%d", hex.EncodeToString(sum[:8]), row)
}

func parseDate(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
