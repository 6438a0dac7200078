package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m-novikov/bookhaven/internal/model"
)

var importTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func TestParseCSV_CaseInsensitiveHeaders(t *testing.T) {
	t.Parallel()
	in := `ID,Date,AUTHOR,Handle,URL,Text,Tags
t1,2025-03-01T10:00:00Z,Ada,ada,https://x.test/1,hello world,go;databases
`
	res, err := ParseCSV(strings.NewReader(in), importTime)
	require.NoError(t, err)
	require.Len(t, res.Bookmarks, 1)

	b := res.Bookmarks[0]
	require.Equal(t, "t1", b.ExternalID)
	require.Equal(t, "Ada", b.Author)
	require.Equal(t, "hello world", b.Content)
	require.Equal(t, []string{"go", "databases"}, b.Tags)
	require.Equal(t, model.StatusUnread, b.ReadingStatus)
	require.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), b.PostedAt)
}

func TestParseCSV_FallbackIDDeterministic(t *testing.T) {
	t.Parallel()
	in := `author,url,text
Ada,https://x.test/1,same content
Ada,https://x.test/1,same content
`
	res1, err := ParseCSV(strings.NewReader(in), importTime)
	require.NoError(t, err)
	res2, err := ParseCSV(strings.NewReader(in), importTime)
	require.NoError(t, err)

	// same file parses to the same ids across runs
	require.Equal(t, res1.Bookmarks[0].ExternalID, res2.Bookmarks[0].ExternalID)
	// identical rows still get distinct ids inside one file
	require.NotEqual(t, res1.Bookmarks[0].ExternalID, res1.Bookmarks[1].ExternalID)
}

func TestParseCSV_DropsEmptyRows(t *testing.T) {
	t.Parallel()
	in := `id,url,text
a,https://x.test/1,has content
b,,
c,https://x.test/3,
`
	res, err := ParseCSV(strings.NewReader(in), importTime)
	require.NoError(t, err)
	require.Len(t, res.Bookmarks, 2, "url-only row is kept")
	require.Equal(t, 1, res.Dropped)
}

func TestParseCSV_UnparsableDateFallsBack(t *testing.T) {
	t.Parallel()
	in := `id,date,text
a,yesterday-ish,content
`
	res, err := ParseCSV(strings.NewReader(in), importTime)
	require.NoError(t, err)
	require.Equal(t, importTime, res.Bookmarks[0].PostedAt)
}

func TestParseCSV_NoUsableColumns(t *testing.T) {
	t.Parallel()
	_, err := ParseCSV(strings.NewReader("foo,bar\n1,2\n"), importTime)
	require.Error(t, err)
}

func TestParseCSV_RaggedRow(t *testing.T) {
	t.Parallel()
	in := "id,url,text\na,https://x.test/1,ok\nb,short\nc,https://x.test/3,also ok\n"
	res, err := ParseCSV(strings.NewReader(in), importTime)
	require.NoError(t, err)
	require.Len(t, res.Bookmarks, 2)
	require.Equal(t, 1, res.Dropped)
}
