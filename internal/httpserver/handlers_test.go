package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/m-novikov/bookhaven/internal/enrich"
	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/idmap"
	"github.com/m-novikov/bookhaven/internal/localstore"
	"github.com/m-novikov/bookhaven/internal/migration"
	"github.com/m-novikov/bookhaven/internal/model"
	"github.com/m-novikov/bookhaven/internal/repository"
	"github.com/m-novikov/bookhaven/internal/session"
)

type fakeAuth struct {
	userID uuid.UUID
}

func (f *fakeAuth) Register(_ context.Context, email, password string) (string, error) {
	if !strings.Contains(email, "@") || len(password) < 8 {
		return "", errs.ErrValidation
	}
	return f.userID.String(), nil
}

func (f *fakeAuth) Login(_ context.Context, email, password, _ string) (model.Token, model.User, error) {
	if password != "correct horse" {
		return model.Token{}, model.User{}, errs.ErrUnauthorized
	}
	tok := model.Token{AccessToken: "good", ExpiresAt: time.Now().Add(time.Hour)}
	return tok, model.User{ID: f.userID, Email: email}, nil
}

func (f *fakeAuth) ParseToken(token string) (uuid.UUID, error) {
	if token != "good" {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return f.userID, nil
}

type fakeRemote struct {
	store  *model.Store
	purged bool
}

func (f *fakeRemote) Load(context.Context, uuid.UUID) (model.Store, *idmap.Map, error) {
	if f.store == nil {
		return model.Store{}, nil, errs.ErrNotFound
	}
	return f.store.Clone(), idmap.New(), nil
}

func (f *fakeRemote) SaveBookmarks(_ context.Context, _ uuid.UUID, bookmarks []model.Bookmark, _ *idmap.Map) (repository.SaveReport, error) {
	return repository.SaveReport{Inserted: len(bookmarks)}, nil
}

func (f *fakeRemote) ReplaceQueue(context.Context, uuid.UUID, model.ReadingQueue, *idmap.Map) error {
	return nil
}

func (f *fakeRemote) Purge(context.Context, uuid.UUID) (repository.PurgeReport, error) {
	f.purged = true
	return repository.PurgeReport{}, nil
}

type fakeMigrator struct {
	calls int
}

func (f *fakeMigrator) Migrate(_ context.Context, _ uuid.UUID, store model.Store, _ *idmap.Map) (migration.Report, error) {
	f.calls++
	return migration.Report{
		Bookmarks: migration.FamilyReport{Succeeded: len(store.Bookmarks)},
	}, nil
}

type fakeEnricher struct {
	res enrich.Result
	err error
}

func (f *fakeEnricher) Analyze(context.Context, model.Bookmark) (enrich.Result, error) {
	return f.res, f.err
}

func newTestServer(t *testing.T) (*Server, *fakeRemote, *fakeMigrator) {
	t.Helper()
	remote := &fakeRemote{}
	mig := &fakeMigrator{}
	local := localstore.New(t.TempDir())
	ctrl := session.New(local, remote, zap.NewNop())
	t.Cleanup(ctrl.Close)

	s := New(":0", Deps{
		Auth:     &fakeAuth{userID: uuid.Must(uuid.NewV4())},
		Ctrl:     ctrl,
		Migrator: mig,
		Enricher: &fakeEnricher{res: enrich.Result{Summary: "short take", Sentiment: "positive"}},
		Local:    local,
		Logger:   zap.NewNop(),
	})
	return s, remote, mig
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.routes(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAddBookmarkAndGetStore(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.routes()

	rec := do(t, h, http.MethodPost, "/api/bookmarks",
		`{"id":"bm-1","content":"a tweet worth keeping","author":"Ada"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/store", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var st model.Store
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode store: %v", err)
	}
	if len(st.Bookmarks) != 1 || st.Bookmarks[0].ExternalID != "bm-1" {
		t.Fatalf("store bookmarks = %+v", st.Bookmarks)
	}
	if st.Bookmarks[0].ReadingStatus != model.StatusUnread {
		t.Fatalf("default status = %q", st.Bookmarks[0].ReadingStatus)
	}
}

func TestAddBookmarkValidation(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.routes(), http.MethodPost, "/api/bookmarks", `{"author":"Ada"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSetStatusMovesQueue(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.routes()

	do(t, h, http.MethodPost, "/api/bookmarks", `{"id":"bm-1","content":"read me"}`, nil)
	rec := do(t, h, http.MethodPatch, "/api/bookmarks/bm-1/status", `{"status":"reading"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/store", "", nil)
	var st model.Store
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Bookmarks[0].ReadingStatus != model.StatusReading {
		t.Fatalf("status = %q", st.Bookmarks[0].ReadingStatus)
	}

	rec = do(t, h, http.MethodPatch, "/api/bookmarks/bm-1/status", `{"status":"archived"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status accepted: %d", rec.Code)
	}
}

func TestImportCSV(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.routes()

	csv := "id,text,author,date\n" +
		"t1,first tweet,Ada,2024-01-02\n" +
		"t2,second tweet,Lin,2024-01-03\n"
	rec := do(t, h, http.MethodPost, "/api/import", csv, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var out map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["imported"] != 2 || out["dropped"] != 0 {
		t.Fatalf("report = %v", out)
	}

	// a second import of the same file merges instead of duplicating
	rec = do(t, h, http.MethodPost, "/api/import", csv, nil)
	var again map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &again)
	if again["imported"] != 0 || again["merged"] != 2 {
		t.Fatalf("second report = %v", again)
	}
}

func TestEnrichAppliesResult(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.routes()

	do(t, h, http.MethodPost, "/api/bookmarks", `{"id":"bm-1","content":"deep analysis of Go schedulers"}`, nil)
	rec := do(t, h, http.MethodPost, "/api/bookmarks/bm-1/enrich", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/api/store", "", nil)
	var st model.Store
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Bookmarks[0].Analysis == nil || st.Bookmarks[0].Analysis.Summary != "short take" {
		t.Fatalf("analysis not applied: %+v", st.Bookmarks[0].Analysis)
	}
}

func TestEnrichUnknownBookmark(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.routes(), http.MethodPost, "/api/bookmarks/nope/enrich", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMigrateRequiresToken(t *testing.T) {
	s, _, mig := newTestServer(t)
	h := s.routes()

	rec := do(t, h, http.MethodPost, "/api/migrate", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if mig.calls != 0 {
		t.Fatal("migrator ran without a token")
	}

	rec = do(t, h, http.MethodPost, "/api/migrate", "",
		map[string]string{"Authorization": "Bearer bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}
}

func TestLoginFreshThenMigrate(t *testing.T) {
	s, _, mig := newTestServer(t)
	h := s.routes()

	do(t, h, http.MethodPost, "/api/bookmarks", `{"id":"bm-1","content":"kept locally"}`, nil)

	rec := do(t, h, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"correct horse"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}
	var out struct {
		Fresh      bool `json:"fresh"`
		Migratable bool `json:"migratable"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if !out.Fresh || !out.Migratable {
		t.Fatalf("login response = %+v", out)
	}

	rec = do(t, h, http.MethodPost, "/api/migrate", "",
		map[string]string{"Authorization": "Bearer good"})
	if rec.Code != http.StatusOK {
		t.Fatalf("migrate status = %d, body %s", rec.Code, rec.Body)
	}
	if mig.calls != 1 {
		t.Fatalf("migrator calls = %d", mig.calls)
	}
	var rep migration.Report
	_ = json.Unmarshal(rec.Body.Bytes(), &rep)
	if rep.Bookmarks.Succeeded != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestLoginAdoptsRemoteStore(t *testing.T) {
	s, remote, _ := newTestServer(t)
	h := s.routes()
	remote.store = &model.Store{
		Bookmarks: []model.Bookmark{{ExternalID: "srv-1", Content: "from the server"}},
	}

	rec := do(t, h, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"correct horse"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	var out struct {
		Fresh bool `json:"fresh"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Fresh {
		t.Fatal("existing remote data reported as fresh")
	}

	rec = do(t, h, http.MethodGet, "/api/store", "", nil)
	var st model.Store
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if len(st.Bookmarks) != 1 || st.Bookmarks[0].ExternalID != "srv-1" {
		t.Fatalf("store not adopted: %+v", st.Bookmarks)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.routes(), http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEraseRemote(t *testing.T) {
	s, remote, _ := newTestServer(t)
	h := s.routes()

	do(t, h, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"correct horse"}`, nil)

	rec := do(t, h, http.MethodPost, "/api/erase", `{"confirm":"yes?"}`,
		map[string]string{"Authorization": "Bearer good"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak confirmation accepted: %d", rec.Code)
	}
	if remote.purged {
		t.Fatal("purge ran without confirmation")
	}

	rec = do(t, h, http.MethodPost, "/api/erase", `{"confirm":"ERASE"}`,
		map[string]string{"Authorization": "Bearer good"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !remote.purged {
		t.Fatal("purge never reached the remote")
	}
}

func TestPriorityAndProgress(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.routes()

	do(t, h, http.MethodPost, "/api/bookmarks", `{"id":"bm-1","content":"rank me"}`, nil)

	rec := do(t, h, http.MethodPatch, "/api/bookmarks/bm-1/priority", `{"priority":"high"}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("priority status = %d, body %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPatch, "/api/bookmarks/bm-1/priority", `{"priority":"urgent"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad priority accepted: %d", rec.Code)
	}
	rec = do(t, h, http.MethodPatch, "/api/bookmarks/bm-1/progress", `{"progress":250}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("progress status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/store", "", nil)
	var st model.Store
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Bookmarks[0].Priority != model.PriorityHigh || st.Bookmarks[0].Progress != 100 {
		t.Fatalf("bookmark = %+v", st.Bookmarks[0])
	}
}

func TestAddCollectionAndReparent(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.routes()

	rec := do(t, h, http.MethodPost, "/api/collections", `{"id":"c1","name":"Go"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodPost, "/api/collections", `{"id":"c2","name":"Concurrency","parentId":"c1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("child create status = %d, body %s", rec.Code, rec.Body)
	}

	// moving the parent under its own child is a cycle
	rec = do(t, h, http.MethodPost, "/api/collections/c1/reparent", `{"parentId":"c2"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("cycle accepted: %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/store", "", nil)
	var st model.Store
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Nested["c2"].ParentID != "c1" {
		t.Fatalf("tree = %+v", st.Nested)
	}
}

func TestSessionEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.routes()

	rec := do(t, h, http.MethodGet, "/api/session", "", nil)
	var out struct {
		State string `json:"state"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out.State != "anonymous" {
		t.Fatalf("state = %q", out.State)
	}

	do(t, h, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"correct horse"}`, nil)
	rec = do(t, h, http.MethodGet, "/api/session", "", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out.State != "authenticated" {
		t.Fatalf("state = %q", out.State)
	}
}

func TestLogout(t *testing.T) {
	s, remote, _ := newTestServer(t)
	h := s.routes()
	remote.store = &model.Store{
		Bookmarks: []model.Bookmark{{ExternalID: "srv-1", Content: "remote only"}},
	}

	do(t, h, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"correct horse"}`, nil)
	rec := do(t, h, http.MethodPost, "/api/auth/logout", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/store", "", nil)
	var st model.Store
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	for _, b := range st.Bookmarks {
		if b.ExternalID == "srv-1" {
			t.Fatal("remote bookmark survived logout")
		}
	}
}
