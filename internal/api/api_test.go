package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/pagebook/internal/aimerge"
	"github.com/starford/pagebook/internal/aisearch"
	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/index"
	"github.com/starford/pagebook/internal/models"
	"github.com/starford/pagebook/internal/pageservice"
	"github.com/starford/pagebook/internal/templates"
	"github.com/starford/pagebook/internal/testutil"
)

type testEnv struct {
	store    *docstore.Store
	db       *index.DB
	searcher *testutil.StaticSearcher
	router   http.Handler
}

// newEnv sets up a store, SQLite index, service and router for testing.
// An empty authToken means disabled mode.
func newEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()
	return newEnvWithSSE(t, authToken, nil)
}

func newEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) *testEnv {
	t.Helper()
	logger := testutil.Logger()

	dbFile, err := os.CreateTemp("", "pagebook-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cat, err := templates.NewCatalogue("", logger)
	if err != nil {
		t.Fatalf("NewCatalogue: %v", err)
	}
	store := docstore.New(docstore.State{})
	searcher := &testutil.StaticSearcher{Result: aisearch.Result{
		Text:    "Blocks are units.",
		Sources: []models.Citation{{URI: "https://example.com/blocks", Title: "Blocks"}},
	}}
	svc := pageservice.NewService(store, cat, db, aimerge.New(store, searcher, logger))
	return &testEnv{
		store:    store,
		db:       db,
		searcher: searcher,
		router:   NewRouter(svc, authToken != "", authToken, sseHandler),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateAndGetPage(t *testing.T) {
	e := newEnv(t, "")

	w := e.do(t, http.MethodPost, "/pages", map[string]string{"markdown": "# Hello\n\nWorld"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[PageDetail](t, w)
	if created.Title != "Hello" || !created.Current {
		t.Errorf("created = %+v", created)
	}

	w = e.do(t, http.MethodGet, "/pages/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[PageDetail](t, w)
	if got.ID != created.ID || len(got.Blocks) != 2 {
		t.Errorf("got = %+v", got)
	}
}

func TestCreatePage_EmptyBodyIsBlank(t *testing.T) {
	e := newEnv(t, "")
	w := e.do(t, http.MethodPost, "/pages", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	p := decode[PageDetail](t, w)
	if p.Title != models.UntitledTitle || len(p.Blocks) != 2 {
		t.Errorf("blank page = %+v", p)
	}
}

func TestCreatePage_FromTemplate(t *testing.T) {
	e := newEnv(t, "")
	w := e.do(t, http.MethodPost, "/pages", map[string]string{"template": "journal"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPost, "/pages", map[string]string{"template": "does-not-exist"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown template = %d, want 400", w.Code)
	}
}

func TestCreatePage_Invalid(t *testing.T) {
	e := newEnv(t, "")

	cases := map[string]any{
		"two sources":  map[string]any{"template": "blank", "markdown": "# x"},
		"unknown kind": map[string]any{"blocks": []map[string]string{{"type": "table"}}},
	}
	for name, body := range cases {
		if w := e.do(t, http.MethodPost, "/pages", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/pages", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestReplaceBlocks(t *testing.T) {
	e := newEnv(t, "")
	id := e.store.CurrentPageID()

	body := map[string]any{"blocks": []map[string]any{
		{"type": "h1", "content": "Plan <b>B</b>"},
		{"type": "todo", "content": "call", "checked": true},
	}}
	w := e.do(t, http.MethodPut, "/pages/"+id+"/blocks", body)
	if w.Code != http.StatusOK {
		t.Fatalf("replace status = %d, body = %s", w.Code, w.Body.String())
	}
	p := decode[PageDetail](t, w)
	if p.Title != "Plan B" {
		t.Errorf("title = %q, want Plan B", p.Title)
	}
	if !p.Blocks[1].IsChecked() {
		t.Error("todo lost checked state")
	}

	if w := e.do(t, http.MethodPut, "/pages/ghost/blocks", body); w.Code != http.StatusNotFound {
		t.Errorf("replace missing = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/pages/"+id+"/blocks", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("replace without blocks = %d, want 400", w.Code)
	}
}

func TestDeletePage(t *testing.T) {
	e := newEnv(t, "")
	only := e.store.CurrentPageID()

	if w := e.do(t, http.MethodDelete, "/pages/"+only, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/pages/"+only, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", w.Code)
	}

	// Deleting the last page leaves a fresh blank current page.
	list := decode[PageListResponse](t, e.do(t, http.MethodGet, "/pages", nil))
	if len(list.Pages) != 1 || list.Current != list.Pages[0].ID {
		t.Errorf("after delete: %+v", list)
	}

	if w := e.do(t, http.MethodDelete, "/pages/"+only, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete twice = %d, want 204", w.Code)
	}
	again := decode[PageListResponse](t, e.do(t, http.MethodGet, "/pages", nil))
	if len(again.Pages) != 1 || again.Current != list.Current {
		t.Errorf("second delete changed state: %+v", again)
	}
}

func TestListPages(t *testing.T) {
	e := newEnv(t, "")
	e.do(t, http.MethodPost, "/pages", map[string]string{"markdown": "# Beta"})
	e.do(t, http.MethodPost, "/pages", map[string]string{"markdown": "# Alpha"})

	list := decode[PageListResponse](t, e.do(t, http.MethodGet, "/pages", nil))
	if len(list.Pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(list.Pages))
	}
	if list.Pages[0].Title != "Alpha" || list.Pages[1].Title != "Beta" {
		t.Errorf("not sorted by title: %+v", list.Pages)
	}

	filtered := decode[PageListResponse](t, e.do(t, http.MethodGet, "/pages?q=alp", nil))
	if len(filtered.Pages) != 1 || filtered.Pages[0].Title != "Alpha" {
		t.Errorf("filtered = %+v", filtered.Pages)
	}
}

func TestCurrentPage(t *testing.T) {
	e := newEnv(t, "")
	first := e.store.CurrentPageID()
	e.do(t, http.MethodPost, "/pages", nil)

	w := e.do(t, http.MethodPut, "/current", map[string]string{"id": first})
	if w.Code != http.StatusOK {
		t.Fatalf("switch status = %d", w.Code)
	}
	cur := decode[PageDetail](t, e.do(t, http.MethodGet, "/current", nil))
	if cur.ID != first {
		t.Errorf("current = %q, want %q", cur.ID, first)
	}

	if w := e.do(t, http.MethodPut, "/current", map[string]string{"id": "ghost"}); w.Code != http.StatusNotFound {
		t.Errorf("switch missing = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/current", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("switch without id = %d, want 400", w.Code)
	}
	if e.store.CurrentPageID() != first {
		t.Error("failed switch changed the current page")
	}
}

func TestTheme(t *testing.T) {
	e := newEnv(t, "")

	got := decode[ThemeResponse](t, e.do(t, http.MethodGet, "/theme", nil))
	if got.Theme != docstore.ThemeLight {
		t.Errorf("default theme = %q", got.Theme)
	}
	got = decode[ThemeResponse](t, e.do(t, http.MethodPut, "/theme", map[string]any{"toggle": true}))
	if got.Theme != docstore.ThemeDark {
		t.Errorf("toggled = %q", got.Theme)
	}
	got = decode[ThemeResponse](t, e.do(t, http.MethodPut, "/theme", map[string]string{"theme": "light"}))
	if got.Theme != docstore.ThemeLight {
		t.Errorf("set = %q", got.Theme)
	}
	if w := e.do(t, http.MethodPut, "/theme", map[string]string{"theme": "neon"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid theme = %d, want 400", w.Code)
	}
}

func TestTemplatesEndpoint(t *testing.T) {
	e := newEnv(t, "")
	w := e.do(t, http.MethodGet, "/templates", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("templates status = %d", w.Code)
	}
	resp := decode[map[string][]templates.Template](t, w)
	if len(resp["templates"]) == 0 || resp["templates"][0].Name != "getting-started" {
		t.Errorf("templates = %+v", resp["templates"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := newEnv(t, "")
	created := decode[PageDetail](t, e.do(t, http.MethodPost, "/pages", map[string]string{"markdown": "# Garden\n\nplant tomatoes"}))
	if err := index.Sync(e.db, e.store.Snapshot(), testutil.Logger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	w := e.do(t, http.MethodGet, "/search?q=tomatoes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].ID != created.ID {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := newEnv(t, "")
	if w := e.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	e := newEnv(t, "")
	p := decode[PageDetail](t, e.do(t, http.MethodPost, "/pages", map[string]string{"markdown": "# Notes\n\n- one\n- two"}))

	w := e.do(t, http.MethodGet, "/pages/"+p.ID+"/export?format=md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("md export = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "- one\n- two") {
		t.Errorf("md body = %q", w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/pages/"+p.ID+"/export?format=html", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("html export = %d (%s)", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "<h1>Notes</h1>") {
		t.Errorf("html body = %q", w.Body.String())
	}

	if w := e.do(t, http.MethodGet, "/pages/"+p.ID+"/export?format=docx", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d, want 400", w.Code)
	}
}

func TestAISearch(t *testing.T) {
	e := newEnv(t, "")
	id := e.store.CurrentPageID()

	status := decode[AIStatusResponse](t, e.do(t, http.MethodGet, "/ai/status", nil))
	if !status.Available {
		t.Error("ai should be available")
	}

	w := e.do(t, http.MethodPost, "/pages/"+id+"/ai-search", map[string]string{"prompt": "what are blocks?"})
	if w.Code != http.StatusOK {
		t.Fatalf("ai-search status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[pageservice.AskResult](t, w)
	if !res.Applied || res.Page == nil {
		t.Fatalf("result = %+v", res)
	}
	last := res.Page.Blocks[len(res.Page.Blocks)-1]
	if last.Kind != models.KindAISearchResult || len(last.Sources) != 1 {
		t.Errorf("last block = %+v", last)
	}

	if w := e.do(t, http.MethodPost, "/pages/"+id+"/ai-search", map[string]string{"prompt": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty prompt = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/pages/ghost/ai-search", map[string]string{"prompt": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("missing page = %d, want 404", w.Code)
	}
}

func TestAISearch_Failures(t *testing.T) {
	e := newEnv(t, "")
	id := e.store.CurrentPageID()
	before, _ := e.store.Page(id)

	e.searcher.Err = errors.New("upstream 500")
	if w := e.do(t, http.MethodPost, "/pages/"+id+"/ai-search", map[string]string{"prompt": "x"}); w.Code != http.StatusBadGateway {
		t.Errorf("search failure = %d, want 502", w.Code)
	}

	e.searcher.NoKey = true
	if w := e.do(t, http.MethodPost, "/pages/"+id+"/ai-search", map[string]string{"prompt": "x"}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no credential = %d, want 503", w.Code)
	}
	status := decode[AIStatusResponse](t, e.do(t, http.MethodGet, "/ai/status", nil))
	if status.Available {
		t.Error("ai should be unavailable without a key")
	}

	after, _ := e.store.Page(id)
	if len(after.Blocks) != len(before.Blocks) {
		t.Error("failed searches modified the page")
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := newEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/pages", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := newEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/pages", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := newEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := newEnv(t, "")
	if w := e.do(t, http.MethodGet, "/pages", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := newEnvWithSSE(t, "secret", blockingSSE)
	if w := e.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := newEnvWithSSE(t, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
