package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/models"
	"github.com/starford/pagebook/internal/storage"
	"github.com/starford/pagebook/internal/testutil"
)

func seed() []models.Block {
	return []models.Block{
		{ID: models.NewID(), Kind: models.KindHeading1, Content: "Welcome"},
	}
}

func loadOpts() LoadOptions {
	return LoadOptions{Seed: seed, Logger: testutil.Logger()}
}

func mustLoad(t *testing.T, kv storage.KV, opts LoadOptions) docstore.State {
	t.Helper()
	st, err := Load(context.Background(), kv, opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st
}

func TestLoad_EmptySeedsOnePage(t *testing.T) {
	kv := testutil.NewMemoryKV()
	st := mustLoad(t, kv, loadOpts())
	if len(st.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(st.Pages))
	}
	p, ok := st.Pages[st.CurrentPageID]
	if !ok {
		t.Fatal("current page not set to the seeded page")
	}
	if p.Title != "Welcome" {
		t.Errorf("title = %q", p.Title)
	}
	if st.Theme != docstore.ThemeLight {
		t.Errorf("theme = %q", st.Theme)
	}
}

func TestLoad_CorruptPagesFallsBack(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	_ = kv.Set(ctx, KeyPages, "{not json")
	_ = kv.Set(ctx, KeyCurrentPageID, "p1")

	st := mustLoad(t, kv, loadOpts())
	if len(st.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(st.Pages))
	}
	if _, ok := st.Pages[st.CurrentPageID]; !ok {
		t.Error("current page does not resolve")
	}
}

func TestLoad_UnknownBlockTypeIsCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	_ = kv.Set(ctx, KeyPages, `{"p1":{"id":"p1","title":"x","blocks":[{"id":"b","type":"h9","content":"x"}]}}`)
	st := mustLoad(t, kv, loadOpts())
	if _, ok := st.Pages["p1"]; ok {
		t.Error("page with unknown block type should not be loaded")
	}
}

func TestLoad_RestoresStateAndRecomputesTitle(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	_ = kv.Set(ctx, KeyPages, `{
		"p1":{"id":"p1","title":"stale","blocks":[{"id":"b1","type":"h1","content":"Alpha"}]},
		"p2":{"id":"p2","title":"","blocks":[{"id":"b2","type":"h1","content":"Beta"}]}
	}`)
	_ = kv.Set(ctx, KeyCurrentPageID, "p2")
	_ = kv.Set(ctx, KeyTheme, "dark")

	st := mustLoad(t, kv, loadOpts())
	if len(st.Pages) != 2 {
		t.Fatalf("pages = %d", len(st.Pages))
	}
	if st.CurrentPageID != "p2" {
		t.Errorf("current = %q", st.CurrentPageID)
	}
	if st.Theme != docstore.ThemeDark {
		t.Errorf("theme = %q", st.Theme)
	}
	if st.Pages["p1"].Title != "Alpha" {
		t.Errorf("title = %q, want recomputed", st.Pages["p1"].Title)
	}
}

func TestLoad_DanglingCurrentRepaired(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	_ = kv.Set(ctx, KeyPages, `{"p1":{"blocks":[{"id":"b1","type":"h1","content":"Only"}]}}`)
	_ = kv.Set(ctx, KeyCurrentPageID, "gone")

	st := mustLoad(t, kv, loadOpts())
	if st.CurrentPageID != "p1" {
		t.Errorf("current = %q, want p1", st.CurrentPageID)
	}
}

func TestLoad_ThemeFallbacks(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	_ = kv.Set(ctx, KeyTheme, "sepia")

	opts := loadOpts()
	opts.SystemTheme = func() (docstore.Theme, bool) { return docstore.ThemeDark, true }
	if st := mustLoad(t, kv, opts); st.Theme != docstore.ThemeDark {
		t.Errorf("theme = %q, want system dark", st.Theme)
	}

	opts.SystemTheme = func() (docstore.Theme, bool) { return "", false }
	if st := mustLoad(t, kv, opts); st.Theme != docstore.ThemeLight {
		t.Errorf("theme = %q, want light", st.Theme)
	}
}

func TestSave_EmptyPagesRemovesKey(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	_ = kv.Set(ctx, KeyPages, `{"p1":{"blocks":[]}}`)
	_ = kv.Set(ctx, KeyCurrentPageID, "p1")

	b := NewBridge(kv, testutil.Logger())
	b.Save(ctx, docstore.State{Pages: map[string]models.Page{}, Theme: docstore.ThemeLight})

	if _, ok := kv.Value(KeyPages); ok {
		t.Error("pages key should be removed")
	}
	if _, ok := kv.Value(KeyCurrentPageID); ok {
		t.Error("current page key should be removed")
	}

	st := mustLoad(t, kv, loadOpts())
	if len(st.Pages) != 1 {
		t.Errorf("reload pages = %d, want 1", len(st.Pages))
	}
}

func TestBridge_LatestWins(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	s := docstore.New(docstore.State{})
	b := NewBridge(kv, testutil.Logger())
	b.Attach(s)

	id := s.CurrentPageID()
	s.ReplaceBlocks(id, []models.Block{{ID: "h", Kind: models.KindHeading1, Content: "First"}})
	s.ReplaceBlocks(id, []models.Block{{ID: "h", Kind: models.KindHeading1, Content: "Second"}})
	b.Flush(ctx)

	raw, ok := kv.Value(KeyPages)
	if !ok {
		t.Fatal("pages not persisted")
	}
	var pages map[string]models.Page
	if err := json.Unmarshal([]byte(raw), &pages); err != nil {
		t.Fatal(err)
	}
	if got := pages[id].Blocks[0].Content; got != "Second" {
		t.Errorf("persisted %q, want Second", got)
	}
	if got := pages[id].Title; got != "Second" {
		t.Errorf("persisted title %q", got)
	}
}

func TestBridge_StaleCommitIgnored(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	b := NewBridge(kv, testutil.Logger())

	newer := docstore.State{CurrentPageID: "new", Theme: docstore.ThemeDark,
		Pages: map[string]models.Page{"new": models.NewPage("new", nil)}}
	older := docstore.State{CurrentPageID: "old", Theme: docstore.ThemeLight,
		Pages: map[string]models.Page{"old": models.NewPage("old", nil)}}

	b.notify(docstore.Commit{Version: 2, State: newer})
	b.notify(docstore.Commit{Version: 1, State: older})
	b.Flush(ctx)
	if v, _ := kv.Value(KeyCurrentPageID); v != "new" {
		t.Fatalf("current = %q, want new", v)
	}

	b.notify(docstore.Commit{Version: 1, State: older})
	b.Flush(ctx)
	if v, _ := kv.Value(KeyCurrentPageID); v != "new" {
		t.Errorf("stale commit overwrote newer state: %q", v)
	}
}

func TestBridge_WriteFailureIsSwallowedAndRetried(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	kv.SetFail(true)
	s := docstore.New(docstore.State{})
	b := NewBridge(kv, testutil.Logger())
	b.Attach(s)

	id := s.CurrentPageID()
	s.ReplaceBlocks(id, []models.Block{{Kind: models.KindHeading1, Content: "Lost"}})
	b.Flush(ctx)
	if _, ok := kv.Value(KeyPages); ok {
		t.Fatal("write should have failed")
	}
	if p, _ := s.Page(id); p.Title != "Lost" {
		t.Error("in-memory state affected by failed save")
	}

	kv.SetFail(false)
	s.ReplaceBlocks(id, []models.Block{{Kind: models.KindHeading1, Content: "Kept"}})
	b.Flush(ctx)
	if _, ok := kv.Value(KeyPages); !ok {
		t.Error("next commit should persist")
	}
}

func TestBridge_SkipsUnchangedValues(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	s := docstore.New(docstore.State{})
	b := NewBridge(kv, testutil.Logger())
	b.Attach(s)

	b.Save(ctx, s.Snapshot())
	writes := kv.WriteCount()

	s.ToggleTheme()
	b.Flush(ctx)
	if got := kv.WriteCount() - writes; got != 1 {
		t.Errorf("writes after theme toggle = %d, want 1", got)
	}
}

func TestBridge_RunFlushesOnShutdown(t *testing.T) {
	kv := testutil.NewMemoryKV()
	s := docstore.New(docstore.State{})
	b := NewBridge(kv, testutil.Logger())
	b.Attach(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()

	id := s.CreatePage([]models.Block{{Kind: models.KindHeading1, Content: "Saved"}})
	cancel()
	<-done

	if v, _ := kv.Value(KeyCurrentPageID); v != id {
		t.Errorf("current = %q, want %q", v, id)
	}
}

func TestLoad_ReadErrorKeepsStoredPages(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	stored := `{"p1":{"id":"p1","title":"x","blocks":[{"id":"b1","type":"h1","content":"My precious notes"}]}}`
	_ = kv.Set(ctx, KeyPages, stored)

	kv.FailReads = true
	if _, err := Load(ctx, kv, loadOpts()); !errors.Is(err, testutil.ErrReadFailed) {
		t.Fatalf("Load err = %v, want %v", err, testutil.ErrReadFailed)
	}
	kv.FailReads = false

	if v, _ := kv.Value(KeyPages); v != stored {
		t.Errorf("stored pages changed: %s", v)
	}
	st := mustLoad(t, kv, loadOpts())
	if p := st.Pages["p1"]; p.Title != "My precious notes" {
		t.Errorf("title after retry = %q", p.Title)
	}
}

func TestBridge_FlushAfterRunStopped(t *testing.T) {
	kv := testutil.NewMemoryKV()
	s := docstore.New(docstore.State{})
	b := NewBridge(kv, testutil.Logger())
	b.Attach(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// A handler still draining after shutdown began.
	id := s.CreatePage([]models.Block{{Kind: models.KindHeading1, Content: "Late"}})
	b.Flush(context.Background())

	if v, _ := kv.Value(KeyCurrentPageID); v != id {
		t.Errorf("current = %q, want %q", v, id)
	}
}
