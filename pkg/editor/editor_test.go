package editor

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/store"
	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

func newEditor(t *testing.T) (*Editor, *store.MemoryStore, *story.Story) {
	t.Helper()
	st := store.NewMemoryStore()
	s, err := st.CreateStory(context.Background(), "The Forest")
	if err != nil {
		t.Fatalf("CreateStory error: %v", err)
	}
	e := New(st, s.ID, log.New(io.Discard))
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return e, st, s
}

func TestCreatePageAllowsEmptyContent(t *testing.T) {
	e, _, _ := newEditor(t)

	p, err := e.CreatePage(context.Background(), "")
	if err != nil {
		t.Fatalf("CreatePage error: %v", err)
	}
	if e.IsDirty(p.ID) {
		t.Error("freshly created page should be clean")
	}
}

func TestCreateChoiceRequiresText(t *testing.T) {
	e, _, _ := newEditor(t)
	p, err := e.CreatePage(context.Background(), "A clearing.")
	if err != nil {
		t.Fatalf("CreatePage error: %v", err)
	}

	_, err = e.CreateChoice(context.Background(), p.ID, "")
	if apperrors.GetCode(err) != apperrors.ErrCodeContentIncomplete {
		t.Errorf("empty choice text: got %v, want content-incomplete", err)
	}

	c, err := e.CreateChoice(context.Background(), p.ID, "Go north")
	if err != nil {
		t.Fatalf("CreateChoice error: %v", err)
	}
	if c.TargetPageID != "" {
		t.Error("new choice should start unlinked")
	}
}

func TestLinkChoice(t *testing.T) {
	e, _, _ := newEditor(t)
	ctx := context.Background()
	a, _ := e.CreatePage(ctx, "A")
	b, _ := e.CreatePage(ctx, "B")
	c, err := e.CreateChoice(ctx, a.ID, "Onward")
	if err != nil {
		t.Fatalf("CreateChoice error: %v", err)
	}

	if err := e.LinkChoice(c.ID, "missing"); apperrors.GetCode(err) != apperrors.ErrCodePageNotFound {
		t.Errorf("linking to unknown page: got %v, want page-not-found", err)
	}

	if err := e.LinkChoice(c.ID, b.ID); err != nil {
		t.Fatalf("LinkChoice error: %v", err)
	}
	if !e.IsDirty(c.ID) {
		t.Error("linked choice should be dirty before save")
	}

	// Unlinking returns the choice to undeveloped
	if err := e.LinkChoice(c.ID, ""); err != nil {
		t.Fatalf("unlink error: %v", err)
	}
	got, _ := e.Choice(c.ID)
	if got.TargetPageID != "" {
		t.Errorf("TargetPageID = %q after unlink, want empty", got.TargetPageID)
	}
}

func TestSaveClearsDirty(t *testing.T) {
	e, st, _ := newEditor(t)
	ctx := context.Background()
	p, _ := e.CreatePage(ctx, "Draft.")

	if err := e.UpdateContent(p.ID, "Rewritten."); err != nil {
		t.Fatalf("UpdateContent error: %v", err)
	}
	if !e.IsDirty(p.ID) {
		t.Fatal("edited page should be dirty")
	}

	if err := e.SavePage(ctx, p.ID); err != nil {
		t.Fatalf("SavePage error: %v", err)
	}
	if e.IsDirty(p.ID) {
		t.Error("saved page should be clean")
	}

	stored, err := st.GetPage(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPage error: %v", err)
	}
	if stored.Content != "Rewritten." {
		t.Errorf("stored content = %q, want Rewritten.", stored.Content)
	}
}

// blockingStore lets the test run a local edit while a save is in flight.
type blockingStore struct {
	*store.MemoryStore
	onUpdatePage func()
}

func (b *blockingStore) UpdatePage(ctx context.Context, pageID string, u store.PageUpdate) (*story.Page, error) {
	p, err := b.MemoryStore.UpdatePage(ctx, pageID, u)
	if b.onUpdatePage != nil {
		b.onUpdatePage()
	}
	return p, err
}

func TestStaleSaveResponseIsDiscarded(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	s, err := mem.CreateStory(ctx, "The Forest")
	if err != nil {
		t.Fatalf("CreateStory error: %v", err)
	}
	bs := &blockingStore{MemoryStore: mem}
	e := New(bs, s.ID, log.New(io.Discard))
	if err := e.Load(ctx); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	p, err := e.CreatePage(ctx, "")
	if err != nil {
		t.Fatalf("CreatePage error: %v", err)
	}
	if err := e.UpdateContent(p.ID, "first"); err != nil {
		t.Fatalf("UpdateContent error: %v", err)
	}

	// While the save of "first" is in flight, the author types "second".
	bs.onUpdatePage = func() {
		bs.onUpdatePage = nil
		if err := e.UpdateContent(p.ID, "second"); err != nil {
			t.Errorf("mid-flight UpdateContent error: %v", err)
		}
	}
	if err := e.SavePage(ctx, p.ID); err != nil {
		t.Fatalf("SavePage error: %v", err)
	}

	// The stale response for "first" must not overwrite the newer draft.
	got, _ := e.Page(p.ID)
	if got.Content != "second" {
		t.Errorf("draft content = %q, want second", got.Content)
	}
	if !e.IsDirty(p.ID) {
		t.Error("newer draft should stay dirty after a stale save")
	}

	// A retry persists the newer draft.
	if err := e.SavePage(ctx, p.ID); err != nil {
		t.Fatalf("retry SavePage error: %v", err)
	}
	stored, err := mem.GetPage(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPage error: %v", err)
	}
	if stored.Content != "second" {
		t.Errorf("stored content = %q, want second", stored.Content)
	}
	if e.IsDirty(p.ID) {
		t.Error("draft should be clean after the retry")
	}
}

func TestDeletePageCascadesOwnChoices(t *testing.T) {
	e, _, s := newEditor(t)
	ctx := context.Background()
	a, _ := e.CreatePage(ctx, "A")
	b, _ := e.CreatePage(ctx, "B")
	c1, _ := e.CreateChoice(ctx, a.ID, "To B")
	_ = e.LinkChoice(c1.ID, b.ID)
	c2, _ := e.CreateChoice(ctx, b.ID, "Back to A")
	_ = e.LinkChoice(c2.ID, a.ID)

	if err := e.DeletePage(ctx, b.ID); err != nil {
		t.Fatalf("DeletePage error: %v", err)
	}

	if _, ok := e.Choice(c2.ID); ok {
		t.Error("deleted page's choice should be gone")
	}
	// c1 survives with a dangling target, which resolution reports as a
	// missing-target diagnostic rather than an error.
	got, ok := e.Choice(c1.ID)
	if !ok {
		t.Fatal("choice on surviving page should remain")
	}
	if got.TargetPageID != b.ID {
		t.Errorf("surviving choice target = %q, want %q", got.TargetPageID, b.ID)
	}

	f := e.File(*s)
	res := traverse.Resolve(f.Graph(), log.New(io.Discard))
	found := false
	for _, d := range res.Diagnostics {
		if d.Kind == story.DiagMissingTarget {
			found = true
		}
	}
	if !found {
		t.Error("expected missing-target diagnostic after page deletion")
	}
}

func TestSaveAll(t *testing.T) {
	e, st, _ := newEditor(t)
	ctx := context.Background()
	a, _ := e.CreatePage(ctx, "A")
	b, _ := e.CreatePage(ctx, "B")
	_ = e.UpdateContent(a.ID, "A2")
	_ = e.SetEnding(b.ID, true, "The End")

	if err := e.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll error: %v", err)
	}
	if len(e.DirtyPages()) != 0 {
		t.Errorf("dirty pages after SaveAll: %v", e.DirtyPages())
	}
	stored, _ := st.GetPage(ctx, b.ID)
	if !stored.IsEnding || stored.EndingLabel != "The End" {
		t.Errorf("stored ending = %+v, want ending with label", stored)
	}
}
