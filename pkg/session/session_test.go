package session

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	sess, err := New("user-1", "party-1", "story-1", DefaultTTL)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if sess.ID == "" {
		t.Error("expected generated session ID")
	}
	if sess.PartyID != "party-1" || sess.StoryID != "story-1" || sess.UserID != "user-1" {
		t.Errorf("unexpected session fields: %+v", sess)
	}
	if sess.IsExpired() {
		t.Error("fresh session should not be expired")
	}
}

func TestNewBinding(t *testing.T) {
	b := NewBinding("user-1", "party-1", "story-1", DefaultTTL)
	if b.ID != BindingID("party-1") {
		t.Errorf("ID = %q, want %q", b.ID, BindingID("party-1"))
	}
	if b.PartyID != "party-1" || b.StoryID != "story-1" || b.UserID != "user-1" {
		t.Errorf("unexpected binding fields: %+v", b)
	}
	if b.IsExpired() {
		t.Error("fresh binding should not be expired")
	}

	// Deterministic id: a second binding for the same party overwrites the
	// first in any store.
	if NewBinding("user-2", "party-1", "story-1", DefaultTTL).ID != b.ID {
		t.Error("bindings for one party should share an id")
	}
}

func TestGenerateIDUnique(t *testing.T) {
	a, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID error: %v", err)
	}
	b, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID error: %v", err)
	}
	if a == b {
		t.Error("GenerateID should not repeat")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess, err := New("user-1", "party-1", "story-1", time.Hour)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := store.Set(ctx, sess); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.PartyID != "party-1" {
		t.Errorf("PartyID = %q, want party-1", got.PartyID)
	}

	// Missing session is nil, nil
	missing, err := store.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing session")
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if got, _ := store.Get(ctx, sess.ID); got != nil {
		t.Error("expected nil after Delete")
	}
}

func TestMemoryStoreExpiration(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess := &Session{
		ID:        "expired",
		PartyID:   "party-1",
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := store.Set(ctx, sess); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := store.Get(ctx, "expired")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Error("expired session should read as missing")
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	live, _ := New("u", "p1", "s", time.Hour)
	store.Set(ctx, live)
	store.Set(ctx, &Session{ID: "stale", ExpiresAt: time.Now().Add(-time.Minute)})

	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup error: %v", err)
	}
	if got, _ := store.Get(ctx, live.ID); got == nil {
		t.Error("Cleanup should keep live sessions")
	}
	if _, ok := store.sessions["stale"]; ok {
		t.Error("Cleanup should drop expired sessions")
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}

	sess, err := New("user-1", "party-1", "story-1", time.Hour)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := store.Set(ctx, sess); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got.PartyID != "party-1" {
		t.Errorf("Get = %+v, want party-1 session", got)
	}

	// Expired sessions are removed on read
	stale := &Session{ID: "stale", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := store.Set(ctx, stale); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if got, _ := store.Get(ctx, "stale"); got != nil {
		t.Error("expired session should read as missing")
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if got, _ := store.Get(ctx, sess.ID); got != nil {
		t.Error("expected nil after Delete")
	}
}

func TestCLIStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	cs, err := NewCLIStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCLIStore error: %v", err)
	}

	if got, err := cs.GetSession(ctx); err != nil || got != nil {
		t.Fatalf("GetSession on empty store = %+v, %v; want nil, nil", got, err)
	}

	sess, err := New("reader", "party-1", "story-1", time.Hour)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	sess.Path = []string{"start", "cave", "start"}
	if err := cs.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession error: %v", err)
	}

	got, err := cs.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession error: %v", err)
	}
	if got == nil || got.StoryID != "story-1" {
		t.Fatalf("GetSession = %+v, want story-1 session", got)
	}
	if len(got.Path) != 3 || got.Path[2] != "start" {
		t.Errorf("Path = %v, want the saved visit log", got.Path)
	}

	// Saving again replaces the single slot
	next, _ := New("reader", "party-2", "story-2", time.Hour)
	if err := cs.SaveSession(ctx, next); err != nil {
		t.Fatalf("SaveSession error: %v", err)
	}
	if got, _ := cs.GetSession(ctx); got == nil || got.StoryID != "story-2" {
		t.Errorf("GetSession = %+v, want the replacement session", got)
	}

	if err := cs.DeleteSession(ctx); err != nil {
		t.Fatalf("DeleteSession error: %v", err)
	}
	if got, _ := cs.GetSession(ctx); got != nil {
		t.Error("expected nil after DeleteSession")
	}
}

func TestFileStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}

	live, _ := New("u", "p1", "s", time.Hour)
	store.Set(ctx, live)
	store.Set(ctx, &Session{ID: "stale", ExpiresAt: time.Now().Add(-time.Minute)})

	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup error: %v", err)
	}
	if got, _ := store.Get(ctx, live.ID); got == nil {
		t.Error("Cleanup should keep live sessions")
	}
	if _, err := store.Get(ctx, "stale"); err != nil {
		t.Fatalf("Get error: %v", err)
	}
}
