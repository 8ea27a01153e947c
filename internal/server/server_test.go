package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/fableloom/fableloom/internal/config"
	"github.com/fableloom/fableloom/pkg/engine"
	"github.com/fableloom/fableloom/pkg/session"
	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/store"
)

func testServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	srv, st, _ := testServerWithSessions(t)
	return srv, st
}

func testServerWithSessions(t *testing.T) (*Server, *store.MemoryStore, *session.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.Seed(story.File{
		Story: story.Story{ID: "story-1", Title: "The Forest", Status: story.StatusPublished},
		Pages: []story.Page{
			{ID: "start", StoryID: "story-1", Content: "You wake up."},
			{ID: "cave", StoryID: "story-1", Content: "A cave."},
			{ID: "end", StoryID: "story-1", Content: "Home at last.", IsEnding: true, EndingLabel: "Home"},
		},
		Choices: []story.Choice{
			{ID: "c1", PageID: "start", Text: "Enter the cave", TargetPageID: "cave"},
			{ID: "c2", PageID: "cave", Text: "Walk home", TargetPageID: "end"},
			{ID: "c3", PageID: "cave", Text: "Dig deeper"}, // undeveloped
		},
	})
	logger := log.New(io.Discard)
	runner := engine.NewRunner(st, nil, nil, logger)
	t.Cleanup(func() { runner.Close() })
	sessions := session.NewMemoryStore()
	return New(config.Default(), st, sessions, runner, logger), st, sessions
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &env)
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStoryCRUD(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/stories", map[string]string{"title": "New Tale"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created story.Story
	decodeBody(t, rec, &created)
	if created.ID == "" || created.Status != story.StatusDraft {
		t.Errorf("created = %+v, want draft with id", created)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/stories/"+created.ID,
		map[string]string{"status": story.StatusPublished})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated story.Story
	decodeBody(t, rec, &updated)
	if updated.Status != story.StatusPublished {
		t.Errorf("status = %q, want published", updated.Status)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/stories/"+created.ID,
		map[string]string{"status": "archived"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status update = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/stories/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/stories/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", rec.Code)
	}
}

func TestPageAndChoiceEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/stories/story-1/pages",
		map[string]any{"content": "A clearing."})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create page = %d: %s", rec.Code, rec.Body.String())
	}
	var page story.Page
	decodeBody(t, rec, &page)

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/pages/"+page.ID,
		map[string]any{"isEnding": true, "endingLabel": "Rescued"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update page = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &page)
	if !page.IsEnding || page.EndingLabel != "Rescued" {
		t.Errorf("page = %+v, want ending Rescued", page)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/pages/start/choices",
		map[string]any{"text": "Follow the river", "targetPageId": page.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create choice = %d: %s", rec.Code, rec.Body.String())
	}
	var choice story.Choice
	decodeBody(t, rec, &choice)
	if choice.PageID != "start" || choice.TargetPageID != page.ID {
		t.Errorf("choice = %+v", choice)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/choices/"+choice.ID,
		map[string]any{"text": "Follow the stream"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update choice = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/choices/"+choice.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete choice = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/pages/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing page = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != "PAGE_NOT_FOUND" {
		t.Errorf("code = %q, want PAGE_NOT_FOUND", code)
	}
}

func TestStoryGraphReport(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/stories/story-1/graph", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("graph = %d: %s", rec.Code, rec.Body.String())
	}

	var report struct {
		Root        string           `json:"root"`
		Order       []map[string]any `json:"order"`
		BackEdges   []map[string]any `json:"backEdges"`
		Diagnostics []map[string]any `json:"diagnostics"`
	}
	decodeBody(t, rec, &report)
	if report.Root != "start" {
		t.Errorf("root = %q, want start", report.Root)
	}
	if len(report.Order) != 3 {
		t.Errorf("order entries = %d, want 3", len(report.Order))
	}
	if report.Diagnostics == nil {
		t.Error("diagnostics should marshal as an array, not null")
	}
}

func TestStoryMapDOT(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/stories/story-1/map?format=dot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("map = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/vnd.graphviz" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"start" -> "cave"`)) {
		t.Errorf("dot output missing edge: %s", rec.Body.String())
	}
}

func TestPartyReadingFlow(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/parties",
		map[string]string{"userId": "reader-1", "storyId": "story-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create party = %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Party struct {
			ID           string   `json:"id"`
			Path         []string `json:"path"`
			EndingPageID string   `json:"endingPageId"`
		} `json:"party"`
		State string `json:"state"`
		Page  struct {
			ID string `json:"id"`
		} `json:"page"`
		Choices []struct {
			ID string `json:"id"`
		} `json:"choices"`
		Progress  int  `json:"progress"`
		CanGoBack bool `json:"canGoBack"`
	}
	decodeBody(t, rec, &view)
	partyID := view.Party.ID
	if view.Page.ID != "start" || view.State != "reading" {
		t.Fatalf("initial view = %+v", view)
	}
	if view.Progress != 33 {
		t.Errorf("progress = %d, want 33", view.Progress)
	}

	choose := func(choiceID string) *httptest.ResponseRecorder {
		return doJSON(t, h, http.MethodPost,
			fmt.Sprintf("/api/v1/parties/%s/choose", partyID),
			map[string]string{"choiceId": choiceID})
	}

	rec = choose("c1")
	if rec.Code != http.StatusOK {
		t.Fatalf("choose c1 = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &view)
	if view.Page.ID != "cave" || !view.CanGoBack {
		t.Errorf("after c1: page=%s canGoBack=%v", view.Page.ID, view.CanGoBack)
	}

	// Undeveloped choice: content incomplete, no state transition.
	rec = choose("c3")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("undeveloped choice = %d, want 422", rec.Code)
	}
	if code := errorCode(t, rec); code != "CONTENT_INCOMPLETE" {
		t.Errorf("code = %q, want CONTENT_INCOMPLETE", code)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/parties/%s/back", partyID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("back = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &view)
	if view.Page.ID != "start" {
		t.Errorf("after back: page = %s, want start", view.Page.ID)
	}

	// At the beginning: nothing to undo.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/parties/%s/back", partyID), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("back at start = %d, want 409", rec.Code)
	}

	rec = choose("c1")
	if rec.Code != http.StatusOK {
		t.Fatalf("choose c1 again = %d", rec.Code)
	}
	rec = choose("c2")
	if rec.Code != http.StatusOK {
		t.Fatalf("choose c2 = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &view)
	if view.State != "ended" || view.Party.EndingPageID != "end" {
		t.Errorf("ending view: state=%s endingPageId=%s", view.State, view.Party.EndingPageID)
	}

	// Choosing after the end is a session-ended conflict.
	rec = choose("c2")
	if rec.Code != http.StatusConflict {
		t.Errorf("choose after end = %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/parties/%s/progress", partyID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("progress = %d", rec.Code)
	}
	var prog struct {
		Progress     int    `json:"progress"`
		Completed    bool   `json:"completed"`
		EndingPageID string `json:"endingPageId"`
	}
	decodeBody(t, rec, &prog)
	if !prog.Completed || prog.Progress != 100 || prog.EndingPageID != "end" {
		t.Errorf("progress = %+v", prog)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/parties/%s/restart", partyID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restart = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &view)
	if view.Page.ID != "start" || view.State != "reading" {
		t.Errorf("after restart: page=%s state=%s", view.Page.ID, view.State)
	}
	// Completion is recorded once; restart does not clear it.
	if view.Party.EndingPageID != "end" {
		t.Errorf("endingPageId after restart = %q, want end", view.Party.EndingPageID)
	}
}

func TestPartyRebuiltAfterEviction(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/parties",
		map[string]string{"userId": "reader-1", "storyId": "story-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create party = %d", rec.Code)
	}
	var view struct {
		Party struct {
			ID string `json:"id"`
		} `json:"party"`
	}
	decodeBody(t, rec, &view)

	rec = doJSON(t, h, http.MethodPost,
		fmt.Sprintf("/api/v1/parties/%s/choose", view.Party.ID),
		map[string]string{"choiceId": "c1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("choose = %d", rec.Code)
	}

	// Editing a page drops live sessions; the next request rebuilds from
	// the persisted path and resumes on the last visited page.
	rec = doJSON(t, h, http.MethodPatch, "/api/v1/pages/cave",
		map[string]any{"content": "A damp cave."})
	if rec.Code != http.StatusOK {
		t.Fatalf("update page = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/parties/"+view.Party.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get party = %d: %s", rec.Code, rec.Body.String())
	}
	var resumed struct {
		Page struct {
			ID string `json:"id"`
		} `json:"page"`
		CanGoBack bool `json:"canGoBack"`
	}
	decodeBody(t, rec, &resumed)
	if resumed.Page.ID != "cave" {
		t.Errorf("resumed page = %s, want cave", resumed.Page.ID)
	}
	if resumed.CanGoBack {
		t.Error("rebuilt session should have no undo history")
	}
}

func TestPartyConcurrentReading(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/parties",
		map[string]string{"userId": "reader-1", "storyId": "story-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created partyView
	decodeBody(t, rec, &created)
	id := created.Party.ID

	// Hammer one party from many goroutines; the per-party lock has to
	// keep the session consistent. Most interesting under the race
	// detector. Individual requests may legitimately fail (a choose after
	// an ending, a back at the root), so only the final state is asserted.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, action := range []string{"", "/choose", "/back", "/restart"} {
			wg.Add(1)
			go func(action string) {
				defer wg.Done()
				var req *http.Request
				if action == "" {
					req = httptest.NewRequest(http.MethodGet, "/api/v1/parties/"+id, nil)
				} else {
					req = httptest.NewRequest(http.MethodPost, "/api/v1/parties/"+id+action,
						strings.NewReader(`{"choiceId":"c1"}`))
					req.Header.Set("Content-Type", "application/json")
				}
				h.ServeHTTP(httptest.NewRecorder(), req)
			}(action)
		}
	}
	wg.Wait()

	rec = doJSON(t, h, http.MethodGet, "/api/v1/parties/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status after concurrent requests = %d: %s", rec.Code, rec.Body.String())
	}
	var view partyView
	decodeBody(t, rec, &view)
	if len(view.Party.Path) == 0 {
		t.Error("visit log lost under concurrent requests")
	}
	if view.Page == nil || view.Page.ID == "" {
		t.Error("session lost its current page under concurrent requests")
	}
}

func TestPartyBindingLifecycle(t *testing.T) {
	srv, _, sessions := testServerWithSessions(t)
	h := srv.Handler()
	ctx := context.Background()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/parties",
		map[string]string{"userId": "reader-1", "storyId": "story-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created partyView
	decodeBody(t, rec, &created)
	id := created.Party.ID

	b, err := sessions.Get(ctx, session.BindingID(id))
	if err != nil || b == nil {
		t.Fatalf("binding after create = %v, %v; want stored binding", b, err)
	}
	if b.UserID != "reader-1" || b.StoryID != "story-1" {
		t.Errorf("binding fields = %+v", b)
	}

	// An instance that lost both the live session and the binding re-mints
	// the binding when it rebuilds the session.
	if err := sessions.Delete(ctx, session.BindingID(id)); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	srv.invalidateSessions("story-1")
	rec = doJSON(t, h, http.MethodGet, "/api/v1/parties/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rec.Code, rec.Body.String())
	}
	if b, _ := sessions.Get(ctx, session.BindingID(id)); b == nil {
		t.Error("binding not re-minted on session rebuild")
	}

	// A binding whose party is gone is dropped on lookup.
	ghost := session.NewBinding("reader-1", "ghost", "story-1", session.DefaultTTL)
	if err := sessions.Set(ctx, ghost); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/parties/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ghost get status = %d, want 404", rec.Code)
	}
	if b, _ := sessions.Get(ctx, session.BindingID("ghost")); b != nil {
		t.Error("stale binding outlived its party")
	}
}

func TestPartyUnknownStory(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/parties",
		map[string]string{"userId": "reader-1", "storyId": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("create party for unknown story = %d, want 404", rec.Code)
	}
}
