package cli

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/fableloom/fableloom/pkg/party"
	"github.com/fableloom/fableloom/pkg/session"
	"github.com/fableloom/fableloom/pkg/store"
	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"svg"}},
		{"dot", []string{"dot"}},
		{"svg,png,pdf", []string{"svg", "png", "pdf"}},
	}
	for _, tt := range tests {
		got := parseFormats(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("parseFormats(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseFormats(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestValidateFormats(t *testing.T) {
	if err := validateFormats([]string{"dot", "svg", "png", "pdf", "json"}); err != nil {
		t.Errorf("valid formats rejected: %v", err)
	}
	if err := validateFormats([]string{"svg", "gif"}); err == nil {
		t.Error("expected error for gif")
	}
}

func TestBasePath(t *testing.T) {
	tests := []struct {
		output, input, want string
	}{
		{"", "story.json", "story"},
		{"out.svg", "story.json", "out"},
		{"maps/out", "story.json", "maps/out"},
		{"out.txt", "story.json", "out.txt"},
	}
	for _, tt := range tests {
		if got := basePath(tt.output, tt.input); got != tt.want {
			t.Errorf("basePath(%q, %q) = %q, want %q", tt.output, tt.input, got, tt.want)
		}
	}
}

func TestCacheDirXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir error: %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", appName) {
		t.Errorf("cacheDir = %q", dir)
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()

	want := map[string]bool{
		"serve": false, "inspect": false, "layout": false,
		"render": false, "play": false, "cache": false, "completion": false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestOrderDepths(t *testing.T) {
	g := story.New(
		[]story.Page{
			{ID: "root", StoryID: "s"},
			{ID: "mid", StoryID: "s"},
			{ID: "leaf", StoryID: "s"},
			{ID: "stray", StoryID: "s"},
		},
		[]story.Choice{
			{ID: "c1", PageID: "root", Text: "go", TargetPageID: "mid"},
			{ID: "c2", PageID: "mid", Text: "on", TargetPageID: "leaf"},
		},
	)
	res := traverse.Resolve(g, nil)

	depths := orderDepths(res)
	want := map[string]int{"root": 0, "mid": 1, "leaf": 2, "stray": 0}
	for id, d := range want {
		if depths[id] != d {
			t.Errorf("depth[%s] = %d, want %d", id, depths[id], d)
		}
	}
}

func TestReaderSessionResume(t *testing.T) {
	ctx := context.Background()
	c := New(io.Discard, LogInfo)
	quiet := log.New(io.Discard)

	resume, err := session.NewCLIStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCLIStore error: %v", err)
	}

	f := story.File{
		Story: story.Story{ID: "s1", Title: "The Forest"},
		Pages: []story.Page{
			{ID: "start", StoryID: "s1"},
			{ID: "cave", StoryID: "s1"},
			{ID: "end", StoryID: "s1", IsEnding: true, EndingLabel: "Home"},
		},
		Choices: []story.Choice{
			{ID: "c1", PageID: "start", Text: "in", TargetPageID: "cave"},
			{ID: "c2", PageID: "cave", Text: "home", TargetPageID: "end"},
		},
	}
	st := store.NewMemoryStore()
	st.Seed(f)

	// Nothing saved yet: the party is untouched.
	p, err := st.CreateParty(ctx, "reader", "s1")
	if err != nil {
		t.Fatalf("CreateParty error: %v", err)
	}
	if got := c.resumeParty(ctx, st, resume, p, "s1"); got.CurrentPageID() != "" {
		t.Errorf("resumed fresh party onto %q, want untouched", got.CurrentPageID())
	}

	// Read one page in, then quit: the visit log is saved.
	sess, err := party.NewSession(ctx, p, f.Graph(), st, quiet)
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if err := sess.SelectChoice(ctx, "c1"); err != nil {
		t.Fatalf("SelectChoice error: %v", err)
	}
	c.saveReaderSession(ctx, resume, "reader", sess)

	// The next play of the same story resumes on the cave page.
	p2, err := st.CreateParty(ctx, "reader", "s1")
	if err != nil {
		t.Fatalf("CreateParty error: %v", err)
	}
	p2 = c.resumeParty(ctx, st, resume, p2, "s1")
	if p2.CurrentPageID() != "cave" {
		t.Fatalf("resumed on %q, want cave", p2.CurrentPageID())
	}

	// A different story ignores the saved session.
	p3, err := st.CreateParty(ctx, "reader", "s1")
	if err != nil {
		t.Fatalf("CreateParty error: %v", err)
	}
	if got := c.resumeParty(ctx, st, resume, p3, "other"); got.CurrentPageID() != "" {
		t.Errorf("session for s1 applied to story %q", "other")
	}

	// Finishing the story clears the resume point.
	sess2, err := party.NewSession(ctx, p2, f.Graph(), st, quiet)
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if err := sess2.SelectChoice(ctx, "c2"); err != nil {
		t.Fatalf("SelectChoice error: %v", err)
	}
	c.saveReaderSession(ctx, resume, "reader", sess2)
	if saved, _ := resume.GetSession(ctx); saved != nil {
		t.Errorf("resume point = %+v, want cleared after ending", saved)
	}
}

func TestPageLabel(t *testing.T) {
	tests := []struct {
		page story.Page
		want string
	}{
		{story.Page{ID: "p1"}, "p1"},
		{story.Page{ID: "p2", IsEnding: true}, "p2 [ending]"},
		{story.Page{ID: "p3", IsEnding: true, EndingLabel: "Lost"}, "p3 [Lost]"},
	}
	for _, tt := range tests {
		if got := pageLabel(&tt.page); got != tt.want {
			t.Errorf("pageLabel(%s) = %q, want %q", tt.page.ID, got, tt.want)
		}
	}
}
