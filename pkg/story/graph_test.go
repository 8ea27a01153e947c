package story

import "testing"

func TestNewDropsDuplicatePages(t *testing.T) {
	g := New(
		[]Page{
			{ID: "p1", Content: "first"},
			{ID: "p1", Content: "copy"},
			{ID: "p2"},
		},
		nil,
	)

	if g.PageCount() != 2 {
		t.Errorf("page count = %d, want 2", g.PageCount())
	}
	p, ok := g.Page("p1")
	if !ok || p.Content != "first" {
		t.Errorf("p1 = %+v, want first occurrence kept", p)
	}

	diags := g.Diagnostics()
	if len(diags) != 1 || diags[0].Kind != DiagDuplicatePage || diags[0].PageID != "p1" {
		t.Errorf("diagnostics = %v, want one duplicate_page for p1", diags)
	}
}

func TestNewHidesDuplicateChoicePairs(t *testing.T) {
	g := New(
		[]Page{{ID: "a"}, {ID: "b"}},
		[]Choice{
			{ID: "c1", PageID: "a", TargetPageID: "b"},
			{ID: "c2", PageID: "a", TargetPageID: "b"},
		},
	)

	if got := len(g.Outgoing("a")); got != 1 {
		t.Errorf("outgoing = %d, want duplicate pair hidden", got)
	}
	// Raw storage keeps both.
	if got := len(g.Choices()); got != 2 {
		t.Errorf("raw choices = %d, want 2", got)
	}
}

func TestNewUndevelopedChoicesNotDeduplicated(t *testing.T) {
	// Two unlinked choices on one page are distinct authored stubs, not
	// duplicate edges.
	g := New(
		[]Page{{ID: "a"}},
		[]Choice{
			{ID: "c1", PageID: "a", Text: "left"},
			{ID: "c2", PageID: "a", Text: "right"},
		},
	)
	if got := len(g.Outgoing("a")); got != 2 {
		t.Errorf("outgoing = %d, want 2", got)
	}
}

func TestNewUnknownSourceExcludedFromNavigation(t *testing.T) {
	g := New(
		[]Page{{ID: "a"}},
		[]Choice{{ID: "c1", PageID: "ghost", TargetPageID: "a"}},
	)
	if g.Outgoing("ghost") != nil {
		t.Error("unknown source should have no navigation entry")
	}
	if got := len(g.Choices()); got != 1 {
		t.Errorf("raw choices = %d, want 1", got)
	}
}

func TestActiveChoices(t *testing.T) {
	g := New(
		[]Page{
			{ID: "a"},
			{ID: "end", IsEnding: true},
		},
		[]Choice{
			{ID: "c1", PageID: "a", TargetPageID: "end"},
			{ID: "c2", PageID: "end", TargetPageID: "a"},
		},
	)

	if got := len(g.ActiveChoices("a")); got != 1 {
		t.Errorf("active choices on a = %d, want 1", got)
	}
	// Endings expose nothing, whatever is stored against them.
	if got := g.ActiveChoices("end"); got != nil {
		t.Errorf("active choices on ending = %v, want nil", got)
	}
	if got := g.ActiveChoices("missing"); got != nil {
		t.Errorf("active choices on unknown page = %v, want nil", got)
	}
}

func TestTargeted(t *testing.T) {
	g := New(
		[]Page{{ID: "a"}, {ID: "b"}},
		[]Choice{
			{ID: "c1", PageID: "a", TargetPageID: "b"},
			{ID: "c2", PageID: "ghost", TargetPageID: "a"},
		},
	)
	if !g.Targeted("b") {
		t.Error("b is targeted by c1")
	}
	// A reference from an unknown source page does not count.
	if g.Targeted("a") {
		t.Error("a is only referenced from an unknown page")
	}
}

func TestChoiceLookup(t *testing.T) {
	g := New(
		[]Page{{ID: "a"}},
		[]Choice{{ID: "c1", PageID: "a"}},
	)
	if c, ok := g.Choice("c1"); !ok || c.PageID != "a" {
		t.Errorf("Choice(c1) = %v, %v", c, ok)
	}
	if _, ok := g.Choice("nope"); ok {
		t.Error("Choice(nope) should miss")
	}
}
