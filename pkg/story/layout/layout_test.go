package layout

import (
	"fmt"
	"testing"

	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

func resolve(pages []story.Page, choices []story.Choice) (*story.Graph, traverse.Resolution) {
	g := story.New(pages, choices)
	return g, traverse.Resolve(g, nil)
}

func TestComputeEmptyStory(t *testing.T) {
	g, res := resolve(nil, nil)
	l := Compute(g, res, Options{})
	if len(l.Positions) != 0 {
		t.Errorf("positions = %v, want none", l.Positions)
	}
}

func TestComputeSinglePage(t *testing.T) {
	g, res := resolve([]story.Page{{ID: "only"}}, nil)
	l := Compute(g, res, Options{})

	p, ok := l.Position("only")
	if !ok {
		t.Fatal("only page has no position")
	}
	if p.X != DefaultCenterX || p.Y != 0 || p.Depth != 0 {
		t.Errorf("position = %+v, want centered root at depth 0", p)
	}
}

func TestComputeDepthRows(t *testing.T) {
	g, res := resolve(
		[]story.Page{{ID: "r"}, {ID: "a"}, {ID: "b"}, {ID: "a1"}},
		[]story.Choice{
			{ID: "c1", PageID: "r", TargetPageID: "a"},
			{ID: "c2", PageID: "r", TargetPageID: "b"},
			{ID: "c3", PageID: "a", TargetPageID: "a1"},
		},
	)
	l := Compute(g, res, Options{})

	if l.MaxDepth != 2 {
		t.Errorf("max depth = %d, want 2", l.MaxDepth)
	}

	wantDepth := map[string]int{"r": 0, "a": 1, "b": 1, "a1": 2}
	for id, d := range wantDepth {
		p, ok := l.Position(id)
		if !ok {
			t.Fatalf("no position for %s", id)
		}
		if p.Depth != d {
			t.Errorf("depth[%s] = %d, want %d", id, p.Depth, d)
		}
		if want := float64(d) * l.RowGap; p.Y != want {
			t.Errorf("y[%s] = %f, want %f", id, p.Y, want)
		}
	}

	// Siblings spread around the parent, symmetric about the center.
	a, _ := l.Position("a")
	b, _ := l.Position("b")
	if a.X >= b.X {
		t.Errorf("siblings out of order: a.X=%f b.X=%f", a.X, b.X)
	}
	if mid := (a.X + b.X) / 2; mid != DefaultCenterX {
		t.Errorf("sibling midpoint = %f, want %f", mid, DefaultCenterX)
	}
}

func TestComputeBounds(t *testing.T) {
	// A wide fan must stay inside the clamp range.
	pages := []story.Page{{ID: "r"}}
	var choices []story.Choice
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		pages = append(pages, story.Page{ID: id})
		choices = append(choices, story.Choice{ID: "c-" + id, PageID: "r", TargetPageID: id})
	}
	g, res := resolve(pages, choices)
	l := Compute(g, res, Options{})

	for _, p := range l.Positions {
		if p.X < DefaultMinX || p.X > DefaultMaxX {
			t.Errorf("x[%s] = %f outside [%f, %f]", p.PageID, p.X, DefaultMinX, DefaultMaxX)
		}
	}
}

func TestComputeSiblingsDistinct(t *testing.T) {
	// A spine of internal pages five levels deep, each with six children,
	// the spine continuing through a near-center child so nothing clamps.
	pages := []story.Page{{ID: "d0"}}
	var choices []story.Choice
	parent := "d0"
	for depth := 1; depth <= 5; depth++ {
		next := ""
		for i := 0; i < 6; i++ {
			id := fmt.Sprintf("d%d_%d", depth, i)
			pages = append(pages, story.Page{ID: id})
			choices = append(choices, story.Choice{ID: "c-" + id, PageID: parent, TargetPageID: id})
			if (depth%2 == 1 && i == 2) || (depth%2 == 0 && i == 3) {
				next = id
			}
		}
		parent = next
	}

	g, res := resolve(pages, choices)
	l := Compute(g, res, Options{})

	if l.MaxDepth != 5 {
		t.Fatalf("max depth = %d, want 5", l.MaxDepth)
	}

	siblings := make(map[string][]Position)
	for _, p := range l.Positions {
		par := res.Parent[p.PageID]
		siblings[par] = append(siblings[par], p)
	}
	for par, group := range siblings {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if group[i].X == group[j].X {
					t.Errorf("children of %q share x=%f: %s and %s",
						par, group[i].X, group[i].PageID, group[j].PageID)
				}
			}
		}
	}
}

func TestComputeOrphanRow(t *testing.T) {
	g, res := resolve(
		[]story.Page{{ID: "r"}, {ID: "child"}, {ID: "lost"}},
		[]story.Choice{{ID: "c1", PageID: "r", TargetPageID: "child"}},
	)
	l := Compute(g, res, Options{})

	lost, ok := l.Position("lost")
	if !ok {
		t.Fatal("orphan has no position")
	}
	if !lost.Orphan {
		t.Error("orphan flag not set")
	}
	if lost.Depth != l.MaxDepth+1 {
		t.Errorf("orphan depth = %d, want %d", lost.Depth, l.MaxDepth+1)
	}
	for _, p := range l.Positions {
		if p.PageID != "lost" && p.Y >= lost.Y {
			t.Errorf("%s at y=%f not above orphan row y=%f", p.PageID, p.Y, lost.Y)
		}
	}
}

func TestComputeRowGapClamped(t *testing.T) {
	// Two rows against a tall canvas: the gap stops at MaxRowGap.
	g, res := resolve(
		[]story.Page{{ID: "r"}, {ID: "a"}},
		[]story.Choice{{ID: "c1", PageID: "r", TargetPageID: "a"}},
	)
	l := Compute(g, res, Options{Height: 1000})
	if l.RowGap != DefaultMaxRowGap {
		t.Errorf("row gap = %f, want clamped to %f", l.RowGap, DefaultMaxRowGap)
	}
}

func TestComputeDeterministic(t *testing.T) {
	pages := []story.Page{{ID: "r"}, {ID: "a"}, {ID: "b"}, {ID: "lost"}}
	choices := []story.Choice{
		{ID: "c1", PageID: "r", TargetPageID: "a"},
		{ID: "c2", PageID: "r", TargetPageID: "b"},
	}

	g, res := resolve(pages, choices)
	first := Compute(g, res, Options{})
	for i := 0; i < 5; i++ {
		g, res := resolve(pages, choices)
		l := Compute(g, res, Options{})
		for j, p := range l.Positions {
			if p != first.Positions[j] {
				t.Fatalf("run %d: position[%d] = %+v, want %+v", i, j, p, first.Positions[j])
			}
		}
	}
}
