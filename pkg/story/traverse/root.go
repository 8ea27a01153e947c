package traverse

import "github.com/fableloom/fableloom/pkg/story"

// Root finds the canonical starting page of a story graph.
//
// The root is the page no choice targets. When several pages qualify, the
// one with the most outgoing choices wins (an author's true entry point
// usually fans out); ties go to the first encountered in input order. When
// no page qualifies - the whole graph is one or more cycles - Root falls
// back to the first page in input order and reports a diagnostic: degraded
// but defined behavior, not a failure.
//
// Root returns nil only when the story has no pages.
func Root(g *story.Graph) (*story.Page, []story.Diagnostic) {
	pages := g.Pages()
	if len(pages) == 0 {
		return nil, nil
	}

	targeted := make(map[string]bool)
	for _, c := range g.Choices() {
		if c.TargetPageID == "" {
			continue
		}
		if _, ok := g.Page(c.PageID); !ok {
			continue
		}
		targeted[c.TargetPageID] = true
	}

	var unreferenced []*story.Page
	for _, p := range pages {
		if !targeted[p.ID] {
			unreferenced = append(unreferenced, p)
		}
	}

	switch len(unreferenced) {
	case 0:
		root := pages[0]
		return root, []story.Diagnostic{{
			Kind:   story.DiagRootFallback,
			PageID: root.ID,
			Detail: "every page is a choice target; falling back to first page in input order",
		}}
	case 1:
		return unreferenced[0], nil
	default:
		best := unreferenced[0]
		for _, p := range unreferenced[1:] {
			if len(g.Outgoing(p.ID)) > len(g.Outgoing(best.ID)) {
				best = p
			}
		}
		return best, nil
	}
}
