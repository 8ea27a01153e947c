package story

// Diagnostic kinds reported by graph construction and traversal.
const (
	DiagDuplicatePage = "duplicate_page"
	DiagMissingTarget = "missing_target"
	DiagOrphanPage    = "orphan_page"
	DiagCyclicEdge    = "cyclic_edge"
	DiagRootFallback  = "root_fallback"
	DiagMultiParent   = "multi_parent"
)

// Diagnostic records a structural irregularity found in a story graph.
// Diagnostics are annotations, not errors: the engine degrades to defined
// fallback behavior and continues.
type Diagnostic struct {
	Kind   string `json:"kind" bson:"kind"`
	PageID string `json:"pageId,omitempty" bson:"page_id,omitempty"`
	// Source and Target identify the offending edge for edge-level kinds.
	Source string `json:"source,omitempty" bson:"source,omitempty"`
	Target string `json:"target,omitempty" bson:"target,omitempty"`
	Detail string `json:"detail,omitempty" bson:"detail,omitempty"`
}

// Graph is the in-memory model of one story's pages and choices.
//
// It is a read-time view over a snapshot: construction never fails, duplicate
// page ids are dropped (first occurrence wins) and recorded as diagnostics,
// and duplicate (source, target) choice pairs are hidden from the navigation
// view without touching the underlying data. Graph holds no policy beyond
// that - root resolution, cycle classification, ordering, and layout are
// separate derivations over it.
//
// Graph is immutable after New and safe for concurrent readers.
type Graph struct {
	pages    []*Page           // input order, after dedup
	pageByID map[string]*Page  // O(1) lookup
	outgoing map[string][]*Choice // pageID -> deduplicated outgoing choices, input order
	choices  []*Choice         // raw input, duplicates included
	diags    []Diagnostic
}

// New builds a Graph from one story's pages and choices.
//
// Pages with repeated ids are dropped after the first occurrence; this is an
// upstream data error, recorded as a diagnostic, never a crash. Choices whose
// source page is unknown are kept in the raw view but excluded from
// navigation. A second choice with the same (source, target) pair is
// likewise excluded from navigation; storage is never silently merged.
func New(pages []Page, choices []Choice) *Graph {
	g := &Graph{
		pageByID: make(map[string]*Page, len(pages)),
		outgoing: make(map[string][]*Choice),
	}

	for i := range pages {
		p := &pages[i]
		if _, seen := g.pageByID[p.ID]; seen {
			g.diags = append(g.diags, Diagnostic{
				Kind:   DiagDuplicatePage,
				PageID: p.ID,
				Detail: "duplicate page id dropped",
			})
			continue
		}
		g.pageByID[p.ID] = p
		g.pages = append(g.pages, p)
	}

	seenPair := make(map[[2]string]bool, len(choices))
	for i := range choices {
		c := &choices[i]
		g.choices = append(g.choices, c)
		if _, ok := g.pageByID[c.PageID]; !ok {
			continue
		}
		if c.TargetPageID != "" {
			pair := [2]string{c.PageID, c.TargetPageID}
			if seenPair[pair] {
				continue
			}
			seenPair[pair] = true
		}
		g.outgoing[c.PageID] = append(g.outgoing[c.PageID], c)
	}

	return g
}

// Page returns the page with the given id and true, or nil and false.
func (g *Graph) Page(id string) (*Page, bool) {
	p, ok := g.pageByID[id]
	return p, ok
}

// Pages returns all pages in input order (after dedup).
// The returned slice must not be modified.
func (g *Graph) Pages() []*Page { return g.pages }

// PageCount returns the number of pages after dedup.
func (g *Graph) PageCount() int { return len(g.pages) }

// Choices returns the raw choice list, duplicates included and in input order.
func (g *Graph) Choices() []*Choice { return g.choices }

// Outgoing returns the deduplicated outgoing choices of a page, in input
// order. Undeveloped choices (empty target) are included; the caller decides
// whether they are navigable. Returns nil for unknown pages.
func (g *Graph) Outgoing(pageID string) []*Choice { return g.outgoing[pageID] }

// ActiveChoices returns the choices a reader may select from a page: the
// deduplicated outgoing set, or nothing at all when the page is an ending.
// Undeveloped choices remain in the result so the UI can present them; they
// fail with a content-incomplete error on selection.
func (g *Graph) ActiveChoices(pageID string) []*Choice {
	p, ok := g.pageByID[pageID]
	if !ok || p.IsEnding {
		return nil
	}
	return g.outgoing[pageID]
}

// Choice looks up a choice by id in the raw choice list.
func (g *Graph) Choice(id string) (*Choice, bool) {
	for _, c := range g.choices {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Targeted reports whether any non-empty choice target references the page.
func (g *Graph) Targeted(pageID string) bool {
	for _, c := range g.choices {
		if c.TargetPageID == pageID {
			if _, ok := g.pageByID[c.PageID]; ok {
				return true
			}
		}
	}
	return false
}

// Diagnostics returns the structural diagnostics recorded during
// construction. Traversal adds its own; see traverse.Resolution.
func (g *Graph) Diagnostics() []Diagnostic { return g.diags }
