// Package layout assigns 2-D coordinates to the pages of a story graph for
// visualization. Depth (distance from the root along forward edges) becomes
// the vertical axis; siblings spread horizontally around their parent.
//
// The input is a [traverse.Resolution]: the display-parent relation computed
// during the root-first walk turns the graph into a proper tree, which is
// what a spatial layout needs. Orphan pages have no position in that tree
// and are parked on their own bottom row.
//
// The computation is pure and deterministic; recomputing on every render is
// correct, caching is purely an optimization (see pkg/engine).
package layout

import (
	"math"

	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

// Default layout parameters. X values live in a 0-100 range with positions
// clamped into [MinX, MaxX] so layout stays bounded regardless of tree width.
const (
	DefaultMinX          = 10.0
	DefaultMaxX          = 90.0
	DefaultCenterX       = 50.0
	DefaultHeight        = 100.0
	DefaultMinRowGap     = 8.0
	DefaultMaxRowGap     = 20.0
	DefaultSiblingSpread = 60.0
	DefaultMinSiblingGap = 4.0
)

// Options configures the layout computation. The zero value selects the
// defaults above.
type Options struct {
	MinX, MaxX float64 // horizontal clamp range
	CenterX    float64 // preferred x of the root
	Height     float64 // total vertical budget

	// Row gap is Height/(maxDepth+1) clamped into [MinRowGap, MaxRowGap],
	// so very deep trees stay compact and shallow ones don't stretch.
	MinRowGap, MaxRowGap float64

	// SiblingSpread is the horizontal budget shared by one page's children;
	// the per-sibling step is SiblingSpread/len(children), never less than
	// MinSiblingGap.
	SiblingSpread float64
	MinSiblingGap float64
}

func (o *Options) setDefaults() {
	if o.MinX == 0 && o.MaxX == 0 {
		o.MinX, o.MaxX = DefaultMinX, DefaultMaxX
	}
	if o.CenterX == 0 {
		o.CenterX = DefaultCenterX
	}
	if o.Height == 0 {
		o.Height = DefaultHeight
	}
	if o.MinRowGap == 0 {
		o.MinRowGap = DefaultMinRowGap
	}
	if o.MaxRowGap == 0 {
		o.MaxRowGap = DefaultMaxRowGap
	}
	if o.SiblingSpread == 0 {
		o.SiblingSpread = DefaultSiblingSpread
	}
	if o.MinSiblingGap == 0 {
		o.MinSiblingGap = DefaultMinSiblingGap
	}
}

// Position is one page's resolved coordinates.
type Position struct {
	PageID string  `json:"pageId" bson:"page_id"`
	X      float64 `json:"x" bson:"x"`
	Y      float64 `json:"y" bson:"y"`
	Depth  int     `json:"depth" bson:"depth"`
	Orphan bool    `json:"orphan,omitempty" bson:"orphan,omitempty"`
}

// Layout holds the resolved positions of every page, in presentation order.
type Layout struct {
	Positions []Position `json:"positions" bson:"positions"`
	RowGap    float64    `json:"rowGap" bson:"row_gap"`
	MaxDepth  int        `json:"maxDepth" bson:"max_depth"`
}

// Position returns the position of a page, if it was laid out.
func (l *Layout) Position(pageID string) (Position, bool) {
	for _, p := range l.Positions {
		if p.PageID == pageID {
			return p, true
		}
	}
	return Position{}, false
}

// Compute lays out every page of the resolved graph.
//
// Depth is memoized per page: the root is 0, any other reached page is one
// more than its display parent. Horizontal placement works post-order over
// the display-parent tree: a leaf sits at its preferred x, an interior page
// at the centroid of its children after they have been spread around that
// preferred x. Orphans are parked on one extra row below the tree, evenly
// spaced in input order.
//
// Two pages at the same depth only share an x when more leaves compete for
// space than the minimum sibling gap allows inside [MinX, MaxX]; that is an
// accepted approximation of the clamped layout, not something to fix by
// clipping further.
func Compute(g *story.Graph, res traverse.Resolution, opts Options) Layout {
	opts.setDefaults()

	if g.PageCount() == 0 || res.Root == nil {
		return Layout{RowGap: opts.MinRowGap}
	}

	depth := resolveDepths(res)
	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	orphans := res.Orphans()
	rows := maxDepth + 1
	if len(orphans) > 0 {
		rows++ // orphan row sits below the deepest reached page
	}
	rowGap := clamp(opts.Height/float64(rows), opts.MinRowGap, opts.MaxRowGap)

	children := childrenByParent(res)
	x := make(map[string]float64, g.PageCount())
	placeSubtree(res.RootID(), opts.CenterX, children, x, opts)

	out := Layout{
		RowGap:    rowGap,
		MaxDepth:  maxDepth,
		Positions: make([]Position, 0, len(res.Order)),
	}

	orphanIdx := 0
	for _, e := range res.Order {
		if e.Orphan {
			// Evenly spaced across the clamp range, input order.
			step := (opts.MaxX - opts.MinX) / float64(len(orphans)+1)
			out.Positions = append(out.Positions, Position{
				PageID: e.Page.ID,
				X:      opts.MinX + float64(orphanIdx+1)*step,
				Y:      float64(maxDepth+1) * rowGap,
				Depth:  maxDepth + 1,
				Orphan: true,
			})
			orphanIdx++
			continue
		}
		out.Positions = append(out.Positions, Position{
			PageID: e.Page.ID,
			X:      x[e.Page.ID],
			Y:      float64(depth[e.Page.ID]) * rowGap,
			Depth:  depth[e.Page.ID],
		})
	}

	return out
}

// resolveDepths computes depth per page id from the display-parent relation.
// The presentation order is breadth-first, so a parent's depth is always
// known before its children's; one pass fills the memo.
func resolveDepths(res traverse.Resolution) map[string]int {
	depth := make(map[string]int, len(res.Order))
	for _, e := range res.Order {
		if e.Orphan {
			continue
		}
		if parent, ok := res.Parent[e.Page.ID]; ok {
			depth[e.Page.ID] = depth[parent] + 1
		} else {
			depth[e.Page.ID] = 0 // root
		}
	}
	return depth
}

// childrenByParent inverts the display-parent relation, preserving the
// breadth-first discovery order of the children.
func childrenByParent(res traverse.Resolution) map[string][]string {
	children := make(map[string][]string)
	for _, e := range res.Order {
		if e.Orphan {
			continue
		}
		if parent, ok := res.Parent[e.Page.ID]; ok {
			children[parent] = append(children[parent], e.Page.ID)
		}
	}
	return children
}

// placeSubtree resolves x positions post-order. The explicit frame stack
// keeps memory proportional to tree depth without relying on goroutine
// stack growth for pathological graphs.
func placeSubtree(rootID string, rootPref float64, children map[string][]string, x map[string]float64, opts Options) {
	type frame struct {
		id       string
		pref     float64
		expanded bool
	}

	stack := []frame{{id: rootID, pref: rootPref}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		kids := children[top.id]

		if len(kids) == 0 {
			x[top.id] = clamp(top.pref, opts.MinX, opts.MaxX)
			stack = stack[:len(stack)-1]
			continue
		}

		if !top.expanded {
			stack[len(stack)-1].expanded = true
			// Spread children around the preferred x; tighter with more
			// siblings, never closer than the minimum gap.
			step := opts.SiblingSpread / float64(len(kids))
			if step < opts.MinSiblingGap {
				step = opts.MinSiblingGap
			}
			offset := -step * float64(len(kids)-1) / 2
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{
					id:   kids[i],
					pref: top.pref + offset + step*float64(i),
				})
			}
			continue
		}

		// Children resolved: settle at their centroid.
		sum := 0.0
		for _, k := range kids {
			sum += x[k]
		}
		x[top.id] = clamp(sum/float64(len(kids)), opts.MinX, opts.MaxX)
		stack = stack[:len(stack)-1]
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
