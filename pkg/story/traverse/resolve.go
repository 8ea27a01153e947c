package traverse

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/fableloom/fableloom/pkg/story"
)

// Resolution bundles every derivation the engine and UIs need from one
// graph snapshot: the root, the back-edge set, the presentation order with
// display parents, and all structural diagnostics (construction plus
// traversal).
type Resolution struct {
	Root      *story.Page
	BackEdges map[EdgeKey]bool
	Order     []Entry
	// Parent maps each reached page to its display parent, the attribute the
	// layout engine consumes rather than re-deriving per render.
	Parent      map[string]string
	Diagnostics []story.Diagnostic
}

// RootID returns the root page id, or "" when the story has no pages.
func (r *Resolution) RootID() string {
	if r.Root == nil {
		return ""
	}
	return r.Root.ID
}

// OrderedIDs returns the page ids of the presentation order.
func (r *Resolution) OrderedIDs() []string {
	ids := make([]string, len(r.Order))
	for i, e := range r.Order {
		ids[i] = e.Page.ID
	}
	return ids
}

// Orphans returns the pages flagged as unreachable, in order.
func (r *Resolution) Orphans() []*story.Page {
	var orphans []*story.Page
	for _, e := range r.Order {
		if e.Orphan {
			orphans = append(orphans, e.Page)
		}
	}
	return orphans
}

// Resolve runs root resolution, cycle classification, and ordering over one
// graph snapshot. Diagnostics are logged at Warn level through the supplied
// logger; pass nil to discard them. Resolve never fails: an empty story
// yields a Resolution with a nil Root and an empty order.
func Resolve(g *story.Graph, logger *log.Logger) Resolution {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	res := Resolution{Diagnostics: append([]story.Diagnostic(nil), g.Diagnostics()...)}

	root, rootDiags := Root(g)
	res.Root = root
	res.Diagnostics = append(res.Diagnostics, rootDiags...)

	back, cycleDiags := Classify(g, res.RootID())
	res.BackEdges = back
	res.Diagnostics = append(res.Diagnostics, cycleDiags...)

	order, parent, orderDiags := Order(g, res.RootID(), back)
	res.Order = order
	res.Parent = parent
	res.Diagnostics = append(res.Diagnostics, orderDiags...)

	for _, d := range res.Diagnostics {
		logger.Warn("story graph diagnostic",
			"kind", d.Kind,
			"page", d.PageID,
			"source", d.Source,
			"target", d.Target,
			"detail", d.Detail)
	}

	return res
}
