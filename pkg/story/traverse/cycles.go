package traverse

import "github.com/fableloom/fableloom/pkg/story"

// EdgeKey identifies a choice edge by its endpoints. Duplicate choices
// between the same pages collapse onto one key, which is exactly the
// granularity cycle classification needs.
type EdgeKey struct {
	Source string
	Target string
}

// Classify walks the graph depth-first from rootID and classifies every
// followable choice edge as forward or back.
//
// An edge (u → v) is a back-edge when v is on the walk's current ancestor
// stack. Back-edges are recorded and never followed, so the walk terminates
// unconditionally: each page enters the stack at most once. Pages reachable
// only through back-edges are still visited via their first forward path.
// Pages not reachable at all are orphans; they are Order's concern, not
// Classify's.
//
// Undeveloped choices are skipped silently; choices targeting a page absent
// from the graph are skipped with a diagnostic.
//
// The walk uses an explicit frame stack rather than recursion, so arbitrary
// path lengths cannot exhaust the goroutine stack.
func Classify(g *story.Graph, rootID string) (map[EdgeKey]bool, []story.Diagnostic) {
	back := make(map[EdgeKey]bool)
	var diags []story.Diagnostic
	if rootID == "" {
		return back, diags
	}
	if _, ok := g.Page(rootID); !ok {
		return back, diags
	}

	type frame struct {
		id   string
		next int // index of the next outgoing choice to consider
	}

	visited := map[string]bool{rootID: true}
	onStack := map[string]bool{rootID: true}
	stack := []frame{{id: rootID}}
	seenMissing := make(map[EdgeKey]bool)

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		out := g.Outgoing(f.id)
		if f.next >= len(out) {
			onStack[f.id] = false
			stack = stack[:len(stack)-1]
			continue
		}
		c := out[f.next]
		f.next++

		if c.TargetPageID == "" {
			continue
		}
		if _, ok := g.Page(c.TargetPageID); !ok {
			key := EdgeKey{Source: c.PageID, Target: c.TargetPageID}
			if !seenMissing[key] {
				seenMissing[key] = true
				diags = append(diags, story.Diagnostic{
					Kind:   story.DiagMissingTarget,
					Source: c.PageID,
					Target: c.TargetPageID,
					Detail: "choice targets a page absent from the loaded set",
				})
			}
			continue
		}
		if onStack[c.TargetPageID] {
			key := EdgeKey{Source: c.PageID, Target: c.TargetPageID}
			if !back[key] {
				back[key] = true
				diags = append(diags, story.Diagnostic{
					Kind:   story.DiagCyclicEdge,
					Source: c.PageID,
					Target: c.TargetPageID,
					Detail: "choice leads back to an ancestor page",
				})
			}
			continue
		}
		if visited[c.TargetPageID] {
			continue
		}
		visited[c.TargetPageID] = true
		onStack[c.TargetPageID] = true
		stack = append(stack, frame{id: c.TargetPageID})
	}

	return back, diags
}
