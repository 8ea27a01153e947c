package traverse

import "github.com/fableloom/fableloom/pkg/story"

// Entry is one slot in the presentation order.
type Entry struct {
	Page *story.Page
	// Orphan marks pages that are not forward-reachable from the root and
	// were appended after the reachable set, in input order.
	Orphan bool
}

// Order produces a deterministic, duplicate-free, breadth-first ordering of
// all pages, suitable for listing and editing UIs.
//
// The BFS starts at rootID and enqueues forward (non-back-edge) choice
// targets; a page already visited is never re-enqueued, which makes
// multi-parent pages and cycles safe. When a visited page is reached again
// through a second forward edge, a multi-parent diagnostic is recorded.
// After the queue drains, pages never visited are appended in input order
// and flagged as orphans.
//
// The returned parent map holds each reached page's display parent: the
// source of the first forward edge that discovered it during the root-first
// walk. The root and orphans have no entry. Output length always equals the
// graph's page count, and the root is first whenever a root exists.
func Order(g *story.Graph, rootID string, back map[EdgeKey]bool) ([]Entry, map[string]string, []story.Diagnostic) {
	var (
		entries []Entry
		diags   []story.Diagnostic
	)
	parent := make(map[string]string)
	visited := make(map[string]bool)

	if rootID != "" {
		if _, ok := g.Page(rootID); ok {
			visited[rootID] = true
			queue := []string{rootID}
			for len(queue) > 0 {
				id := queue[0]
				queue = queue[1:]
				p, _ := g.Page(id)
				entries = append(entries, Entry{Page: p})

				for _, c := range g.Outgoing(id) {
					if c.TargetPageID == "" {
						continue
					}
					if back[EdgeKey{Source: c.PageID, Target: c.TargetPageID}] {
						continue
					}
					if _, ok := g.Page(c.TargetPageID); !ok {
						continue
					}
					if visited[c.TargetPageID] {
						if parent[c.TargetPageID] != id && c.TargetPageID != rootID {
							diags = append(diags, story.Diagnostic{
								Kind:   story.DiagMultiParent,
								PageID: c.TargetPageID,
								Source: id,
								Detail: "page reached through more than one forward choice",
							})
						}
						continue
					}
					visited[c.TargetPageID] = true
					parent[c.TargetPageID] = id
					queue = append(queue, c.TargetPageID)
				}
			}
		}
	}

	for _, p := range g.Pages() {
		if visited[p.ID] {
			continue
		}
		entries = append(entries, Entry{Page: p, Orphan: true})
		diags = append(diags, story.Diagnostic{
			Kind:   story.DiagOrphanPage,
			PageID: p.ID,
			Detail: "page is not forward-reachable from the root",
		})
	}

	return entries, parent, diags
}
