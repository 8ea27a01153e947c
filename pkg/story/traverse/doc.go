// Package traverse derives the canonical reading structure of a story graph:
// the root page, the forward/back classification of every choice edge, and a
// deterministic breadth-first presentation order.
//
// All derivations are pure functions over an immutable [story.Graph]
// snapshot. They tolerate every structural irregularity the model allows -
// cycles, orphan pages, undeveloped choices, targets pointing at missing
// pages - by degrading to defined fallbacks and recording diagnostics,
// never by failing.
//
// Traversals use explicit stacks and queues, so termination and memory are
// bounded by the page count regardless of graph shape.
//
// # Usage
//
//	res := traverse.Resolve(g, logger)
//	if res.Root == nil {
//	    // story has no pages
//	}
//	for _, e := range res.Order {
//	    // e.Page in presentation order; e.Orphan marks unreachable pages
//	}
package traverse
