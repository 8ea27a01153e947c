// Package story defines the narrative data model and the in-memory graph
// over it.
//
// A story is a directed graph: pages are nodes, choices are labeled edges.
// The graph may be disconnected, may contain cycles, and may contain
// undeveloped choices (edges with no target yet); all of these are legal
// states an author passes through, never assumed absent.
//
// The model layer holds structure and queries only. Root resolution, cycle
// classification, and presentation ordering live in the traverse subpackage;
// spatial layout lives in the layout subpackage.
//
// # Serialization
//
// The File type is the canonical interchange format for a complete story
// (story document plus its pages and choices). It is used by the CLI, by
// fixtures, and for export/import:
//
//	f, err := story.ReadFile("my-story.json")
//	if err != nil {
//	    return err
//	}
//	g := story.New(f.Pages, f.Choices)
package story
