// Package party tracks a reader's traversal of a story: the party record
// persisted by the collaborator store, the in-memory reader session state
// machine, and the progress calculation derived from both.
//
// A party's path is an append-only visit log: it only ever grows during a
// session. The navigation history a reader can step back through is a
// separate, purely in-memory stack; going back re-renders an earlier page
// without rewriting the log.
package party

import (
	"math"
	"time"
)

// Party is one reader's persisted traversal record for one story.
type Party struct {
	ID        string     `json:"id" bson:"_id"`
	UserID    string     `json:"userId" bson:"user_id"`
	StoryID   string     `json:"storyId" bson:"story_id"`
	StartDate time.Time  `json:"startDate" bson:"start_date"`
	EndDate   *time.Time `json:"endDate,omitempty" bson:"end_date,omitempty"`

	// Path is the ordered visit log, monotonically non-decreasing in length
	// for the lifetime of the session. Repeat visits append again.
	Path []string `json:"path" bson:"path"`

	// EndingPageID records which ending was reached, once one is.
	EndingPageID string `json:"endingPageId,omitempty" bson:"ending_page_id,omitempty"`
}

// Ended reports whether the party has reached an ending.
// EndDate is set exactly once, on first arrival at an ending page.
func (p *Party) Ended() bool { return p.EndDate != nil }

// CurrentPageID returns the last visited page id, or "" for an empty path.
func (p *Party) CurrentPageID() string {
	if len(p.Path) == 0 {
		return ""
	}
	return p.Path[len(p.Path)-1]
}

// DistinctVisited counts the distinct page ids in the visit log.
func (p *Party) DistinctVisited() int {
	seen := make(map[string]bool, len(p.Path))
	for _, id := range p.Path {
		seen[id] = true
	}
	return len(seen)
}

// Progress computes the percentage of a story's pages this party has
// visited: round(100 × distinct / total), clamped to [0, 100]. A fresh
// party is at 0, and progress never decreases as distinct pages accumulate.
func Progress(p *Party, totalPages int) int {
	if p == nil || totalPages <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(p.DistinctVisited()) / float64(totalPages)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Update is the field set a session may change on a persisted party.
// Zero fields are left untouched by the store.
type Update struct {
	AppendPath   []string
	EndDate      *time.Time
	EndingPageID string
}
