package story

// Story status values.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Story is the owning collection of pages and choices.
// It is the partition key for one graph instance: every engine computation
// operates on the pages and choices of exactly one story.
type Story struct {
	ID     string `json:"id" bson:"_id"`
	Title  string `json:"title" bson:"title"`
	Status string `json:"status" bson:"status"`
}

// IsPublished reports whether the story is visible to readers.
func (s *Story) IsPublished() bool { return s.Status == StatusPublished }

// Page is a node of narrative content in a story graph.
//
// Empty content is legal: authors create pages first and write them later.
// A page with IsEnding set exposes no active choices to readers, regardless
// of any choices stored against it.
type Page struct {
	ID           string `json:"id" bson:"_id"`
	StoryID      string `json:"storyId" bson:"story_id"`
	Content      string `json:"content" bson:"content"`
	IsEnding     bool   `json:"isEnding" bson:"is_ending"`
	EndingLabel  string `json:"endingLabel,omitempty" bson:"ending_label,omitempty"`
	Illustration string `json:"illustration,omitempty" bson:"illustration,omitempty"`
}

// Choice is a directed, labeled edge from one page to another.
//
// TargetPageID may be empty: the choice has been authored but not yet linked
// ("undeveloped"). Such a choice is a valid, incomplete edge - it renders for
// the author but selecting it as a reader is a content-incomplete error.
// Condition is carried for external evaluation and ignored by the engine.
type Choice struct {
	ID           string `json:"id" bson:"_id"`
	PageID       string `json:"pageId" bson:"page_id"`
	Text         string `json:"text" bson:"text"`
	TargetPageID string `json:"targetPageId,omitempty" bson:"target_page_id,omitempty"`
	Condition    string `json:"condition,omitempty" bson:"condition,omitempty"`
}

// IsLinked reports whether the choice points at a target page.
func (c *Choice) IsLinked() bool { return c.TargetPageID != "" }
