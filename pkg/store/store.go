// Package store defines the persistence collaborator the engine consumes
// and provides two backends: an in-memory store for development, the CLI,
// and tests, and a MongoDB store for deployments.
//
// The engine treats the store as an external collaborator: every graph
// computation happens over an immutable snapshot fetched through this
// interface, and a failed call surfaces as a recoverable coded error without
// corrupting any in-memory state.
//
// Backends are goroutine-safe. All operations take a context and honor its
// cancellation.
package store

import (
	"context"

	"github.com/fableloom/fableloom/pkg/party"
	"github.com/fableloom/fableloom/pkg/story"
)

// Store is the persistence collaborator for stories, pages, choices, and
// parties. List operations return records in creation order - the "input
// order" every graph derivation's determinism is anchored to.
type Store interface {
	// Stories
	GetStory(ctx context.Context, storyID string) (*story.Story, error)
	ListStories(ctx context.Context) ([]story.Story, error)
	CreateStory(ctx context.Context, title string) (*story.Story, error)
	UpdateStory(ctx context.Context, storyID string, u StoryUpdate) (*story.Story, error)
	// DeleteStory cascades: the story's pages, their choices, and its
	// parties are removed with it.
	DeleteStory(ctx context.Context, storyID string) error

	// Pages
	ListPages(ctx context.Context, storyID string) ([]story.Page, error)
	GetPage(ctx context.Context, pageID string) (*story.Page, error)
	CreatePage(ctx context.Context, storyID string, u PageUpdate) (*story.Page, error)
	UpdatePage(ctx context.Context, pageID string, u PageUpdate) (*story.Page, error)
	// DeletePage cascades the page's outgoing choices. Choices elsewhere
	// that target the deleted page keep their target id and surface later
	// as missing-target diagnostics; they are never silently rewritten.
	DeletePage(ctx context.Context, pageID string) error

	// Choices
	ListChoicesForPage(ctx context.Context, pageID string) ([]story.Choice, error)
	CreateChoice(ctx context.Context, pageID, text, targetPageID string) (*story.Choice, error)
	UpdateChoice(ctx context.Context, choiceID string, u ChoiceUpdate) (*story.Choice, error)
	DeleteChoice(ctx context.Context, choiceID string) error

	// Parties
	GetParty(ctx context.Context, partyID string) (*party.Party, error)
	CreateParty(ctx context.Context, userID, storyID string) (*party.Party, error)
	UpdateParty(ctx context.Context, partyID string, u party.Update) (*party.Party, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// StoryUpdate carries optional story field changes; nil fields are left
// untouched.
type StoryUpdate struct {
	Title  *string
	Status *string
}

// PageUpdate carries optional page field changes; nil fields are left
// untouched. On CreatePage, nil fields take their zero values (empty
// content is a legal page).
type PageUpdate struct {
	Content      *string
	IsEnding     *bool
	EndingLabel  *string
	Illustration *string
}

// ChoiceUpdate carries optional choice field changes; nil fields are left
// untouched. Setting TargetPageID to a pointer at "" unlinks the choice.
type ChoiceUpdate struct {
	Text         *string
	TargetPageID *string
	Condition    *string
}

// String returns a pointer to s, for building update structs inline.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building update structs inline.
func Bool(b bool) *bool { return &b }
