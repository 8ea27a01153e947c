package party

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/observability"
	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

// State is the reader session state.
type State int

const (
	// Reading means the reader is on a non-ending page.
	Reading State = iota
	// Ended means the reader is on a page with IsEnding set.
	Ended
)

// String returns the state name.
func (s State) String() string {
	if s == Ended {
		return "ended"
	}
	return "reading"
}

// Saver persists party updates. pkg/store satisfies this; tests supply
// in-memory fakes.
type Saver interface {
	UpdateParty(ctx context.Context, partyID string, u Update) (*Party, error)
}

// Session is the in-memory state machine for one reader moving through one
// story. It owns the navigation history (undo stack) and keeps the persisted
// party consistent with the last successful save: a failed store call leaves
// both the party and the session exactly where they were.
//
// A Session is used by a single goroutine; the underlying graph snapshot is
// immutable and shared freely.
type Session struct {
	party  *Party
	graph  *story.Graph
	saver  Saver
	logger *log.Logger

	history []string // undo stack of page ids; distinct from party.Path
	state   State
}

// NewSession builds a session for a party over a graph snapshot.
//
// A fresh party (empty path) is placed on the story's root and the visit is
// persisted before the session becomes usable. A resumed party continues on
// the last page of its visit log; if that page no longer exists in the
// snapshot, the session restarts from the root rather than failing.
func NewSession(ctx context.Context, p *Party, g *story.Graph, saver Saver, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Session{party: p, graph: g, saver: saver, logger: logger}

	if current := p.CurrentPageID(); current != "" {
		if page, ok := g.Page(current); ok {
			s.history = []string{current}
			if page.IsEnding {
				s.state = Ended
			}
			return s, nil
		}
		logger.Warn("resumed party points at a missing page; restarting from root",
			"party", p.ID, "page", current)
	}

	if err := s.Restart(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Party returns the tracked party record.
func (s *Session) Party() *Party { return s.party }

// StoryID returns the story this session reads.
func (s *Session) StoryID() string { return s.party.StoryID }

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Current returns the page the reader is on, or nil when the story is empty.
func (s *Session) Current() *story.Page {
	if len(s.history) == 0 {
		return nil
	}
	p, _ := s.graph.Page(s.history[len(s.history)-1])
	return p
}

// Choices returns the choices selectable from the current page. Endings
// expose none. Undeveloped choices are included so UIs can render them
// greyed out; selecting one fails with a content-incomplete error.
func (s *Session) Choices() []*story.Choice {
	cur := s.Current()
	if cur == nil {
		return nil
	}
	return s.graph.ActiveChoices(cur.ID)
}

// Progress returns the party's progress over this story's page count.
func (s *Session) Progress() int {
	return Progress(s.party, s.graph.PageCount())
}

// CanGoBack reports whether GoBack would succeed.
func (s *Session) CanGoBack() bool { return len(s.history) > 1 }

// SelectChoice follows a choice from the current page.
//
// Valid only while Reading. The choice must belong to the current page, must
// be linked (an empty target is the content-incomplete condition: surfaced as
// a validation error, no state transition), and its target must exist in the
// loaded page set. The visit is persisted before in-memory state moves, so a
// store failure leaves the session on the current page.
//
// Arriving at an ending page for the first time in the party's life sets
// EndDate exactly once and fires one completion hook; later arrivals at
// endings (after Restart) change session state only.
func (s *Session) SelectChoice(ctx context.Context, choiceID string) error {
	if s.state == Ended {
		return errors.New(errors.ErrCodeSessionEnded, "the story has ended; restart to read again")
	}
	cur := s.Current()
	if cur == nil {
		return errors.New(errors.ErrCodePageNotFound, "session has no current page")
	}

	var choice *story.Choice
	for _, c := range s.graph.ActiveChoices(cur.ID) {
		if c.ID == choiceID {
			choice = c
			break
		}
	}
	if choice == nil {
		return errors.New(errors.ErrCodeChoiceNotFound, "choice %q is not available on this page", choiceID)
	}
	if !choice.IsLinked() {
		return errors.New(errors.ErrCodeContentIncomplete, "this choice has not been written yet")
	}
	target, ok := s.graph.Page(choice.TargetPageID)
	if !ok {
		return errors.New(errors.ErrCodePageNotFound, "choice target page %q is not in the loaded story", choice.TargetPageID)
	}

	u := Update{AppendPath: []string{target.ID}}
	completing := target.IsEnding && !s.party.Ended()
	if completing {
		now := time.Now().UTC()
		u.EndDate = &now
		u.EndingPageID = target.ID
	}

	updated, err := s.saver.UpdateParty(ctx, s.party.ID, u)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistence, err, "save visit to page %s", target.ID)
	}
	s.party = updated

	s.history = append(s.history, target.ID)
	if target.IsEnding {
		s.state = Ended
	}
	if completing {
		observability.Session().OnCompletion(ctx, s.party.ID, s.party.StoryID, target.ID)
		s.logger.Info("story completed",
			"party", s.party.ID, "ending", target.ID, "label", target.EndingLabel)
	}
	observability.Session().OnChoice(ctx, s.party.ID, choice.ID, target.ID)

	return nil
}

// GoBack re-renders the previous page by popping the navigation history.
// The persisted path is an append-only visit log and is not rewritten.
func (s *Session) GoBack() error {
	if !s.CanGoBack() {
		return errors.New(errors.ErrCodeNothingToUndo, "already at the beginning")
	}
	s.history = s.history[:len(s.history)-1]
	if cur := s.Current(); cur != nil && !cur.IsEnding {
		s.state = Reading
	}
	return nil
}

// Restart places the reader back on the story's root, valid in any state.
// The in-memory history collapses to a single entry; the root visit is
// appended to the persisted path, keeping the visit log append-only. A party
// that already ended keeps its EndDate - completion happens at most once.
func (s *Session) Restart(ctx context.Context) error {
	root, _ := traverse.Root(s.graph)
	if root == nil {
		return errors.New(errors.ErrCodeStoryNotFound, "story has no pages")
	}

	updated, err := s.saver.UpdateParty(ctx, s.party.ID, Update{AppendPath: []string{root.ID}})
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistence, err, "save restart at page %s", root.ID)
	}
	s.party = updated

	s.history = []string{root.ID}
	if root.IsEnding {
		s.state = Ended
	} else {
		s.state = Reading
	}
	return nil
}
