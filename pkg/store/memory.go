package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/party"
	"github.com/fableloom/fableloom/pkg/story"
)

// MemoryStore is an in-memory Store for development, the CLI's local play
// mode, and tests. Creation order is preserved per collection so list
// results match the determinism contract of the graph derivations.
type MemoryStore struct {
	mu       sync.RWMutex
	stories  []story.Story
	pages    []story.Page
	choices  []story.Choice
	parties  []party.Party
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed loads a story file into the store, keeping the file's ids and order.
// Existing data is untouched; callers use a fresh store per file.
func (m *MemoryStore) Seed(f story.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories = append(m.stories, f.Story)
	m.pages = append(m.pages, f.Pages...)
	m.choices = append(m.choices, f.Choices...)
}

func (m *MemoryStore) GetStory(ctx context.Context, storyID string) (*story.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.stories {
		if m.stories[i].ID == storyID {
			s := m.stories[i]
			return &s, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrCodeStoryNotFound, "story %q not found", storyID)
}

func (m *MemoryStore) ListStories(ctx context.Context) ([]story.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]story.Story, len(m.stories))
	copy(out, m.stories)
	return out, nil
}

func (m *MemoryStore) CreateStory(ctx context.Context, title string) (*story.Story, error) {
	if err := apperrors.ValidateStoryTitle(title); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := story.Story{ID: uuid.NewString(), Title: title, Status: story.StatusDraft}
	m.stories = append(m.stories, s)
	return &s, nil
}

func (m *MemoryStore) UpdateStory(ctx context.Context, storyID string, u StoryUpdate) (*story.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.stories {
		if m.stories[i].ID != storyID {
			continue
		}
		if u.Title != nil {
			m.stories[i].Title = *u.Title
		}
		if u.Status != nil {
			m.stories[i].Status = *u.Status
		}
		s := m.stories[i]
		return &s, nil
	}
	return nil, apperrors.New(apperrors.ErrCodeStoryNotFound, "story %q not found", storyID)
}

func (m *MemoryStore) DeleteStory(ctx context.Context, storyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	kept := m.stories[:0]
	for _, s := range m.stories {
		if s.ID == storyID {
			found = true
			continue
		}
		kept = append(kept, s)
	}
	m.stories = kept
	if !found {
		return apperrors.New(apperrors.ErrCodeStoryNotFound, "story %q not found", storyID)
	}

	// Cascade: pages, their choices, and parties go with the story.
	doomed := make(map[string]bool)
	keptPages := m.pages[:0]
	for _, p := range m.pages {
		if p.StoryID == storyID {
			doomed[p.ID] = true
			continue
		}
		keptPages = append(keptPages, p)
	}
	m.pages = keptPages

	keptChoices := m.choices[:0]
	for _, c := range m.choices {
		if doomed[c.PageID] {
			continue
		}
		keptChoices = append(keptChoices, c)
	}
	m.choices = keptChoices

	keptParties := m.parties[:0]
	for _, p := range m.parties {
		if p.StoryID == storyID {
			continue
		}
		keptParties = append(keptParties, p)
	}
	m.parties = keptParties

	return nil
}

func (m *MemoryStore) ListPages(ctx context.Context, storyID string) ([]story.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []story.Page
	for _, p := range m.pages {
		if p.StoryID == storyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetPage(ctx context.Context, pageID string) (*story.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.pages {
		if m.pages[i].ID == pageID {
			p := m.pages[i]
			return &p, nil
		}
	}
	return nil, apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
}

func (m *MemoryStore) CreatePage(ctx context.Context, storyID string, u PageUpdate) (*story.Page, error) {
	if _, err := m.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := story.Page{ID: uuid.NewString(), StoryID: storyID}
	applyPageUpdate(&p, u)
	m.pages = append(m.pages, p)
	return &p, nil
}

func (m *MemoryStore) UpdatePage(ctx context.Context, pageID string, u PageUpdate) (*story.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pages {
		if m.pages[i].ID != pageID {
			continue
		}
		applyPageUpdate(&m.pages[i], u)
		p := m.pages[i]
		return &p, nil
	}
	return nil, apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
}

func (m *MemoryStore) DeletePage(ctx context.Context, pageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	kept := m.pages[:0]
	for _, p := range m.pages {
		if p.ID == pageID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	m.pages = kept
	if !found {
		return apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}

	keptChoices := m.choices[:0]
	for _, c := range m.choices {
		if c.PageID == pageID {
			continue
		}
		keptChoices = append(keptChoices, c)
	}
	m.choices = keptChoices
	return nil
}

func (m *MemoryStore) ListChoicesForPage(ctx context.Context, pageID string) ([]story.Choice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []story.Choice
	for _, c := range m.choices {
		if c.PageID == pageID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateChoice(ctx context.Context, pageID, text, targetPageID string) (*story.Choice, error) {
	if err := apperrors.ValidateChoiceText(text); err != nil {
		return nil, err
	}
	if _, err := m.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	if targetPageID != "" {
		if _, err := m.GetPage(ctx, targetPageID); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := story.Choice{ID: uuid.NewString(), PageID: pageID, Text: text, TargetPageID: targetPageID}
	m.choices = append(m.choices, c)
	return &c, nil
}

func (m *MemoryStore) UpdateChoice(ctx context.Context, choiceID string, u ChoiceUpdate) (*story.Choice, error) {
	if u.Text != nil {
		if err := apperrors.ValidateChoiceText(*u.Text); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.choices {
		if m.choices[i].ID != choiceID {
			continue
		}
		if u.Text != nil {
			m.choices[i].Text = *u.Text
		}
		if u.TargetPageID != nil {
			m.choices[i].TargetPageID = *u.TargetPageID
		}
		if u.Condition != nil {
			m.choices[i].Condition = *u.Condition
		}
		c := m.choices[i]
		return &c, nil
	}
	return nil, apperrors.New(apperrors.ErrCodeChoiceNotFound, "choice %q not found", choiceID)
}

func (m *MemoryStore) DeleteChoice(ctx context.Context, choiceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.choices[:0]
	found := false
	for _, c := range m.choices {
		if c.ID == choiceID {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	m.choices = kept
	if !found {
		return apperrors.New(apperrors.ErrCodeChoiceNotFound, "choice %q not found", choiceID)
	}
	return nil
}

func (m *MemoryStore) GetParty(ctx context.Context, partyID string) (*party.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.parties {
		if m.parties[i].ID == partyID {
			return cloneParty(m.parties[i]), nil
		}
	}
	return nil, apperrors.New(apperrors.ErrCodePartyNotFound, "party %q not found", partyID)
}

func (m *MemoryStore) CreateParty(ctx context.Context, userID, storyID string) (*party.Party, error) {
	if _, err := m.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := party.Party{
		ID:        uuid.NewString(),
		UserID:    userID,
		StoryID:   storyID,
		StartDate: time.Now().UTC(),
	}
	m.parties = append(m.parties, p)
	return cloneParty(p), nil
}

func (m *MemoryStore) UpdateParty(ctx context.Context, partyID string, u party.Update) (*party.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.parties {
		if m.parties[i].ID != partyID {
			continue
		}
		m.parties[i].Path = append(m.parties[i].Path, u.AppendPath...)
		if u.EndDate != nil && m.parties[i].EndDate == nil {
			m.parties[i].EndDate = u.EndDate
		}
		if u.EndingPageID != "" && m.parties[i].EndingPageID == "" {
			m.parties[i].EndingPageID = u.EndingPageID
		}
		return cloneParty(m.parties[i]), nil
	}
	return nil, apperrors.New(apperrors.ErrCodePartyNotFound, "party %q not found", partyID)
}

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

func applyPageUpdate(p *story.Page, u PageUpdate) {
	if u.Content != nil {
		p.Content = *u.Content
	}
	if u.IsEnding != nil {
		p.IsEnding = *u.IsEnding
	}
	if u.EndingLabel != nil {
		p.EndingLabel = *u.EndingLabel
	}
	if u.Illustration != nil {
		p.Illustration = *u.Illustration
	}
}

func cloneParty(p party.Party) *party.Party {
	out := p
	out.Path = append([]string(nil), p.Path...)
	return &out
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
