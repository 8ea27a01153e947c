// Package editor provides the authoring surface for story graphs.
//
// An Editor holds an author's working copy of one story: pages and choices
// loaded from the store, mutated locally, and saved back per entity. Local
// edits are optimistic: they apply immediately, mark the entity dirty, and
// bump a per-entity edit sequence. A save snapshots the entity, writes it
// through the store without holding the editor lock, and applies the store's
// response only if no newer local edit happened while the request was in
// flight. Stale responses never overwrite newer drafts; failed saves leave
// the entity dirty so it can be retried.
package editor

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/store"
	"github.com/fableloom/fableloom/pkg/story"
)

// pageDraft is the local working copy of a page.
type pageDraft struct {
	page  story.Page
	dirty bool
	seq   uint64
}

// choiceDraft is the local working copy of a choice.
type choiceDraft struct {
	choice story.Choice
	dirty  bool
	seq    uint64
}

// Editor is the mutable working copy of one story's graph.
// All methods are safe for concurrent use.
type Editor struct {
	mu      sync.Mutex
	store   store.Store
	logger  *log.Logger
	storyID string

	pages       map[string]*pageDraft
	choices     map[string]*choiceDraft
	pageOrder   []string
	choiceOrder []string
}

// New creates an editor bound to a story in the store.
func New(st store.Store, storyID string, logger *log.Logger) *Editor {
	if logger == nil {
		logger = log.Default()
	}
	return &Editor{
		store:   st,
		logger:  logger,
		storyID: storyID,
		pages:   make(map[string]*pageDraft),
		choices: make(map[string]*choiceDraft),
	}
}

// Load pulls the story's pages and choices from the store, replacing any
// local drafts. All loaded entities start clean.
func (e *Editor) Load(ctx context.Context) error {
	pages, err := e.store.ListPages(ctx, e.storyID)
	if err != nil {
		return err
	}
	var choices []story.Choice
	for _, p := range pages {
		cs, err := e.store.ListChoicesForPage(ctx, p.ID)
		if err != nil {
			return err
		}
		choices = append(choices, cs...)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pages = make(map[string]*pageDraft, len(pages))
	e.choices = make(map[string]*choiceDraft, len(choices))
	e.pageOrder = e.pageOrder[:0]
	e.choiceOrder = e.choiceOrder[:0]
	for _, p := range pages {
		e.pages[p.ID] = &pageDraft{page: p}
		e.pageOrder = append(e.pageOrder, p.ID)
	}
	for _, c := range choices {
		e.choices[c.ID] = &choiceDraft{choice: c}
		e.choiceOrder = append(e.choiceOrder, c.ID)
	}
	return nil
}

// CreatePage creates a page in the store and registers it locally.
// Empty content is allowed; a page under construction is legal.
func (e *Editor) CreatePage(ctx context.Context, content string) (*story.Page, error) {
	if err := apperrors.ValidatePageContent(content); err != nil {
		return nil, err
	}
	p, err := e.store.CreatePage(ctx, e.storyID, store.PageUpdate{Content: store.String(content)})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pages[p.ID] = &pageDraft{page: *p}
	e.pageOrder = append(e.pageOrder, p.ID)
	cp := *p
	return &cp, nil
}

// UpdateContent replaces a page's content locally and marks it dirty.
func (e *Editor) UpdateContent(pageID, content string) error {
	if err := apperrors.ValidatePageContent(content); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.pages[pageID]
	if !ok {
		return apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}
	d.page.Content = content
	d.dirty = true
	d.seq++
	return nil
}

// SetEnding flags a page as an ending (or clears the flag) locally.
// The label is kept only while the page is an ending.
func (e *Editor) SetEnding(pageID string, isEnding bool, label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.pages[pageID]
	if !ok {
		return apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}
	d.page.IsEnding = isEnding
	if isEnding {
		d.page.EndingLabel = label
	} else {
		d.page.EndingLabel = ""
	}
	d.dirty = true
	d.seq++
	return nil
}

// CreateChoice creates a choice in the store and registers it locally.
// The choice starts unlinked; choice text is required.
func (e *Editor) CreateChoice(ctx context.Context, pageID, text string) (*story.Choice, error) {
	if err := apperrors.ValidateChoiceText(text); err != nil {
		return nil, err
	}
	e.mu.Lock()
	if _, ok := e.pages[pageID]; !ok {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}
	e.mu.Unlock()

	c, err := e.store.CreateChoice(ctx, pageID, text, "")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.choices[c.ID] = &choiceDraft{choice: *c}
	e.choiceOrder = append(e.choiceOrder, c.ID)
	cp := *c
	return &cp, nil
}

// UpdateChoiceText replaces a choice's text locally and marks it dirty.
func (e *Editor) UpdateChoiceText(choiceID, text string) error {
	if err := apperrors.ValidateChoiceText(text); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.choices[choiceID]
	if !ok {
		return apperrors.New(apperrors.ErrCodeChoiceNotFound, "choice %q not found", choiceID)
	}
	d.choice.Text = text
	d.dirty = true
	d.seq++
	return nil
}

// LinkChoice points a choice at a target page locally. An empty target
// unlinks the choice, returning it to the undeveloped state.
func (e *Editor) LinkChoice(choiceID, targetPageID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.choices[choiceID]
	if !ok {
		return apperrors.New(apperrors.ErrCodeChoiceNotFound, "choice %q not found", choiceID)
	}
	if targetPageID != "" {
		if _, ok := e.pages[targetPageID]; !ok {
			return apperrors.New(apperrors.ErrCodePageNotFound, "target page %q not found", targetPageID)
		}
	}
	d.choice.TargetPageID = targetPageID
	d.dirty = true
	d.seq++
	return nil
}

// DeleteChoice removes a choice from the store and the local drafts.
func (e *Editor) DeleteChoice(ctx context.Context, choiceID string) error {
	if err := e.store.DeleteChoice(ctx, choiceID); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.choices, choiceID)
	e.choiceOrder = removeID(e.choiceOrder, choiceID)
	return nil
}

// DeletePage removes a page from the store and the local drafts, cascading
// the page's own choices. Choices elsewhere that targeted the page keep
// their dangling target and surface as missing-target diagnostics.
func (e *Editor) DeletePage(ctx context.Context, pageID string) error {
	if err := e.store.DeletePage(ctx, pageID); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pages, pageID)
	e.pageOrder = removeID(e.pageOrder, pageID)
	for id, d := range e.choices {
		if d.choice.PageID == pageID {
			delete(e.choices, id)
			e.choiceOrder = removeID(e.choiceOrder, id)
		}
	}
	return nil
}

// SavePage writes a dirty page draft through the store. The response is
// applied only if no newer local edit happened while the save was in
// flight; a failed save leaves the draft dirty for retry.
func (e *Editor) SavePage(ctx context.Context, pageID string) error {
	e.mu.Lock()
	d, ok := e.pages[pageID]
	if !ok {
		e.mu.Unlock()
		return apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}
	if !d.dirty {
		e.mu.Unlock()
		return nil
	}
	snapshot := d.page
	seq := d.seq
	e.mu.Unlock()

	saved, err := e.store.UpdatePage(ctx, pageID, store.PageUpdate{
		Content:      store.String(snapshot.Content),
		IsEnding:     store.Bool(snapshot.IsEnding),
		EndingLabel:  store.String(snapshot.EndingLabel),
		Illustration: store.String(snapshot.Illustration),
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok = e.pages[pageID]
	if !ok {
		// Deleted while saving; nothing to apply.
		return nil
	}
	if d.seq != seq {
		e.logger.Debug("discarding stale save response", "page", pageID, "saved_seq", seq, "current_seq", d.seq)
		return nil
	}
	d.page = *saved
	d.dirty = false
	return nil
}

// SaveChoice writes a dirty choice draft through the store with the same
// stale-response guard as SavePage.
func (e *Editor) SaveChoice(ctx context.Context, choiceID string) error {
	e.mu.Lock()
	d, ok := e.choices[choiceID]
	if !ok {
		e.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeChoiceNotFound, "choice %q not found", choiceID)
	}
	if !d.dirty {
		e.mu.Unlock()
		return nil
	}
	snapshot := d.choice
	seq := d.seq
	e.mu.Unlock()

	saved, err := e.store.UpdateChoice(ctx, choiceID, store.ChoiceUpdate{
		Text:         store.String(snapshot.Text),
		TargetPageID: store.String(snapshot.TargetPageID),
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok = e.choices[choiceID]
	if !ok {
		return nil
	}
	if d.seq != seq {
		e.logger.Debug("discarding stale save response", "choice", choiceID, "saved_seq", seq, "current_seq", d.seq)
		return nil
	}
	d.choice = *saved
	d.dirty = false
	return nil
}

// SaveAll saves every dirty page and choice, stopping at the first failure.
func (e *Editor) SaveAll(ctx context.Context) error {
	for _, id := range e.DirtyPages() {
		if err := e.SavePage(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range e.DirtyChoices() {
		if err := e.SaveChoice(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Page returns the local draft of a page.
func (e *Editor) Page(pageID string) (*story.Page, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.pages[pageID]
	if !ok {
		return nil, false
	}
	cp := d.page
	return &cp, true
}

// Choice returns the local draft of a choice.
func (e *Editor) Choice(choiceID string) (*story.Choice, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.choices[choiceID]
	if !ok {
		return nil, false
	}
	cp := d.choice
	return &cp, true
}

// IsDirty reports whether an entity has unsaved local edits.
func (e *Editor) IsDirty(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.pages[id]; ok {
		return d.dirty
	}
	if d, ok := e.choices[id]; ok {
		return d.dirty
	}
	return false
}

// DirtyPages lists pages with unsaved edits in creation order.
func (e *Editor) DirtyPages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, id := range e.pageOrder {
		if d, ok := e.pages[id]; ok && d.dirty {
			out = append(out, id)
		}
	}
	return out
}

// DirtyChoices lists choices with unsaved edits in creation order.
func (e *Editor) DirtyChoices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, id := range e.choiceOrder {
		if d, ok := e.choices[id]; ok && d.dirty {
			out = append(out, id)
		}
	}
	return out
}

// File assembles the current drafts into a story file, in creation order.
// The engine can resolve and lay out unsaved drafts through this.
func (e *Editor) File(s story.Story) story.File {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := story.File{Story: s}
	for _, id := range e.pageOrder {
		if d, ok := e.pages[id]; ok {
			f.Pages = append(f.Pages, d.page)
		}
	}
	for _, id := range e.choiceOrder {
		if d, ok := e.choices[id]; ok {
			f.Choices = append(f.Choices, d.choice)
		}
	}
	return f
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
