package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/store"
)

type pageRequest struct {
	Content      *string `json:"content,omitempty"`
	IsEnding     *bool   `json:"isEnding,omitempty"`
	EndingLabel  *string `json:"endingLabel,omitempty"`
	Illustration *string `json:"illustration,omitempty"`
}

func (p pageRequest) update() store.PageUpdate {
	return store.PageUpdate{
		Content:      p.Content,
		IsEnding:     p.IsEnding,
		EndingLabel:  p.EndingLabel,
		Illustration: p.Illustration,
	}
}

type choiceRequest struct {
	Text         *string `json:"text,omitempty"`
	TargetPageID *string `json:"targetPageId,omitempty"`
	Condition    *string `json:"condition,omitempty"`
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	if _, err := s.store.GetStory(r.Context(), storyID); err != nil {
		writeError(w, err)
		return
	}
	pages, err := s.store.ListPages(r.Context(), storyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) createPage(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	var req pageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Content != nil {
		if err := apperrors.ValidatePageContent(*req.Content); err != nil {
			writeError(w, err)
			return
		}
	}
	p, err := s.store.CreatePage(r.Context(), storyID, req.update())
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateSessions(storyID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPage(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Content != nil {
		if err := apperrors.ValidatePageContent(*req.Content); err != nil {
			writeError(w, err)
			return
		}
	}
	p, err := s.store.UpdatePage(r.Context(), chi.URLParam(r, "pageID"), req.update())
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateSessions(p.StoryID)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	p, err := s.store.GetPage(r.Context(), pageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeletePage(r.Context(), pageID); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateSessions(p.StoryID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listChoices(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	if _, err := s.store.GetPage(r.Context(), pageID); err != nil {
		writeError(w, err)
		return
	}
	choices, err := s.store.ListChoicesForPage(r.Context(), pageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"choices": choices})
}

func (s *Server) createChoice(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	var req choiceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	text := ""
	if req.Text != nil {
		text = *req.Text
	}
	target := ""
	if req.TargetPageID != nil {
		target = *req.TargetPageID
	}
	c, err := s.store.CreateChoice(r.Context(), pageID, text, target)
	if err != nil {
		writeError(w, err)
		return
	}
	if p, err := s.store.GetPage(r.Context(), pageID); err == nil {
		s.invalidateSessions(p.StoryID)
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateChoice(w http.ResponseWriter, r *http.Request) {
	var req choiceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.store.UpdateChoice(r.Context(), chi.URLParam(r, "choiceID"), store.ChoiceUpdate{
		Text:         req.Text,
		TargetPageID: req.TargetPageID,
		Condition:    req.Condition,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if p, err := s.store.GetPage(r.Context(), c.PageID); err == nil {
		s.invalidateSessions(p.StoryID)
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteChoice(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteChoice(r.Context(), chi.URLParam(r, "choiceID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
