package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fableloom/fableloom/pkg/engine"
	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/store"
	"github.com/fableloom/fableloom/pkg/story"
)

type createStoryRequest struct {
	Title string `json:"title"`
}

type updateStoryRequest struct {
	Title  *string `json:"title,omitempty"`
	Status *string `json:"status,omitempty"`
}

func (s *Server) listStories(w http.ResponseWriter, r *http.Request) {
	stories, err := s.store.ListStories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": stories})
}

func (s *Server) createStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.store.CreateStory(r.Context(), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) getStory(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStory(r.Context(), chi.URLParam(r, "storyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) updateStory(w http.ResponseWriter, r *http.Request) {
	var req updateStoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Status != nil {
		if err := apperrors.ValidateStoryStatus(*req.Status); err != nil {
			writeError(w, err)
			return
		}
	}
	st, err := s.store.UpdateStory(r.Context(), chi.URLParam(r, "storyID"), store.StoryUpdate{
		Title:  req.Title,
		Status: req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) deleteStory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteStory(r.Context(), chi.URLParam(r, "storyID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// graphEntry is one page in the reader-order report.
type graphEntry struct {
	PageID string `json:"pageId"`
	Parent string `json:"parent,omitempty"`
	Orphan bool   `json:"orphan,omitempty"`
}

// graphEdge is one back edge in the report.
type graphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// graphReport is the resolution report for a story. Diagnostics ride along
// as annotations; a structurally irregular story still reports 200.
type graphReport struct {
	Root        string             `json:"root,omitempty"`
	Order       []graphEntry       `json:"order"`
	BackEdges   []graphEdge        `json:"backEdges"`
	Diagnostics []story.Diagnostic `json:"diagnostics"`
}

func (s *Server) storyGraph(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	file, err := s.runner.Snapshot(r.Context(), storyID)
	if err != nil {
		writeError(w, err)
		return
	}
	res := s.runner.Resolve(file)

	report := graphReport{
		Root:        res.RootID(),
		Order:       make([]graphEntry, 0, len(res.Order)),
		BackEdges:   make([]graphEdge, 0, len(res.BackEdges)),
		Diagnostics: res.Diagnostics,
	}
	if report.Diagnostics == nil {
		report.Diagnostics = []story.Diagnostic{}
	}
	for _, e := range res.Order {
		report.Order = append(report.Order, graphEntry{
			PageID: e.Page.ID,
			Parent: res.Parent[e.Page.ID],
			Orphan: e.Orphan,
		})
	}
	for key, isBack := range res.BackEdges {
		if isBack {
			report.BackEdges = append(report.BackEdges, graphEdge{Source: key.Source, Target: key.Target})
		}
	}
	sortEdges(report.BackEdges)

	writeJSON(w, http.StatusOK, report)
}

// sortEdges orders edges by (source, target) so map iteration order never
// leaks into responses.
func sortEdges(edges []graphEdge) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0; j-- {
			a, b := edges[j-1], edges[j]
			if a.Source < b.Source || (a.Source == b.Source && a.Target <= b.Target) {
				break
			}
			edges[j-1], edges[j] = b, a
		}
	}
}

func (s *Server) storyLayout(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	file, err := s.runner.Snapshot(r.Context(), storyID)
	if err != nil {
		writeError(w, err)
		return
	}
	res := s.runner.Resolve(file)
	lay, err := s.runner.ComputeLayout(r.Context(), file, res, engine.Options{
		StoryID: storyID,
		Layout:  s.cfg.LayoutOptions(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lay)
}

var mapContentTypes = map[string]string{
	engine.FormatDOT:  "text/vnd.graphviz",
	engine.FormatSVG:  "image/svg+xml",
	engine.FormatPNG:  "image/png",
	engine.FormatPDF:  "application/pdf",
	engine.FormatJSON: "application/json",
}

func (s *Server) storyMap(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyID")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = engine.FormatSVG
	}

	result, err := s.runner.Execute(r.Context(), engine.Options{
		StoryID:      storyID,
		Layout:       s.cfg.LayoutOptions(),
		Formats:      []string{format},
		Detailed:     r.URL.Query().Get("detailed") == "true",
		ChoiceLabels: r.URL.Query().Get("labels") == "true",
		Refresh:      r.URL.Query().Get("refresh") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", mapContentTypes[format])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Artifacts[format])
}

// invalidateSessions drops live reading sessions for a story after an edit
// so the next request resolves against fresh content. Each entry's session
// lock is taken before the session is inspected, so invalidation never races
// an in-flight request on the same party.
func (s *Server) invalidateSessions(storyID string) {
	s.mu.Lock()
	entries := make(map[string]*liveEntry, len(s.live))
	for id, e := range s.live {
		entries[id] = e
	}
	s.mu.Unlock()

	for id, e := range entries {
		e.mu.Lock()
		stale := e.sess != nil && e.sess.StoryID() == storyID
		e.mu.Unlock()
		if stale {
			s.dropEntry(id, e)
		}
	}
}
