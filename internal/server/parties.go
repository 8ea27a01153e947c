package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/party"
	"github.com/fableloom/fableloom/pkg/session"
	"github.com/fableloom/fableloom/pkg/story"
)

type createPartyRequest struct {
	UserID  string `json:"userId"`
	StoryID string `json:"storyId"`
}

type chooseRequest struct {
	ChoiceID string `json:"choiceId"`
}

// partyView is the response shape shared by every reading endpoint: the
// persisted party plus the session view a reader UI renders from.
type partyView struct {
	Party     *party.Party    `json:"party"`
	State     string          `json:"state"`
	Page      *story.Page     `json:"page,omitempty"`
	Choices   []*story.Choice `json:"choices"`
	Progress  int             `json:"progress"`
	CanGoBack bool            `json:"canGoBack"`
}

func viewOf(sess *party.Session) partyView {
	choices := sess.Choices()
	if choices == nil {
		choices = []*story.Choice{}
	}
	return partyView{
		Party:     sess.Party(),
		State:     sess.State().String(),
		Page:      sess.Current(),
		Choices:   choices,
		Progress:  sess.Progress(),
		CanGoBack: sess.CanGoBack(),
	}
}

// liveEntry pairs one party's in-process session with the lock that
// serializes request access to it. A Session assumes a single goroutine;
// the server enforces that per party here.
type liveEntry struct {
	mu   sync.Mutex
	sess *party.Session // nil until the first locked request builds it
}

func (s *Server) createParty(w http.ResponseWriter, r *http.Request) {
	var req createPartyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := apperrors.ValidateID(req.UserID); err != nil {
		writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "userId is required"))
		return
	}
	if _, err := s.store.GetStory(r.Context(), req.StoryID); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.store.CreateParty(r.Context(), req.UserID, req.StoryID)
	if err != nil {
		writeError(w, err)
		return
	}

	e := s.entryFor(p.ID)
	e.mu.Lock()
	sess, err := s.buildSession(r.Context(), p)
	if err != nil {
		e.mu.Unlock()
		s.dropEntry(p.ID, e)
		writeError(w, err)
		return
	}
	e.sess = sess
	view := viewOf(sess)
	e.mu.Unlock()

	binding := session.NewBinding(req.UserID, p.ID, req.StoryID, session.DefaultTTL)
	if err := s.sessions.Set(r.Context(), binding); err != nil {
		s.logger.Warn("session binding not persisted", "party", p.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) getParty(w http.ResponseWriter, r *http.Request) {
	var view partyView
	err := s.withSession(r, func(sess *party.Session) error {
		view = viewOf(sess)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) partyProgress(w http.ResponseWriter, r *http.Request) {
	var out map[string]any
	err := s.withSession(r, func(sess *party.Session) error {
		p := sess.Party()
		out = map[string]any{
			"progress":     sess.Progress(),
			"completed":    p.Ended(),
			"endingPageId": p.EndingPageID,
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) partyChoose(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var view partyView
	err := s.withSession(r, func(sess *party.Session) error {
		if err := sess.SelectChoice(r.Context(), req.ChoiceID); err != nil {
			return err
		}
		view = viewOf(sess)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) partyBack(w http.ResponseWriter, r *http.Request) {
	var view partyView
	err := s.withSession(r, func(sess *party.Session) error {
		if err := sess.GoBack(); err != nil {
			return err
		}
		view = viewOf(sess)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) partyRestart(w http.ResponseWriter, r *http.Request) {
	var view partyView
	err := s.withSession(r, func(sess *party.Session) error {
		if err := sess.Restart(r.Context()); err != nil {
			return err
		}
		view = viewOf(sess)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// withSession runs fn while holding the routed party's session lock, so one
// party's session only ever sees one request at a time. When this process
// has no session yet, one is rebuilt from the persisted party first. A
// rebuilt session resumes on the last visited page; its undo history starts
// over, since that history is in-memory only.
func (s *Server) withSession(r *http.Request, fn func(*party.Session) error) error {
	partyID := chi.URLParam(r, "partyID")
	e := s.entryFor(partyID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		sess, err := s.rebuildSession(r.Context(), partyID)
		if err != nil {
			s.dropEntry(partyID, e)
			return err
		}
		e.sess = sess
	}
	return fn(e.sess)
}

// entryFor returns the live map entry for a party, creating an empty one so
// the per-party lock exists before any session does.
func (s *Server) entryFor(partyID string) *liveEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live[partyID]
	if !ok {
		e = &liveEntry{}
		s.live[partyID] = e
	}
	return e
}

// dropEntry removes an entry unless the map already holds a newer one for
// the same party.
func (s *Server) dropEntry(partyID string, e *liveEntry) {
	s.mu.Lock()
	if s.live[partyID] == e {
		delete(s.live, partyID)
	}
	s.mu.Unlock()
}

func (s *Server) rebuildSession(ctx context.Context, partyID string) (*party.Session, error) {
	p, err := s.store.GetParty(ctx, partyID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodePartyNotFound) {
			// the binding outlived its party
			_ = s.sessions.Delete(ctx, session.BindingID(partyID))
		}
		return nil, err
	}
	s.refreshBinding(ctx, p)
	return s.buildSession(ctx, p)
}

// refreshBinding re-arms the reader's binding whenever a party comes back
// into process: activity slides the expiry window, and a party read on an
// instance that never saw the binding gets a fresh one.
func (s *Server) refreshBinding(ctx context.Context, p *party.Party) {
	b, err := s.sessions.Get(ctx, session.BindingID(p.ID))
	if err != nil {
		s.logger.Warn("session binding lookup failed", "party", p.ID, "error", err)
		return
	}
	if b == nil {
		b = session.NewBinding(p.UserID, p.ID, p.StoryID, session.DefaultTTL)
	} else {
		b.ExpiresAt = time.Now().Add(session.DefaultTTL)
	}
	if err := s.sessions.Set(ctx, b); err != nil {
		s.logger.Warn("session binding not persisted", "party", p.ID, "error", err)
	}
}

// buildSession constructs a session over a fresh graph snapshot.
func (s *Server) buildSession(ctx context.Context, p *party.Party) (*party.Session, error) {
	file, err := s.runner.Snapshot(ctx, p.StoryID)
	if err != nil {
		return nil, err
	}
	return party.NewSession(ctx, p, file.Graph(), s.store, s.logger)
}
