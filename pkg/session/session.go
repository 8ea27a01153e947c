// Package session provides live reader-session management.
//
// A session binds a reader to the party they are currently playing, so a
// client can resume a read-through without re-sending identifiers on every
// request. Sessions expire; the party path log in the store is the durable
// record, the session is only the active handle.
//
// Storage backends:
//   - memory: in-memory storage for development/testing
//   - redis: Redis-backed storage for production multi-instance deployments
//   - file: file-based storage for CLI applications
//
// # Usage
//
// Create a session store:
//
//	// Development
//	store := session.NewMemoryStore()
//
//	// Production
//	store, err := session.NewRedisStore(ctx, session.RedisConfig{
//	    Addr: "localhost:6379",
//	})
//
//	// CLI
//	store, err := session.NewFileStore("") // uses ~/.config/fableloom/sessions/
//
// The HTTP server keys each party's binding deterministically so any
// instance can find it from the party id alone:
//
//	binding := session.NewBinding(userID, partyID, storyID, session.DefaultTTL)
//	store.Set(ctx, binding)
//
//	binding, err := store.Get(ctx, session.BindingID(partyID))
//	if err != nil {
//	    return err
//	}
//	if binding == nil {
//	    // no binding, or it expired
//	}
//
// The play command instead keeps one file-backed session per machine (see
// [CLIStore]) and snapshots the visit log into it, so the next play of the
// same story resumes where the reader left off.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// Sentinel errors for session operations.
var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when a session has exceeded its TTL.
	ErrExpired = errors.New("expired")
)

// Session binds a reader to their active party.
type Session struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	PartyID string `json:"party_id"`
	StoryID string `json:"story_id"`

	// Path snapshots the party's visit log for sessions that must rebuild
	// reading state without a server-side party record, such as the CLI's
	// file-backed session. Server bindings leave it empty; the store's
	// party record is authoritative there.
	Path []string `json:"path,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a session by ID.
	// Returns nil, nil if the session doesn't exist or has expired.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Set stores a session.
	Set(ctx context.Context, session *Session) error

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error

	// Cleanup removes expired sessions (optional, may be no-op for Redis).
	Cleanup(ctx context.Context) error
}

// DefaultTTL is the default session duration.
const DefaultTTL = 24 * time.Hour

// GenerateID creates a cryptographically secure random session ID.
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// New creates a new session binding a reader to a party, under a random id.
func New(userID, partyID, storyID string, ttl time.Duration) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:        id,
		UserID:    userID,
		PartyID:   partyID,
		StoryID:   storyID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// BindingID is the deterministic store key for a party's server-side
// binding. Party ids are unique, so there is one binding per party.
func BindingID(partyID string) string {
	return "party-" + partyID
}

// NewBinding creates the server-side binding for a party under its
// deterministic key, so it can be found again from the party id alone.
func NewBinding(userID, partyID, storyID string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        BindingID(partyID),
		UserID:    userID,
		PartyID:   partyID,
		StoryID:   storyID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}
