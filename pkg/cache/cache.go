// Package cache provides content-addressed caching for derived story data.
//
// Three kinds of values are cached, one per pipeline stage: resolved
// snapshots (graph + root + order), computed layouts, and rendered map
// artifacts (DOT, SVG, PNG). Keys are derived from content hashes so a
// story edit naturally invalidates everything downstream of it.
package cache

import (
	"context"
	"time"
)

// Default TTLs per stage. Snapshots are cheapest to rebuild and expire
// first; rendered artifacts are the most expensive and live longest.
const (
	TTLSnapshot = 15 * time.Minute
	TTLLayout   = 1 * time.Hour
	TTLArtifact = 24 * time.Hour
)

// Cache stores opaque byte values under string keys with a TTL.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A ttl of zero means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// LayoutKeyOpts captures the layout parameters that affect placement.
// Two layouts with the same snapshot hash but different options must
// not share a cache entry.
type LayoutKeyOpts struct {
	Height        float64 `json:"height"`
	SiblingSpread float64 `json:"sibling_spread"`
	MinRowGap     float64 `json:"min_row_gap"`
	MaxRowGap     float64 `json:"max_row_gap"`
}

// ArtifactKeyOpts captures the render parameters that affect output bytes.
type ArtifactKeyOpts struct {
	Format string `json:"format"`
	Theme  string `json:"theme,omitempty"`
}

// Keyer generates cache keys for each pipeline stage.
type Keyer interface {
	// SnapshotKey keys a resolved snapshot by story and content hash.
	SnapshotKey(storyID, contentHash string) string

	// LayoutKey keys a computed layout by snapshot hash and layout options.
	LayoutKey(snapshotHash string, opts LayoutKeyOpts) string

	// ArtifactKey keys a rendered artifact by layout hash and render options.
	ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// SnapshotKey generates a key for a resolved snapshot.
func (k *DefaultKeyer) SnapshotKey(storyID, contentHash string) string {
	return hashKey("snapshot", storyID, contentHash)
}

// LayoutKey generates a key for a computed layout.
func (k *DefaultKeyer) LayoutKey(snapshotHash string, opts LayoutKeyOpts) string {
	return hashKey("layout", snapshotHash, opts)
}

// ArtifactKey generates a key for a rendered artifact.
func (k *DefaultKeyer) ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", layoutHash, opts)
}
