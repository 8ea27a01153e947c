// Package engine provides the core story pipeline for Fableloom.
//
// This package implements the complete snapshot → resolve → layout → render
// pipeline used by CLI, API, and worker components. Centralizing it keeps
// behavior consistent across all entry points and avoids duplicating the
// caching logic.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Snapshot: Load a story's pages and choices from the store
//  2. Resolve: Find the root, classify return edges, order pages
//  3. Layout: Compute tree-map positions for the resolved graph
//  4. Render: Generate story map output (DOT, SVG, PNG, PDF, JSON)
//
// Each stage can be run independently or as part of the complete pipeline.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := engine.NewRunner(st, cache, nil, logger)
//	opts := engine.Options{
//	    StoryID: "story-1",
//	    Formats: []string{"svg"},
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svg := result.Artifacts["svg"]
//
// Run individual stages:
//
//	file, err := runner.Snapshot(ctx, storyID)
//	res := runner.Resolve(file)
//	lay, err := runner.ComputeLayout(ctx, file, res, opts)
package engine

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/fableloom/fableloom/pkg/cache"
	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/layout"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

// Format constants for output formats.
const (
	FormatDOT  = "dot"
	FormatSVG  = "svg"
	FormatPNG  = "png"
	FormatPDF  = "pdf"
	FormatJSON = "json"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatDOT:  true,
	FormatSVG:  true,
	FormatPNG:  true,
	FormatPDF:  true,
	FormatJSON: true,
}

// DefaultPNGScale is the raster scale used for PNG output.
const DefaultPNGScale = 2.0

// Options configures a pipeline run.
type Options struct {
	// StoryID selects the story to process.
	StoryID string

	// Layout controls tree-map placement. Zero values use the defaults.
	Layout layout.Options

	// Formats selects the render outputs. Defaults to ["svg"].
	Formats []string

	// Detailed includes content excerpts and ending labels in the map.
	Detailed bool

	// ChoiceLabels puts choice text on map edges.
	ChoiceLabels bool

	// Scale is the PNG raster scale. Zero means DefaultPNGScale.
	Scale float64

	// Refresh bypasses cached layouts and artifacts.
	Refresh bool

	// Logger overrides the runner's logger for this run.
	Logger *log.Logger
}

// ValidateAndSetDefaults checks options and fills in defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.StoryID == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "story ID is required")
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatSVG}
	}
	for _, f := range o.Formats {
		if !ValidFormats[f] {
			return apperrors.New(apperrors.ErrCodeInvalidFormat, "unsupported format %q", f)
		}
	}
	if o.Scale == 0 {
		o.Scale = DefaultPNGScale
	}
	return nil
}

// LayoutKeyOpts derives the cache key options from the layout options.
func (o *Options) LayoutKeyOpts() cache.LayoutKeyOpts {
	return cache.LayoutKeyOpts{
		Height:        o.Layout.Height,
		SiblingSpread: o.Layout.SiblingSpread,
		MinRowGap:     o.Layout.MinRowGap,
		MaxRowGap:     o.Layout.MaxRowGap,
	}
}

// ArtifactKeyOpts derives the cache key options for a render format.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	theme := ""
	if o.Detailed {
		theme = "detailed"
	}
	if o.ChoiceLabels {
		theme += "+labels"
	}
	return cache.ArtifactKeyOpts{Format: format, Theme: theme}
}

// Stats captures per-stage timings and graph size for a pipeline run.
type Stats struct {
	SnapshotTime time.Duration `json:"snapshotTime"`
	ResolveTime  time.Duration `json:"resolveTime"`
	LayoutTime   time.Duration `json:"layoutTime"`
	RenderTime   time.Duration `json:"renderTime"`
	PageCount    int           `json:"pageCount"`
	ChoiceCount  int           `json:"choiceCount"`
}

// CacheInfo reports which stages were served from cache.
type CacheInfo struct {
	LayoutHit bool `json:"layoutHit"`
	RenderHit bool `json:"renderHit"`
}

// Result is the output of a complete pipeline run.
type Result struct {
	File         story.File
	Resolution   traverse.Resolution
	SnapshotHash string
	Layout       layout.Layout
	Artifacts    map[string][]byte
	Stats        Stats
	CacheInfo    CacheInfo
}
