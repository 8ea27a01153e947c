package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fableloom/fableloom/pkg/cache"
	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/observability"
	"github.com/fableloom/fableloom/pkg/render"
	"github.com/fableloom/fableloom/pkg/store"
	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/layout"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API can use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the store, cache, and logger - it
// doesn't hold pipeline results. Multiple goroutines can safely use the
// same Runner with different options.
type Runner struct {
	Store  store.Store
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given store, cache, and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(st store.Store, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Store:  st,
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete snapshot → resolve → layout → render pipeline
// with caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := r.runLogger(opts)

	result := &Result{
		Artifacts: make(map[string][]byte),
	}

	// Stage 1: Snapshot
	snapStart := time.Now()
	file, err := r.Snapshot(ctx, opts.StoryID)
	if err != nil {
		return nil, err
	}
	result.File = file
	result.Stats.SnapshotTime = time.Since(snapStart)
	result.Stats.PageCount = len(file.Pages)
	result.Stats.ChoiceCount = len(file.Choices)
	result.SnapshotHash = SnapshotHash(file)

	logger.Info("loaded story snapshot",
		"story", opts.StoryID,
		"pages", len(file.Pages),
		"choices", len(file.Choices),
		"duration", result.Stats.SnapshotTime)

	// Stage 2: Resolve
	resolveStart := time.Now()
	g := file.Graph()
	res := traverse.Resolve(g, logger)
	result.Resolution = res
	result.Stats.ResolveTime = time.Since(resolveStart)

	observability.Engine().OnResolveComplete(ctx, opts.StoryID, res.RootID(),
		len(res.BackEdges), len(res.Orphans()), result.Stats.ResolveTime)
	logger.Info("resolved story graph",
		"root", res.RootID(),
		"back_edges", len(res.BackEdges),
		"diagnostics", len(res.Diagnostics),
		"duration", result.Stats.ResolveTime)

	// Stage 3: Layout
	layoutStart := time.Now()
	lay, layoutHit, err := r.ComputeLayoutWithCacheInfo(ctx, g, res, result.SnapshotHash, opts)
	if err != nil {
		return nil, err
	}
	result.Layout = lay
	result.Stats.LayoutTime = time.Since(layoutStart)
	result.CacheInfo.LayoutHit = layoutHit

	logger.Info("computed layout",
		"positions", len(lay.Positions),
		"rows", lay.MaxDepth+1,
		"duration", result.Stats.LayoutTime)

	// Stage 4: Render
	renderStart := time.Now()
	artifacts, renderHit, err := r.RenderWithCacheInfo(ctx, g, res, lay, opts)
	if err != nil {
		return nil, err
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(renderStart)
	result.CacheInfo.RenderHit = renderHit

	logger.Info("rendered story map",
		"formats", opts.Formats,
		"duration", result.Stats.RenderTime)

	return result, nil
}

// Snapshot loads a story's pages and choices from the store.
// Persistence failures are retried with backoff before giving up.
func (r *Runner) Snapshot(ctx context.Context, storyID string) (story.File, error) {
	observability.Engine().OnSnapshotStart(ctx, storyID)
	start := time.Now()

	var file story.File
	err := cache.RetryWithBackoff(ctx, func() error {
		st, err := r.Store.GetStory(ctx, storyID)
		if err != nil {
			return retryPersistence(err)
		}
		pages, err := r.Store.ListPages(ctx, storyID)
		if err != nil {
			return retryPersistence(err)
		}
		choices := make([]story.Choice, 0, len(pages))
		for _, p := range pages {
			cs, err := r.Store.ListChoicesForPage(ctx, p.ID)
			if err != nil {
				return retryPersistence(err)
			}
			choices = append(choices, cs...)
		}
		file = story.File{Story: *st, Pages: pages, Choices: choices}
		return nil
	})

	observability.Engine().OnSnapshotComplete(ctx, storyID,
		len(file.Pages), len(file.Choices), time.Since(start), err)
	if err != nil {
		return story.File{}, err
	}
	return file, nil
}

// retryPersistence marks persistence errors as retryable so transient
// store failures trigger the backoff loop. Not-found and validation
// errors fail immediately.
func retryPersistence(err error) error {
	if apperrors.GetCode(err) == apperrors.ErrCodePersistence {
		return cache.Retryable(err)
	}
	return err
}

// Resolve derives the root, return edges, and reader order for a snapshot.
func (r *Runner) Resolve(file story.File) traverse.Resolution {
	return traverse.Resolve(file.Graph(), r.Logger)
}

// SnapshotHash returns the content hash of a snapshot, used to key cached
// layouts. Any page or choice edit changes the hash.
func SnapshotHash(file story.File) string {
	data, err := story.Marshal(file)
	if err != nil {
		return ""
	}
	return cache.Hash(data)
}

// ComputeLayoutWithCacheInfo computes a layout with caching and reports
// whether it was served from cache.
func (r *Runner) ComputeLayoutWithCacheInfo(ctx context.Context, g *story.Graph, res traverse.Resolution, snapshotHash string, opts Options) (layout.Layout, bool, error) {
	cacheKey := r.Keyer.LayoutKey(snapshotHash, opts.LayoutKeyOpts())

	if !opts.Refresh && snapshotHash != "" {
		if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
			var cached layout.Layout
			if err := json.Unmarshal(data, &cached); err == nil {
				observability.Cache().OnCacheHit(ctx, "layout")
				return cached, true, nil
			}
			// If deserialization fails, fall through to recompute
		}
		observability.Cache().OnCacheMiss(ctx, "layout")
	}

	observability.Engine().OnLayoutStart(ctx, opts.StoryID, g.PageCount())
	start := time.Now()
	lay := layout.Compute(g, res, opts.Layout)
	observability.Engine().OnLayoutComplete(ctx, opts.StoryID, time.Since(start), nil)

	if snapshotHash != "" {
		if data, err := json.Marshal(lay); err == nil {
			_ = r.Cache.Set(ctx, cacheKey, data, cache.TTLLayout)
			observability.Cache().OnCacheSet(ctx, "layout", len(data))
		}
	}
	return lay, false, nil
}

// ComputeLayout is a convenience wrapper that discards the cache hit info.
func (r *Runner) ComputeLayout(ctx context.Context, file story.File, res traverse.Resolution, opts Options) (layout.Layout, error) {
	lay, _, err := r.ComputeLayoutWithCacheInfo(ctx, file.Graph(), res, SnapshotHash(file), opts)
	return lay, err
}

// RenderWithCacheInfo generates artifacts with caching and reports whether
// all of them were served from cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, g *story.Graph, res traverse.Resolution, lay layout.Layout, opts Options) (map[string][]byte, bool, error) {
	layoutData, err := json.Marshal(lay)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrCodeInternal, err, "serialize layout for cache key")
	}
	layoutHash := cache.Hash(layoutData)

	// Try to get all formats from cache
	allCached := !opts.Refresh
	artifacts := make(map[string][]byte)
	if allCached {
		for _, format := range opts.Formats {
			cacheKey := r.Keyer.ArtifactKey(layoutHash, opts.ArtifactKeyOpts(format))
			if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
				artifacts[format] = data
			} else {
				allCached = false
				break
			}
		}
	}
	if allCached && len(artifacts) == len(opts.Formats) {
		observability.Cache().OnCacheHit(ctx, "artifact")
		return artifacts, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, "artifact")

	rendered, err := r.renderFormats(g, res, lay, opts)
	if err != nil {
		return nil, false, err
	}

	for format, data := range rendered {
		cacheKey := r.Keyer.ArtifactKey(layoutHash, opts.ArtifactKeyOpts(format))
		_ = r.Cache.Set(ctx, cacheKey, data, cache.TTLArtifact)
		observability.Cache().OnCacheSet(ctx, "artifact", len(data))
	}
	return rendered, false, nil
}

func (r *Runner) renderFormats(g *story.Graph, res traverse.Resolution, lay layout.Layout, opts Options) (map[string][]byte, error) {
	dot := render.ToDOT(g, res, render.Options{
		Detailed:     opts.Detailed,
		ChoiceLabels: opts.ChoiceLabels,
	})

	out := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		switch format {
		case FormatDOT:
			out[format] = []byte(dot)
		case FormatSVG:
			svg, err := render.SVG(dot)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err, "render svg")
			}
			out[format] = svg
		case FormatPNG:
			png, err := render.PNG(dot, opts.Scale)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err, "render png")
			}
			out[format] = png
		case FormatPDF:
			pdf, err := render.PDF(dot)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err, "render pdf")
			}
			out[format] = pdf
		case FormatJSON:
			data, err := json.Marshal(lay)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err, "marshal layout")
			}
			out[format] = data
		default:
			return nil, apperrors.New(apperrors.ErrCodeInvalidFormat, "unsupported format %q", format)
		}
	}
	return out, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// runLogger prefers the per-run logger over the runner's.
func (r *Runner) runLogger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}
