// Package cli implements the fableloom command-line interface.
//
// This package provides commands for serving the HTTP API, inspecting story
// graph structure, computing map layouts, rendering story maps, and reading
// a story interactively in the terminal. The CLI is built using cobra and
// supports verbose logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - serve: Run the HTTP API server
//   - inspect: Report a story's graph structure and diagnostics
//   - layout: Compute the map layout for a story file
//   - render: Generate DOT, SVG, PDF, or PNG story maps
//   - play: Read a story interactively in the terminal
//   - cache: Manage the local render cache
package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fableloom/fableloom/pkg/buildinfo"
	"github.com/fableloom/fableloom/pkg/cache"
	"github.com/fableloom/fableloom/pkg/engine"
	"github.com/fableloom/fableloom/pkg/store"
	"github.com/fableloom/fableloom/pkg/story"
)

// appName is the application name used for directories and display.
const appName = "fableloom"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "fableloom",
		Short:        "Fableloom authors and serves branching stories",
		Long:         `Fableloom is an engine for branching, reader-driven stories: authors build a graph of pages and choices, readers walk it one choice at a time, and the engine keeps the structure honest and draws the map.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.playCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newFileRunner builds an engine runner over a story file loaded into an
// in-memory store, for the file-based commands (inspect, layout, render,
// play).
func (c *CLI) newFileRunner(f story.File, noCache bool) (*engine.Runner, error) {
	st := store.NewMemoryStore()
	st.Seed(f)
	cch, err := newCache(noCache)
	if err != nil {
		return nil, err
	}
	return engine.NewRunner(st, cch, nil, c.Logger), nil
}

func newCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/fableloom/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) []string {
	if s == "" {
		return []string{engine.FormatSVG}
	}
	return strings.Split(s, ",")
}
