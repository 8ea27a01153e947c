// Package render turns resolved stories into visual story maps.
//
// The renderer emits Graphviz DOT describing the page graph, then rasterizes
// it with the embedded Graphviz engine. Structural roles picked out during
// resolution get distinct visual treatment: the root is bold, ending pages
// are double-bordered, orphan pages are greyed out, and return edges (the
// "go back to the crossroads" loops) are dashed so the main tree reads
// top-to-bottom.
//
//	dot := render.ToDOT(g, res, render.Options{})
//	svg, err := render.SVG(dot)
//	png, err := render.PNG(dot, 2.0)
package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-graphviz"

	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

// Options configures story map rendering.
type Options struct {
	// Detailed includes page content excerpts and ending labels in node
	// labels. When false, only the page ID is shown.
	Detailed bool

	// ChoiceLabels puts choice text on edges.
	ChoiceLabels bool
}

// excerptLen bounds how much page content appears in a detailed label.
const excerptLen = 40

// ToDOT converts a resolved story graph to Graphviz DOT format.
// The resulting DOT string can be rendered using [SVG], [PDF], or [PNG].
func ToDOT(g *story.Graph, res traverse.Resolution, opts Options) string {
	orphans := make(map[string]bool)
	for _, e := range res.Order {
		if e.Orphan {
			orphans[e.Page.ID] = true
		}
	}

	var buf bytes.Buffer
	buf.WriteString("digraph story {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	rootID := res.RootID()
	for _, p := range g.Pages() {
		label := fmtLabel(p, opts.Detailed)
		attrs := fmtAttrs(p, label, p.ID == rootID, orphans[p.ID])
		fmt.Fprintf(&buf, "  %q [%s];\n", p.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, c := range g.Choices() {
		if !c.IsLinked() {
			continue
		}
		if _, ok := g.Page(c.TargetPageID); !ok {
			continue
		}
		var attrs []string
		if opts.ChoiceLabels && c.Text != "" {
			attrs = append(attrs, fmt.Sprintf("label=%q", c.Text))
		}
		if res.BackEdges[traverse.EdgeKey{Source: c.PageID, Target: c.TargetPageID}] {
			attrs = append(attrs, "style=dashed", "color=grey40", "constraint=false")
		}
		if len(attrs) > 0 {
			fmt.Fprintf(&buf, "  %q -> %q [%s];\n", c.PageID, c.TargetPageID, strings.Join(attrs, ", "))
		} else {
			fmt.Fprintf(&buf, "  %q -> %q;\n", c.PageID, c.TargetPageID)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(p *story.Page, detailed bool) string {
	if !detailed {
		return p.ID
	}

	label := p.ID
	if excerpt := excerpt(p.Content); excerpt != "" {
		label += "\n" + excerpt
	}
	if p.IsEnding && p.EndingLabel != "" {
		label += "\n[" + p.EndingLabel + "]"
	}
	return label
}

func excerpt(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= excerptLen {
		return content
	}
	// Back the cut up to a rune boundary so the label stays valid UTF-8.
	cut := excerptLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "…"
}

func fmtAttrs(p *story.Page, label string, isRoot, isOrphan bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch {
	case isOrphan:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=grey92", "fontcolor=grey30")
	case p.IsEnding:
		attrs = append(attrs, "peripheries=2", "fillcolor=lightyellow")
	case isRoot:
		attrs = append(attrs, "penwidth=2")
	}
	return attrs
}

// SVG renders a DOT graph to SVG using Graphviz.
// Returns the SVG bytes ready for display or further conversion with [ToPDF] or [ToPNG].
func SVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}

// PDF renders a DOT graph as PDF via SVG conversion.
// This is a convenience wrapper around [SVG] and [ToPDF].
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func PDF(dot string) ([]byte, error) {
	svg, err := SVG(dot)
	if err != nil {
		return nil, err
	}
	return ToPDF(svg)
}

// PNG renders a DOT graph as PNG via SVG conversion.
// A scale of 2.0 produces a 2x resolution image suitable for high-DPI displays.
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func PNG(dot string, scale float64) ([]byte, error) {
	svg, err := SVG(dot)
	if err != nil {
		return nil, err
	}
	return ToPNG(svg, scale)
}
