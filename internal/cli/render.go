package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fableloom/fableloom/pkg/engine"
	"github.com/fableloom/fableloom/pkg/story"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output   string   // output file path (or base path for multiple formats)
	formats  []string // output formats: "dot", "svg", "png", "pdf", "json"
	detailed bool     // include content excerpts and ending labels
	labels   bool     // put choice text on edges
	scale    float64  // PNG raster scale
	noCache  bool     // bypass cached layouts and artifacts
}

// renderCommand creates the render command for generating story maps.
func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	opts := renderOpts{scale: engine.DefaultPNGScale}

	cmd := &cobra.Command{
		Use:   "render [story.json]",
		Short: "Render a story map to DOT, SVG, PNG, or PDF",
		Long: `Render a story map to DOT, SVG, PNG, or PDF.

Pages become nodes (endings double-ringed, orphans dashed), choices become
edges, and back edges are drawn dashed so cycles read at a glance. JSON
output exports the computed layout instead of a drawing.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: storyFileCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot, png, pdf, json (comma-separated)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include content excerpts and ending labels")
	cmd.Flags().BoolVar(&opts.labels, "labels", false, "put choice text on edges")
	cmd.Flags().Float64Var(&opts.scale, "scale", opts.scale, "PNG raster scale")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass cached layouts and artifacts")

	return cmd
}

// validateFormats checks that all requested formats are valid.
func validateFormats(formats []string) error {
	for _, f := range formats {
		if !engine.ValidFormats[f] {
			return fmt.Errorf("invalid format: %s (must be 'dot', 'svg', 'png', 'pdf', or 'json')", f)
		}
	}
	return nil
}

// basePath derives the base output path from the output and input file paths.
func basePath(output, input string) string {
	if output == "" {
		return strings.TrimSuffix(input, filepath.Ext(input))
	}
	ext := filepath.Ext(output)
	if engine.ValidFormats[strings.TrimPrefix(ext, ".")] {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

// runRender loads the story, runs the pipeline, and writes one file per
// requested format.
func (c *CLI) runRender(ctx context.Context, input string, opts *renderOpts) error {
	f, err := story.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load story %s: %w", input, err)
	}

	runner, err := c.newFileRunner(f, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, "Rendering story map...")
	spinner.Start()

	result, err := runner.Execute(ctx, engine.Options{
		StoryID:      f.Story.ID,
		Formats:      opts.formats,
		Detailed:     opts.detailed,
		ChoiceLabels: opts.labels,
		Scale:        opts.scale,
		Refresh:      opts.noCache,
	})
	if err != nil {
		spinner.StopWithError("Render failed")
		return fmt.Errorf("render story: %w", err)
	}
	spinner.Stop()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := c.writeArtifacts(input, opts, result); err != nil {
		return err
	}

	printSuccess("Render complete")
	printStats(result.Stats.PageCount, result.Stats.ChoiceCount, result.CacheInfo.RenderHit)
	if orphans := result.Resolution.Orphans(); len(orphans) > 0 {
		printWarning("%d orphan page(s) not reachable from the root", len(orphans))
	}
	return nil
}

func (c *CLI) writeArtifacts(input string, opts *renderOpts, result *engine.Result) error {
	if len(opts.formats) == 1 {
		outputPath := opts.output
		if outputPath == "" {
			outputPath = basePath("", input) + "." + opts.formats[0]
		}
		return writeArtifact(outputPath, result.Artifacts[opts.formats[0]])
	}

	base := basePath(opts.output, input)
	for _, format := range opts.formats {
		if err := writeArtifact(base+"."+format, result.Artifacts[format]); err != nil {
			return err
		}
	}
	return nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	printFile(path)
	return nil
}
