package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fableloom/fableloom/pkg/engine"
	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/layout"
)

// layoutCommand creates the layout command for computing story map layouts.
func (c *CLI) layoutCommand() *cobra.Command {
	var (
		output  string
		noCache bool
	)
	var opts layout.Options

	cmd := &cobra.Command{
		Use:   "layout [story.json]",
		Short: "Compute the map layout for a story file",
		Long: `Compute the map layout for a story file.

The layout command takes a story file and computes 2D tree-map coordinates
for every page: reachable pages by depth row, orphans in a bottom band. The
output is a layout.json file that UIs can position nodes from directly.

Results are cached locally for faster subsequent runs.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: storyFileCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runLayout(cmd.Context(), args[0], opts, output, noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.layout.json)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	cmd.Flags().Float64Var(&opts.Height, "height", 0, "canvas height (0 = auto)")
	cmd.Flags().Float64Var(&opts.SiblingSpread, "sibling-spread", 0, "horizontal spread between siblings (0 = default)")
	cmd.Flags().Float64Var(&opts.MinRowGap, "min-row-gap", 0, "minimum vertical gap between rows (0 = default)")
	cmd.Flags().Float64Var(&opts.MaxRowGap, "max-row-gap", 0, "maximum vertical gap between rows (0 = default)")

	return cmd
}

// runLayout loads the story, computes the layout, and writes output.
func (c *CLI) runLayout(ctx context.Context, input string, opts layout.Options, output string, noCache bool) error {
	f, err := story.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load story %s: %w", input, err)
	}

	runner, err := c.newFileRunner(f, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, "Computing layout...")
	spinner.Start()

	result, err := runner.Execute(ctx, engine.Options{
		StoryID: f.Story.ID,
		Layout:  opts,
		Formats: []string{engine.FormatJSON},
	})
	if err != nil {
		spinner.StopWithError("Layout failed")
		return fmt.Errorf("compute layout: %w", err)
	}
	spinner.Stop()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	outputPath := output
	if outputPath == "" {
		base := strings.TrimSuffix(input, filepath.Ext(input))
		outputPath = base + ".layout.json"
	}

	data, err := json.MarshalIndent(result.Layout, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", outputPath, err)
	}

	printSuccess("Layout complete")
	printFile(outputPath)
	printStats(result.Stats.PageCount, result.Stats.ChoiceCount, result.CacheInfo.LayoutHit)
	printNewline()
	printNextStep("Render", "fableloom render "+input)

	return nil
}
