package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fableloom/fableloom/pkg/story"
	"github.com/fableloom/fableloom/pkg/story/traverse"
)

// inspectCommand creates the inspect command for reporting graph structure.
func (c *CLI) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [story.json]",
		Short: "Report a story's graph structure and diagnostics",
		Long: `Report a story's graph structure and diagnostics.

Loads a story file, resolves its graph, and prints the root, the reading
order, back edges, orphans, and every structural diagnostic. Diagnostics are
annotations: a story with orphans or cycles still resolves and renders.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: storyFileCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(args[0])
		},
	}
}

func (c *CLI) runInspect(input string) error {
	f, err := story.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load story %s: %w", input, err)
	}

	g := f.Graph()
	res := traverse.Resolve(g, nil)

	title := f.Story.Title
	if title == "" {
		title = f.Story.ID
	}
	fmt.Println(StyleTitle.Render(title))
	printStats(g.PageCount(), len(g.Choices()), false)
	printNewline()

	if res.Root == nil {
		printWarning("Story has no pages")
		return nil
	}
	printInfo("Root: %s", pageLabel(res.Root))

	depths := orderDepths(res)
	for _, e := range res.Order {
		indent := strings.Repeat("  ", depths[e.Page.ID])
		label := pageLabel(e.Page)
		if e.Orphan {
			fmt.Println("  " + indent + StyleDim.Render(label+" (orphan)"))
			continue
		}
		fmt.Println("  " + indent + StyleValue.Render(label))
	}

	if len(res.BackEdges) > 0 {
		printNewline()
		printInfo("Back edges:")
		for edge := range res.BackEdges {
			printDetail("%s %s %s", edge.Source, iconArrow, edge.Target)
		}
	}

	if len(res.Diagnostics) > 0 {
		printNewline()
		printInfo("Diagnostics:")
		for _, d := range res.Diagnostics {
			printDetail("%s", diagnosticLine(d))
		}
	}

	printNewline()
	printNextStep("Render", "fableloom render "+input)
	return nil
}

// orderDepths derives each page's indent depth from the display-parent
// chain. Orphans and the root sit at depth zero.
func orderDepths(res traverse.Resolution) map[string]int {
	depths := make(map[string]int, len(res.Order))
	for _, e := range res.Order {
		d := 0
		for id := e.Page.ID; ; {
			parent, ok := res.Parent[id]
			if !ok {
				break
			}
			d++
			id = parent
		}
		depths[e.Page.ID] = d
	}
	return depths
}

func pageLabel(p *story.Page) string {
	label := p.ID
	if p.IsEnding {
		if p.EndingLabel != "" {
			return fmt.Sprintf("%s [%s]", label, p.EndingLabel)
		}
		return label + " [ending]"
	}
	return label
}

func diagnosticLine(d story.Diagnostic) string {
	switch {
	case d.Source != "" && d.Target != "":
		return fmt.Sprintf("%s: %s %s %s", d.Kind, d.Source, iconArrow, d.Target)
	case d.PageID != "":
		return fmt.Sprintf("%s: %s", d.Kind, d.PageID)
	default:
		return d.Kind
	}
}
