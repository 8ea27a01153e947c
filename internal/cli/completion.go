package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// storyFileCompletion completes the single story-file argument of the
// inspect, layout, render, and play commands with .json files only.
func storyFileCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"json"}, cobra.ShellCompDirectiveFilterFileExt
}

// completionCommand creates the completion command for generating shell
// completion scripts.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a shell completion script for fableloom.

Completions cover subcommands, flags, and story files for the commands
that take one.

Load it into the current shell:

  source <(fableloom completion bash)
  fableloom completion fish | source
  fableloom completion powershell | Out-String | Invoke-Expression

or install it permanently, for example:

  fableloom completion bash > /etc/bash_completion.d/fableloom
  fableloom completion zsh > "${fpath[1]}/_fableloom"
  fableloom completion fish > ~/.config/fish/completions/fableloom.fish`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
}
