package cmd

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for the studiokit CLI.

To load completions:

Bash:
  $ source <(studiokit completion bash)

  # To load completions for each session, execute once:
  $ studiokit completion bash > /etc/bash_completion.d/studiokit

Zsh:
  $ studiokit completion zsh > "${fpath[1]}/_studiokit"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ studiokit completion fish | source

PowerShell:
  PS> studiokit completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(w)
		case "zsh":
			return cmd.Root().GenZshCompletion(w)
		case "fish":
			return cmd.Root().GenFishCompletion(w, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(w)
		}
	},
}
