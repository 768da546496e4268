package cmd

import "github.com/spf13/cobra"

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for testforge.

To load completions:

Bash:
  $ source <(testforge completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ testforge completion bash > /etc/bash_completion.d/testforge
  # macOS:
  $ testforge completion bash > $(brew --prefix)/etc/bash_completion.d/testforge

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ testforge completion zsh > "${fpath[1]}/_testforge"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ testforge completion fish | source

  # To load completions for each session, execute once:
  $ testforge completion fish > ~/.config/fish/completions/testforge.fish

PowerShell:
  PS> testforge completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> testforge completion powershell > testforge.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
