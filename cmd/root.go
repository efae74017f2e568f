package cmd

import "github.com/spf13/cobra"

type rootOptions struct {
	configPath string
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "roundtable",
		Short:         "Roundtable: run bounded multi-agent conversations",
		Long:          "roundtable orchestrates turn-based conversations between AI agents and an optional human, then summarizes them and proposes follow-up work for review.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML, TOML or JSON); defaults to ./roundtable.*")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newRunCmd(opts),
	)

	return rootCmd
}
