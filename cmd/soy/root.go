package main

import (
	"github.com/spf13/cobra"

	soy "github.com/archimag/soy-go"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "soy",
		Short: "Render and check soy templates",
		Long: `soy loads every .soy file below a templates directory and renders
a template by its fully qualified name.

Settings are read from soy.yaml in the working directory, from SOY_*
environment variables and from flags, in increasing order of priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./soy.yaml)")
	flags.StringP("templates", "t", "", "directory holding .soy files")
	flags.Bool("debug", false, "attach source excerpts and variables to render errors")
	flags.Uint64("fuel", 0, "abort rendering after this many evaluation steps (0 disables)")
	flags.Int("recursion-limit", soy.DefaultRecursionLimit, "maximum depth of nested calls")
	flags.BoolP("verbose", "v", false, "log loading and rendering details")

	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
