package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/j-veylop/cliproxy-usage-tui/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.Info())
	},
}

func init() {
	// --version resolves the build info lazily, so git is only run when asked.
	rootCmd.Version = "dev"
	if version.Version != "" {
		rootCmd.Version = version.Version
	}
	cobra.AddTemplateFunc("buildInfo", version.Info)
	rootCmd.SetVersionTemplate("{{buildInfo}}\n")
	rootCmd.AddCommand(versionCmd)
}
