package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jwlsync",
	Short: "Merge JW Library backup archives",
	Long: `jwlsync merges two .jwlibrary backup archives into one, keeping every
record from both sides, suppressing duplicates, and keeping notes, marks,
tags, and playlists attached to the right locations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
