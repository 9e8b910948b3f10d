package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show the directory layout derived from --basedir",
	Long: `Show the directories the runtime is configured with and the script
search path, highest precedence first.

With --check, each entry is marked "missing" when it does not exist.`,
	Args: cobra.NoArgs,
	RunE: runPaths,
}

func init() {
	pathsCmd.Flags().Bool("check", false, "Report entries that do not exist")
	rootCmd.AddCommand(pathsCmd)
}

func runPaths(cmd *cobra.Command, args []string) error {
	paths := pathsFromFlags(cmd.Flags())
	check, _ := cmd.Flags().GetBool("check")
	out := cmd.OutOrStdout()

	missing := 0
	mark := func(path string) string {
		if !check {
			return path
		}
		if _, err := os.Stat(path); err != nil {
			missing++
			return path + " (missing)"
		}
		return path
	}

	fmt.Fprintf(out, "basedir:   %s\n", mark(paths.Base))
	fmt.Fprintf(out, "core:      %s\n", mark(paths.Library.Core))
	fmt.Fprintf(out, "share:     %s\n", mark(paths.Library.Share))
	fmt.Fprintf(out, "operation: %s\n", mark(paths.Library.Operation))
	fmt.Fprintf(out, "entry:     %s\n", mark(paths.EntryScript))
	fmt.Fprintln(out, "search path:")
	for i, entry := range paths.Precedence() {
		fmt.Fprintf(out, "  %d. %s\n", i+1, mark(entry))
	}

	if missing > 0 {
		return fmt.Errorf("%d paths missing", missing)
	}
	return nil
}
