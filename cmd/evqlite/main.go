// evqlite is the CLI entry point: arena maintenance subcommands and a
// manual fan-out soak-testing harness, analogous to the original
// eventql's cli/benchmark.h.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "evqlite",
	Short:   "evqlite columnar storage and fan-out RPC tooling",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("evqlite version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", true, "Pretty-print logs for interactive use")

	rootCmd.AddCommand(arenaCmd)
	rootCmd.AddCommand(rpcBenchCmd)
}
