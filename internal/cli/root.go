// Package cli wires govem's cobra commands (run, disasm, watch) onto the
// execution core in pkg/vm, pkg/classfile, and pkg/native.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "govem",
	Short: "A JVM 17 execution core",
	Long: `govem loads, links, and runs JVM class files: decode a .class file,
disassemble its bytecode, run its main method, or watch a running
program's heap and thread state live.`,
	SilenceUsage: true,
}

// Execute runs the selected subcommand and returns its error, letting
// cmd/govem's main print it and set the process exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(watchCmd)
}
