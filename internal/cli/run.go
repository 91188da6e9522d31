package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <classfile-or-class-name> [program args...]",
	Short: "Resolve and invoke a class's main method",
	Long: `run loads the named class (a path ending in .class, or a binary/dotted
class name resolved against GOVEM_CLASSPATH/JDK17_PATH), links and
initializes it, then invokes its main(String[]) method on a fresh
thread. Any arguments after the class are forwarded into main's argv.`,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true, // program args may themselves look like flags
	RunE: func(cmd *cobra.Command, args []string) error {
		target, programArgs := args[0], args[1:]

		vmi, _, err := buildVM(os.Stdout, os.Stderr)
		if err != nil {
			return err
		}

		jc, err := resolveMainClass(vmi, target)
		if err != nil {
			return err
		}

		unwind, err := runMain(vmi, jc, programArgs)
		if err != nil {
			return err
		}
		if unwind != nil {
			printUncaught(os.Stderr, vmi, unwind)
			os.Exit(1)
		}
		return nil
	},
}
