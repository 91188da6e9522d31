package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/govem/govem/pkg/classfile"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <classfile>",
	Short: "Disassemble a class file's constant pool and bytecode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		cf, err := classfile.Parse(f)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		fmt.Print(classfile.Disassemble(cf))
		return nil
	},
}
