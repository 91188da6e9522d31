// Command govem runs class files on the govem execution core: resolving
// and invoking a class's main method, disassembling a class file, or
// watching a running program's heap/GC/thread state live.
package main

import (
	"fmt"
	"os"

	"github.com/govem/govem/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
