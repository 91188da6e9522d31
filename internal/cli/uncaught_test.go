package cli

import (
	"bytes"
	"testing"

	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

// newUncaughtTestVM wires the minimal VM printUncaught needs: synthetic
// java/lang/Object and java/lang/String classes (the latter with a
// value:[C field) so the string heap can intern the exception's detail
// message without a bootstrap archive on disk.
func newUncaughtTestVM(t *testing.T) *vm.VM {
	t.Helper()
	h := heap.NewHeap(1 << 20)
	linker := vm.NewClassLinker(h)
	loader := vm.NewBootstrapClassLoader(linker)
	v := vm.NewVM(h, nil, loader, linker, nil)

	v.DefineSyntheticClass(vm.NewSyntheticClass("java/lang/Object", nil, nil, nil))
	strJC := v.DefineSyntheticClass(vm.NewSyntheticClass("java/lang/String",
		[]vm.SyntheticField{{Name: "value", Descriptor: "[C"}}, nil, nil))
	charArr, err := loader.LoadClass("[C")
	if err != nil {
		t.Fatalf("loading [C: %v", err)
	}
	v.Strings = heap.NewStringHeap(h, strJC, charArr.Array)
	return v
}

// TestPrintUncaughtUsesDottedClassName pins the exact uncaught-exception
// report: the class name is printed in dotted Java source form, not the
// internal slash-separated binary form, followed by one line per frame.
func TestPrintUncaughtUsesDottedClassName(t *testing.T) {
	v := newUncaughtTestVM(t)
	unwind := v.Throw("java/lang/RuntimeException", "boom")
	unwind.Trace = []vm.StackTraceElement{
		{ClassName: "Thrower", MethodName: "boom", Line: 4},
		{ClassName: "Main", MethodName: "main", Line: 2},
	}

	var buf bytes.Buffer
	printUncaught(&buf, v, unwind)

	want := "Exception java.lang.RuntimeException: 'boom'\n" +
		"\tat Thrower.boom (line 4)\n" +
		"\tat Main.main (line 2)\n"
	if got := buf.String(); got != want {
		t.Errorf("printUncaught output:\n got %q\nwant %q", got, want)
	}
}
