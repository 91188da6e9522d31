package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/govem/govem/pkg/native"
	"github.com/govem/govem/pkg/vm"
)

// buildVM wires a fresh VM: heap + loader + linker from the environment (see
// vm.ConfigFromEnv), then the native registry's System/Throwable/Class/
// Thread/Unsafe bindings, with System.out pointed at stdout and
// System.err at stderr.
func buildVM(stdout, stderr io.Writer) (*vm.VM, *native.Registry, error) {
	cfg := vm.ConfigFromEnv()
	vmi, err := vm.Bootstrap(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrapping VM: %w", err)
	}

	reg, err := native.Bootstrap(vmi, stdout, stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("registering natives: %w", err)
	}
	vmi.Natives = reg
	return vmi, reg, nil
}

// resolveMainClass accepts either a path to a .class file (its directory
// is added to the classpath) or a bare binary/dotted class name, and
// returns the loaded, initialized class.
func resolveMainClass(vmi *vm.VM, target string) (*vm.JClass, error) {
	name := target
	if strings.HasSuffix(target, ".class") {
		dir := filepath.Dir(target)
		name = strings.TrimSuffix(filepath.Base(target), ".class")
		vmi.Loader.Classpath = append(vmi.Loader.Classpath, vm.NewDirClasspathEntry(dir))
	}
	name = strings.ReplaceAll(name, ".", "/")

	rc, err := vmi.Loader.LoadClass(name)
	if err != nil {
		return nil, err
	}
	if rc.Instance == nil {
		return nil, fmt.Errorf("%s is an array type, not a class", name)
	}
	if err := vmi.Linker.Initialize(rc.Instance); err != nil {
		return nil, err
	}
	return rc.Instance, nil
}

// runMain resolves main([Ljava/lang/String;)V on jc, forwards programArgs
// into its String[] parameter, and runs it to completion on a fresh
// thread. A non-nil *vm.UnwindResult means the program's main thread
// terminated with an uncaught exception; the caller is responsible for
// printing it and choosing the process exit code.
func runMain(vmi *vm.VM, jc *vm.JClass, programArgs []string) (*vm.UnwindResult, error) {
	method := jc.FindMethodDeclared("main", "([Ljava/lang/String;)V")
	if method == nil {
		return nil, fmt.Errorf("%s has no main([Ljava/lang/String;)V method", jc.BinaryName)
	}

	arrClass, err := vmi.Loader.LoadClass("[Ljava/lang/String;")
	if err != nil {
		return nil, fmt.Errorf("loading String[]: %w", err)
	}
	argv, err := vmi.NewArray(arrClass.Array, int32(len(programArgs)))
	if err != nil {
		return nil, fmt.Errorf("allocating argv: %w", err)
	}
	for i, a := range programArgs {
		if err := argv.SetRef(i, vmi.InternString(a)); err != nil {
			return nil, err
		}
	}

	thread := vmi.NewThread("main")
	_, unwind, err := thread.Invoke(method, jc, []vm.Value{vm.RefValue(argv)})
	return unwind, err
}

// uncaughtMessage extracts the detail message of an exception instance,
// mirroring Throwable's `message` field, for the uncaught-exception
// report ("Exception <class>: '<detailMessage>'").
func uncaughtMessage(vmi *vm.VM, unwind *vm.UnwindResult) string {
	jc := vm.ClassOf(unwind.Exception)
	if jc == nil {
		return ""
	}
	v, err := vmi.GetInstanceField(unwind.Exception, jc, "message", "Ljava/lang/String;")
	if err != nil || v.Ref == nil {
		return ""
	}
	return native.JavaStringToGo(v.Ref)
}

// printUncaught writes the uncaught-exception report to w: the exception
// class (in dotted source form, not the internal slash form) and message,
// then one line per captured frame.
func printUncaught(w io.Writer, vmi *vm.VM, unwind *vm.UnwindResult) {
	name := strings.ReplaceAll(unwind.ClassName(), "/", ".")
	fmt.Fprintf(w, "Exception %s: '%s'\n", name, uncaughtMessage(vmi, unwind))
	for _, frame := range unwind.Trace {
		fmt.Fprintf(w, "\tat %s.%s (line %d)\n", frame.ClassName, frame.MethodName, frame.Line)
	}
}
