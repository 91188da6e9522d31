package native

import (
	"fmt"
	"sync"

	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

// tracesMu/traces hold each Throwable instance's captured backtrace,
// side-tabled by object identity the same way Registry.streams side-tables
// PrintStream writers: heap.Object carries no slot for an arbitrary Go
// value, and a captured stack trace is exactly that.
var (
	tracesMu sync.Mutex
	traces   = map[*heap.Object][]vm.StackTraceElement{}
)

func registerThrowableNatives(r *Registry) {
	r.Register("java/lang/Throwable", "fillInStackTrace", "(I)Ljava/lang/Throwable;",
		func(_ *vm.VM, t *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
			recv := args[0].Ref
			if recv != nil {
				tracesMu.Lock()
				traces[recv] = t.CaptureStackTrace()
				tracesMu.Unlock()
			}
			return args[0], nil, nil
		})

	r.Register("java/lang/Throwable", "printStackTrace", "()V",
		func(vmi *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
			recv := args[0].Ref
			if recv == nil {
				return vm.Value{}, nil, nil
			}
			w := r.Stderr()
			fmt.Fprintln(w, throwableHeader(vmi, recv))
			tracesMu.Lock()
			trace := traces[recv]
			tracesMu.Unlock()
			for _, el := range trace {
				fmt.Fprintf(w, "\tat %s.%s(line %d)\n", el.ClassName, el.MethodName, el.Line)
			}
			return vm.Value{}, nil, nil
		})
}

// throwableHeader formats a Throwable's class name and (if present)
// message the way Throwable.toString() does: "class: message".
func throwableHeader(vmi *vm.VM, recv *heap.Object) string {
	name := recv.ClassName()
	jc := vm.ClassOf(recv)
	if jc == nil {
		return name
	}
	msg, err := vmi.GetInstanceField(recv, jc, "message", "Ljava/lang/String;")
	if err != nil || msg.Ref == nil {
		return name
	}
	return name + ": " + javaStringToGo(msg.Ref)
}
