package vm

import "github.com/govem/govem/pkg/heap"

// StackTraceElement is one line of a captured backtrace, printed one per
// frame for an uncaught exception on the main thread.
type StackTraceElement struct {
	ClassName  string
	MethodName string
	Line       uint16
}

// UnwindResult is returned in place of a Go panic/error when bytecode
// execution enters the unwind path: interpret returns an *UnwindResult
// rather than using host-language exceptions for control flow. A non-nil
// UnwindResult means either an ATHROW or a VM-raised runtime check
// propagated past every frame the interpreter examined and was not caught
// by any exception-table entry it walked.
type UnwindResult struct {
	Exception *heap.Object
	Trace     []StackTraceElement
}

func (u *UnwindResult) ClassName() string {
	if u == nil || u.Exception == nil {
		return ""
	}
	return u.Exception.ClassName()
}

func newUnwind(exc *heap.Object) *UnwindResult {
	return &UnwindResult{Exception: exc}
}

func (u *UnwindResult) appendFrame(class, method string, line uint16) {
	u.Trace = append(u.Trace, StackTraceElement{ClassName: class, MethodName: method, Line: line})
}
