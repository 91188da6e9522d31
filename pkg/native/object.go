package native

import (
	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

func registerObjectNatives(r *Registry) {
	r.Register("java/lang/Object", "registerNatives", "()V", noop)

	r.Register("java/lang/Object", "hashCode", "()I", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		recv := args[0].Ref
		if recv == nil {
			return vm.IntValue(0), nil, nil
		}
		return vm.IntValue(recv.IdentityHash), nil, nil
	})

	r.Register("java/lang/Object", "getClass", "()Ljava/lang/Class;", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		recv := args[0].Ref
		if recv == nil {
			return vm.Value{}, nil, nil
		}
		return vm.RefValue(vm.MirrorOf(recv)), nil, nil
	})

	r.Register("java/lang/Object", "clone", "()Ljava/lang/Object;", func(vmi *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		recv := args[0].Ref
		if recv == nil {
			return vm.Value{}, vmi.Throw("java/lang/NullPointerException", ""), nil
		}
		var clone *heap.Object
		var err error
		if recv.IsArrayObj {
			clone, err = vmi.NewArray(recv.Class, recv.Length)
		} else if jc := vm.ClassOf(recv); jc != nil {
			clone, err = vmi.NewInstance(jc)
		} else {
			return vm.Value{}, vmi.Throw("java/lang/CloneNotSupportedException", recv.ClassName()), nil
		}
		if err != nil {
			return vm.Value{}, vmi.Throw("java/lang/OutOfMemoryError", ""), nil
		}
		copy(clone.Primitives, recv.Primitives)
		copy(clone.Refs, recv.Refs)
		return vm.RefValue(clone), nil, nil
	})

	// wait/notify/notifyAll are modeled as no-ops: this core runs Java
	// threads as plain goroutines with no monitor wait-queue, matching the
	// interpreter's monitorenter/monitorexit no-ops.
	r.Register("java/lang/Object", "wait", "(J)V", noop)
	r.Register("java/lang/Object", "notify", "()V", noop)
	r.Register("java/lang/Object", "notifyAll", "()V", noop)
}
