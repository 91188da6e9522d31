package native

import (
	"sync"
	"sync/atomic"

	"github.com/govem/govem/pkg/vm"
)

// unsafeMu guards every compareAndSet* below. Real hardware CAS needs no
// such lock; this core has no addressable memory to issue one against, so
// a single mutex stands in for the atomicity guarantee the bytecode caller
// actually depends on (AtomicInteger and friends only need "no torn
// update", not true lock-freedom).
var unsafeMu sync.Mutex

// fenceSeq has no reader; storeFence's only contractual effect is a
// happens-before edge, which the atomic store below provides regardless of
// the value.
var fenceSeq int32

func registerUnsafeNatives(r *Registry) {
	r.Register("jdk/internal/misc/Unsafe", "registerNatives", "()V", noop)

	r.Register("jdk/internal/misc/Unsafe", "compareAndSetInt", "(Ljava/lang/Object;JII)Z", casIntNative)
	r.Register("jdk/internal/misc/Unsafe", "compareAndSwapInt", "(Ljava/lang/Object;JII)Z", casIntNative)

	r.Register("jdk/internal/misc/Unsafe", "compareAndSetLong", "(Ljava/lang/Object;JJJ)Z", casLongNative)
	r.Register("jdk/internal/misc/Unsafe", "compareAndSwapLong", "(Ljava/lang/Object;JJJ)Z", casLongNative)

	r.Register("jdk/internal/misc/Unsafe", "compareAndSetReference", "(Ljava/lang/Object;JLjava/lang/Object;Ljava/lang/Object;)Z", casRefNative)
	r.Register("jdk/internal/misc/Unsafe", "compareAndSwapObject", "(Ljava/lang/Object;JLjava/lang/Object;Ljava/lang/Object;)Z", casRefNative)

	r.Register("jdk/internal/misc/Unsafe", "storeFence", "()V", func(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		atomic.AddInt32(&fenceSeq, 1)
		return vm.Value{}, nil, nil
	})
	r.Register("jdk/internal/misc/Unsafe", "loadFence", "()V", noop)
	r.Register("jdk/internal/misc/Unsafe", "fullFence", "()V", noop)
}

func casIntNative(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
	obj, offset, expect, update := args[0].Ref, args[1].Int64(), args[2].Int32(), args[3].Int32()
	unsafeMu.Lock()
	defer unsafeMu.Unlock()
	cur, err := obj.GetInt32(int(offset))
	if err != nil || cur != expect {
		return vm.IntValue(0), nil, nil
	}
	obj.SetInt32(int(offset), update)
	return vm.IntValue(1), nil, nil
}

func casLongNative(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
	obj, offset, expect, update := args[0].Ref, args[1].Int64(), args[2].Int64(), args[3].Int64()
	unsafeMu.Lock()
	defer unsafeMu.Unlock()
	cur, err := obj.GetInt64(int(offset))
	if err != nil || cur != expect {
		return vm.IntValue(0), nil, nil
	}
	obj.SetInt64(int(offset), update)
	return vm.IntValue(1), nil, nil
}

func casRefNative(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
	obj, offset, expect, update := args[0].Ref, args[1].Int64(), args[2].Ref, args[3].Ref
	unsafeMu.Lock()
	defer unsafeMu.Unlock()
	cur, err := obj.GetRef(int(offset))
	if err != nil || cur != expect {
		return vm.IntValue(0), nil, nil
	}
	obj.SetRef(int(offset), update)
	return vm.IntValue(1), nil, nil
}
