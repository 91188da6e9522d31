package native

import (
	"sync"

	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

// threadsMu/goThreads maps a java/lang/Thread instance to the vm.Thread
// running it, so join/currentThread can find their way back from the
// Java-visible object to the Go-level call stack it owns.
var (
	threadsMu sync.Mutex
	goThreads = map[*heap.Object]*vm.Thread{}
	doneCh    = map[*vm.Thread]chan struct{}{}
)

func registerThreadNatives(r *Registry) {
	r.Register("java/lang/Thread", "registerNatives", "()V", noop)

	// start0 looks up the run() method on the receiver's runtime class and
	// executes it on a dedicated goroutine, the way a real JVM hands a new
	// Thread instance its own OS thread.
	r.Register("java/lang/Thread", "start0", "()V", func(vmi *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		recv := args[0].Ref
		jc := vm.ClassOf(recv)
		if jc == nil {
			return vm.Value{}, vmi.Throw("java/lang/IllegalThreadStateException", ""), nil
		}
		owner, m := vm.LookupMethod(jc, "run", "()V")
		if m == nil {
			return vm.Value{}, vmi.Throw("java/lang/IllegalThreadStateException", "no run()"), nil
		}

		done := make(chan struct{})
		gt := vmi.SpawnThread("Thread-"+jc.BinaryName, func(t *vm.Thread) {
			defer close(done)
			t.Invoke(m, owner, []vm.Value{vm.RefValue(recv)})
		})
		threadsMu.Lock()
		goThreads[recv] = gt
		doneCh[gt] = done
		threadsMu.Unlock()
		return vm.Value{}, nil, nil
	})

	r.Register("java/lang/Thread", "join", "()V", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		recv := args[0].Ref
		threadsMu.Lock()
		gt := goThreads[recv]
		var done chan struct{}
		if gt != nil {
			done = doneCh[gt]
		}
		threadsMu.Unlock()
		if done != nil {
			<-done
		}
		return vm.Value{}, nil, nil
	})

	r.Register("java/lang/Thread", "currentThread", "()Ljava/lang/Thread;", func(_ *vm.VM, t *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		threadsMu.Lock()
		defer threadsMu.Unlock()
		for obj, gt := range goThreads {
			if gt == t {
				return vm.RefValue(obj), nil, nil
			}
		}
		return vm.Value{}, nil, nil
	})

	r.Register("java/lang/Thread", "isAlive", "()Z", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		recv := args[0].Ref
		threadsMu.Lock()
		gt := goThreads[recv]
		var done chan struct{}
		if gt != nil {
			done = doneCh[gt]
		}
		threadsMu.Unlock()
		if done == nil {
			return vm.IntValue(0), nil, nil
		}
		select {
		case <-done:
			return vm.IntValue(0), nil, nil
		default:
			return vm.IntValue(1), nil, nil
		}
	})

	r.Register("java/lang/Thread", "sleep", "(J)V", noop)
}
