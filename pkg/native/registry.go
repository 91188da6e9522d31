// Package native implements the native-method registry the core consumes
// as a capability: a lookup from (class, method, descriptor) to a Go
// function body, plus the minimal java/lang/Object, System, Throwable,
// Class, Thread, and jdk/internal/misc/Unsafe natives a running VM needs.
// Package vm never imports this package.
package native

import (
	"io"
	"sync"

	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

// Registry is a vm.NativeRegistry backed by a plain map, keyed as
// "class/name.method:descriptor".
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]vm.NativeFunc

	streamsMu            sync.Mutex
	streams              map[*heap.Object]io.Writer
	stdoutObj, stderrObj *heap.Object

	primMirrorsMu sync.Mutex
	primMirrors   map[byte]*heap.Object
}

func key(class, method, descriptor string) string {
	return class + "." + method + ":" + descriptor
}

// NewRegistry builds an empty registry. Call Bootstrap to populate it with
// the standard natives and wire java/lang/System's out/err streams.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]vm.NativeFunc)}
}

// Register installs fn under (class, method, descriptor), overwriting any
// previous registration. Later registrations win, the way a real JVM's
// JNI_OnLoad can replace a weak binding.
func (r *Registry) Register(class, method, descriptor string, fn vm.NativeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key(class, method, descriptor)] = fn
}

// Lookup implements vm.NativeRegistry.
func (r *Registry) Lookup(className, methodName, descriptor string) (vm.NativeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[key(className, methodName, descriptor)]
	return fn, ok
}

// noop is shared by every *.registerNatives:()V binding: the real JDK uses
// it to wire JNI function tables we have no equivalent for.
func noop(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
	return vm.Value{}, nil, nil
}

// Bootstrap registers every native this package implements and wires
// java/lang/System's static out/err fields to stdout/stderr, the way a
// real VM's System.initPhase1 does before any Java code runs. Safe to call
// once per VM instance, before invoking user code.
func Bootstrap(v *vm.VM, stdout, stderr io.Writer) (*Registry, error) {
	r := NewRegistry()
	registerObjectNatives(r)
	registerClassNatives(r)
	registerSystemNatives(r)
	registerThrowableNatives(r)
	registerThreadNatives(r)
	registerUnsafeNatives(r)

	if err := r.wireSystemStreams(v, stdout, stderr); err != nil {
		return nil, err
	}
	return r, nil
}
