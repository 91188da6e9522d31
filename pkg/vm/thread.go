package vm

import (
	"fmt"
	"sync"

	"github.com/govem/govem/internal/vmerr"
	"github.com/govem/govem/pkg/heap"
)

// NativeFunc implements one native method body. Returning a
// non-nil UnwindResult models the native throwing; returning a Go error
// models a host-side failure unrelated to the Java exception model (e.g.
// I/O failure backing System.out).
type NativeFunc func(vm *VM, thread *Thread, args []Value) (Value, *UnwindResult, error)

// NativeRegistry resolves (class, method, descriptor) to a native body;
// a miss surfaces as UnsatisfiedLinkError at the invoke site.
type NativeRegistry interface {
	Lookup(className, methodName, descriptor string) (NativeFunc, bool)
}

// VM owns the heap, class loader, native registry, and thread list.
// Nothing is process-global: every test constructs its own VM.
type VM struct {
	Loader  *BootstrapClassLoader
	Linker  *ClassLinker
	Heap    *heap.Heap
	Strings *heap.StringHeap
	Natives NativeRegistry

	mu            sync.Mutex
	threads       []*Thread
	nextThreadID  int64
	synthExcCache map[string]*JClass
	linkerThread  *Thread
}

// NewVM wires a loader+linker pair to a fresh VM and hands the linker a
// back-reference so it can invoke <clinit> through the interpreter.
func NewVM(h *heap.Heap, strings *heap.StringHeap, loader *BootstrapClassLoader, linker *ClassLinker, natives NativeRegistry) *VM {
	vm := &VM{Loader: loader, Linker: linker, Heap: h, Strings: strings, Natives: natives}
	linker.vm = vm
	return vm
}

// Thread is one JVM thread's call stack.
type Thread struct {
	VM   *VM
	ID   int64
	Name string
	top  *Frame
}

// FrameDepth reports how many frames are currently on t's call stack, for
// diagnostic tools (the `watch` TUI) that sample live thread state without
// reaching into the unexported frame chain.
func (t *Thread) FrameDepth() int {
	n := 0
	for f := t.top; f != nil; f = f.Prev {
		n++
	}
	return n
}

// NewThread registers and returns a fresh thread under vm.
func (vm *VM) NewThread(name string) *Thread {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.nextThreadID++
	t := &Thread{VM: vm, ID: vm.nextThreadID, Name: name}
	vm.threads = append(vm.threads, t)
	return t
}

func (vm *VM) linkerThreadLazy() *Thread {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.linkerThread == nil {
		vm.nextThreadID++
		vm.linkerThread = &Thread{VM: vm, ID: vm.nextThreadID, Name: "linker"}
		vm.threads = append(vm.threads, vm.linkerThread)
	}
	return vm.linkerThread
}

// invokeDirect is the entry point ClassLinker.Initialize uses to run
// <clinit>, off of a dedicated internal thread rather than whichever
// thread happened to trigger initialization. A fully concurrent core
// would instead block other threads until initialization completes.
func (vm *VM) invokeDirect(method *JMethod, class *JClass, args []Value) (Value, *UnwindResult, error) {
	return vm.Invoke(vm.linkerThreadLazy(), method, class, args)
}

// Invoke runs method on class with args: native methods
// dispatch to the registry or fail with ErrUnsatisfiedLink; Java methods
// get a fresh frame with args copied into the bottom locals (category-2
// arguments occupy two consecutive slots) and run to completion or unwind.
func (t *Thread) Invoke(method *JMethod, class *JClass, args []Value) (Value, *UnwindResult, error) {
	return t.VM.Invoke(t, method, class, args)
}

func (vm *VM) Invoke(t *Thread, method *JMethod, class *JClass, args []Value) (Value, *UnwindResult, error) {
	if method.IsNative() {
		if vm.Natives == nil {
			return Value{}, nil, fmt.Errorf("%s.%s%s: %w", class.BinaryName, method.Name, method.Descriptor, vmerr.ErrUnsatisfiedLink)
		}
		fn, ok := vm.Natives.Lookup(class.BinaryName, method.Name, method.Descriptor)
		if !ok {
			return Value{}, nil, fmt.Errorf("%s.%s%s: %w", class.BinaryName, method.Name, method.Descriptor, vmerr.ErrUnsatisfiedLink)
		}
		return fn(vm, t, args)
	}
	if method.Code == nil {
		return Value{}, nil, fmt.Errorf("%s.%s%s: abstract or code-less method invoked directly: %w", class.BinaryName, method.Name, method.Descriptor, vmerr.ErrIncompatibleClassChange)
	}

	frame := NewFrame(method, class)
	idx := 0
	for _, a := range args {
		frame.SetLocal(idx, a)
		idx++
		if a.IsCategory2() {
			idx++
		}
	}

	frame.Prev = t.top
	t.top = frame
	defer func() { t.top = frame.Prev }()

	v, unwind, err := interpret(t, frame)
	if unwind != nil {
		unwind.appendFrame(class.BinaryName, method.Name, frame.LineNumber())
	}
	return v, unwind, err
}

// Threads returns a snapshot of every thread registered with vm, for
// diagnostic tools that want to report per-thread frame depth.
func (vm *VM) Threads() []*Thread {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]*Thread(nil), vm.threads...)
}

// rootSet assembles the full external GC root set: every
// pinned handle, every static reference field of every loaded class, and
// every live thread's frame-local/operand reference slots.
func (vm *VM) rootSet() []heap.RefLocation {
	roots := vm.Heap.PinRoots()
	roots = append(roots, vm.Loader.StaticRoots()...)

	vm.mu.Lock()
	threads := append([]*Thread(nil), vm.threads...)
	vm.mu.Unlock()

	for _, th := range threads {
		for f := th.top; f != nil; f = f.Prev {
			roots = append(roots, f.RootLocations()...)
		}
	}
	return roots
}

// collect is the heap.CollectFunc the VM hands to Alloc/AllocArray: it runs
// one Cheney cycle against the full root set, computed fresh each time
// since frame/static contents change between allocations.
func (vm *VM) collect(_ []heap.RefLocation) {
	vm.Heap.RunCycle(vm.rootSet())
}

// CollectGarbage forces an immediate GC cycle against the VM's full root
// set (pins, static fields, every thread's live frames), for diagnostic
// tools and tests that can't wait for an allocation to trigger one.
func (vm *VM) CollectGarbage() { vm.Heap.RunCycle(vm.rootSet()) }

func (vm *VM) allocInstance(jc *JClass) (*heap.Object, error) {
	return vm.Heap.Alloc(jc, vm.collect, vm.rootSet())
}

func (vm *VM) allocArray(class heap.ClassLayout, length int32) (*heap.Object, error) {
	return vm.Heap.AllocArray(class, length, vm.collect, vm.rootSet())
}

func (vm *VM) syntheticExceptionClass(name string) *JClass {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.synthExcCache == nil {
		vm.synthExcCache = make(map[string]*JClass)
	}
	if jc, ok := vm.synthExcCache[name]; ok {
		return jc
	}
	jc := &JClass{
		BinaryName:   name,
		Fields:       make(map[string]*JField),
		Methods:      make(map[string]*JMethod),
		staticFields: make(map[string]*JField),
		Status:       Initialized,
	}
	jc.Fields["message\x00Ljava/lang/String;"] = &JField{
		Owner: jc, Name: "message", Descriptor: "Ljava/lang/String;", IsRef: true, Offset: 0,
	}
	jc.instanceRefCount = 1
	vm.synthExcCache[name] = jc
	// Register with the loader too, so an exception-table catchType naming
	// this class resolves to the same record and handler matching works.
	if vm.Loader != nil {
		vm.Loader.defineSynthetic(jc)
	}
	return jc
}

// raise allocates a Java exception instance of the given binary class
// name, loading the real class if the bootstrap archive/classpath has it
// and falling back to a minimal synthetic class, so VM exceptions stay
// observable by class name and message even when no full JDK image backs
// this VM instance, e.g. under test.
func (vm *VM) raise(className, message string) *heap.Object {
	var jc *JClass
	if rc, err := vm.Loader.LoadClass(className); err == nil && rc.Instance != nil {
		jc = rc.Instance
		_ = vm.Linker.Initialize(jc)
	} else {
		jc = vm.syntheticExceptionClass(className)
	}

	obj, err := vm.allocInstance(jc)
	if err != nil {
		obj = vm.Heap.AllocPermanent(jc, jc.InstanceRefCount())
	}
	if f := jc.FindInstanceField("message", "Ljava/lang/String;"); f != nil && vm.Strings != nil {
		obj.SetRef(f.Offset, vm.Strings.Intern(message))
	}
	return obj
}

func (vm *VM) throw(className, message string) *UnwindResult {
	return newUnwind(vm.raise(className, message))
}
