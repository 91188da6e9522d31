package vm

import (
	"fmt"

	"github.com/govem/govem/internal/vmerr"
	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
)

// This file is the native method bridge: the minimal environment a
// registered NativeFunc needs to resolve classes, read/write fields,
// allocate/intern strings, and raise exceptions, without reaching into
// vm's unexported fields. Package native is built entirely on top of it.

// ResolveClass loads (if necessary) and initializes name, the way GETSTATIC
// and NEW do before first use. Fails if name resolves to an array class.
func (vm *VM) ResolveClass(name string) (*JClass, error) {
	rc, err := vm.Loader.LoadClass(name)
	if err != nil {
		return nil, err
	}
	if rc.Instance == nil {
		return nil, fmt.Errorf("%s is not an instance class: %w", name, vmerr.ErrIncompatibleClassChange)
	}
	if err := vm.Linker.Initialize(rc.Instance); err != nil {
		return nil, err
	}
	return rc.Instance, nil
}

// DefineSyntheticClass registers a class built by NewSyntheticClass into the
// loader's monotone table, the way a class decoded from real bytes would be,
// so later LoadClass calls return the same instance and its static
// reference fields are folded into GC roots.
func (vm *VM) DefineSyntheticClass(jc *JClass) *JClass {
	vm.Loader.defineSynthetic(jc)
	return jc
}

// SyntheticField names one reference field a synthetic bridge class
// exposes, under its real field descriptor. Field resolution (see
// RuntimeConstantPool.ResolveField) matches by exact name+descriptor, the
// same as a real JVM's field-resolution algorithm, so a bridge class must
// declare its fields under the descriptor real compiled call sites use
// (e.g. java/lang/System.out is always typed Ljava/io/PrintStream;, never
// Ljava/lang/Object;).
type SyntheticField struct{ Name, Descriptor string }

// SyntheticMethod names one native method a synthetic bridge class exposes,
// under its real method descriptor (methods are overloaded by descriptor,
// so e.g. println has several entries with the same name).
type SyntheticMethod struct{ Name, Descriptor string }

// NewSyntheticClass builds a minimal JClass with the given reference fields
// and native methods, for native-bridge bookkeeping types (java/io/PrintStream
// and friends) that have no class-file bytes backing this VM instance. It
// is the same shape VM.raise already uses for exception classes,
// generalized here for any native-only class. Methods are registered AccPublic|AccNative with
// Code left nil, so INVOKEVIRTUAL/INVOKESTATIC resolve them exactly like a
// decoded native method and dispatch through VM.Invoke to the NativeRegistry.
func NewSyntheticClass(name string, instanceFields, staticFields []SyntheticField, methods []SyntheticMethod) *JClass {
	jc := &JClass{
		BinaryName:   name,
		Fields:       make(map[string]*JField),
		Methods:      make(map[string]*JMethod),
		staticFields: make(map[string]*JField),
		Status:       Initialized,
	}
	for i, f := range instanceFields {
		jc.Fields[memberKey(f.Name, f.Descriptor)] = &JField{
			Owner: jc, Name: f.Name, Descriptor: f.Descriptor, IsRef: true, Offset: i,
		}
	}
	jc.instanceRefCount = len(instanceFields)
	jc.StaticRefs = make([]*heap.Object, len(staticFields))
	for i, f := range staticFields {
		jc.staticFields[memberKey(f.Name, f.Descriptor)] = &JField{
			Owner: jc, Name: f.Name, Descriptor: f.Descriptor, IsStatic: true, IsRef: true, Offset: i,
		}
	}
	for _, m := range methods {
		mt, err := classfile.ParseMethodDescriptor(m.Descriptor)
		if err != nil {
			panic(fmt.Sprintf("vm: synthetic class %s method %s%s: %v", name, m.Name, m.Descriptor, err))
		}
		jc.Methods[memberKey(m.Name, m.Descriptor)] = &JMethod{
			Owner: jc, Name: m.Name, Descriptor: m.Descriptor, Type: mt,
			AccessFlags: classfile.AccPublic | classfile.AccNative,
		}
	}
	return jc
}

// NewInstance allocates a (possibly heap-collectable) instance of jc.
func (vm *VM) NewInstance(jc *JClass) (*heap.Object, error) { return vm.allocInstance(jc) }

// NewArray allocates a (possibly heap-collectable) array of the given
// length, exposed for native bridge code and CLI entry points (argv
// forwarding into main's String[] parameter) that need array creation
// without going through the ANEWARRAY/NEWARRAY opcodes.
func (vm *VM) NewArray(class heap.ClassLayout, length int32) (*heap.Object, error) {
	return vm.allocArray(class, length)
}

// NewPermanentInstance allocates jc in the never-relocated permanent
// region, for native bookkeeping objects (e.g. a PrintStream wrapping a
// process stream) that must never move or be collected.
func (vm *VM) NewPermanentInstance(jc *JClass) *heap.Object {
	return vm.Heap.AllocPermanent(jc, jc.InstanceRefCount())
}

// InternString returns the canonical java/lang/String instance for s.
func (vm *VM) InternString(s string) *heap.Object { return vm.Strings.Intern(s) }

// GetStaticField reads a static field's value as a Value, dispatching on
// its parsed descriptor.
func (vm *VM) GetStaticField(jc *JClass, name, descriptor string) (Value, error) {
	f := jc.FindStaticField(name, descriptor)
	if f == nil {
		return Value{}, fmt.Errorf("%s.%s:%s: %w", jc.BinaryName, name, descriptor, vmerr.ErrNoSuchField)
	}
	return staticValue(jc, f), nil
}

// SetStaticField writes a static field's value.
func (vm *VM) SetStaticField(jc *JClass, name, descriptor string, v Value) error {
	f := jc.FindStaticField(name, descriptor)
	if f == nil {
		return fmt.Errorf("%s.%s:%s: %w", jc.BinaryName, name, descriptor, vmerr.ErrNoSuchField)
	}
	setStaticValue(jc, f, v)
	return nil
}

// GetInstanceField reads an instance field of obj, resolved against jc's
// (and its super-chain's) field table.
func (vm *VM) GetInstanceField(obj *heap.Object, jc *JClass, name, descriptor string) (Value, error) {
	f := jc.FindInstanceField(name, descriptor)
	if f == nil {
		return Value{}, fmt.Errorf("%s.%s:%s: %w", jc.BinaryName, name, descriptor, vmerr.ErrNoSuchField)
	}
	return instanceValue(obj, f), nil
}

// SetInstanceField writes an instance field of obj.
func (vm *VM) SetInstanceField(obj *heap.Object, jc *JClass, name, descriptor string, v Value) error {
	f := jc.FindInstanceField(name, descriptor)
	if f == nil {
		return fmt.Errorf("%s.%s:%s: %w", jc.BinaryName, name, descriptor, vmerr.ErrNoSuchField)
	}
	setInstanceValue(obj, f, v)
	return nil
}

// LookupMethod resolves (name, descriptor) starting at jc via the same
// defining-class -> super-class -> super-interface walk used by symbolic
// method resolution and virtual dispatch.
func LookupMethod(jc *JClass, name, descriptor string) (*JClass, *JMethod) {
	return lookupMethod(jc, name, descriptor)
}

// ClassOf returns obj's runtime class as a *JClass, or nil if obj is an
// array (use InstanceOf/ResolvedClass for array-aware checks).
func ClassOf(obj *heap.Object) *JClass {
	jc, _ := obj.Class.(*JClass)
	return jc
}

// MirrorOf returns the java/lang/Class instance naming obj's runtime class,
// whether obj's class is a plain instance class or an array class; both
// carry a Mirror allocated at link/array-creation time.
func MirrorOf(obj *heap.Object) *heap.Object {
	switch c := obj.Class.(type) {
	case *JClass:
		return c.Mirror
	case *ArrayClass:
		return c.Mirror
	}
	return nil
}

// Throw allocates a Java exception instance (loading the real class if
// present, else a minimal synthetic stand-in) and reports it as an
// UnwindResult, for a native method that wants to raise a Java-visible
// exception instead of returning normally.
func (vm *VM) Throw(className, message string) *UnwindResult { return vm.throw(className, message) }

// CurrentThreadID exposes the invoking thread's identity to natives
// (Thread.currentThread()).
func (t *Thread) CurrentThreadID() int64 { return t.ID }

// CaptureStackTrace walks t's live frame chain, innermost frame first,
// the way Throwable.fillInStackTrace snapshots the call stack at
// construction time.
func (t *Thread) CaptureStackTrace() []StackTraceElement {
	var trace []StackTraceElement
	for f := t.top; f != nil; f = f.Prev {
		trace = append(trace, StackTraceElement{
			ClassName:  f.Class.BinaryName,
			MethodName: f.Method.Name,
			Line:       f.LineNumber(),
		})
	}
	return trace
}

// SpawnThread registers a new Thread and runs fn on a dedicated goroutine,
// giving Thread.start0 real concurrent semantics: one goroutine per Java
// thread. SpawnThread is the minimal seam vm exposes for the native
// package's Thread support to build on.
func (vm *VM) SpawnThread(name string, fn func(t *Thread)) *Thread {
	t := vm.NewThread(name)
	go fn(t)
	return t
}

// defineSynthetic installs jc into the loader's monotone class table under
// its own binary name, as if it had been decoded and prepared normally.
func (cl *BootstrapClassLoader) defineSynthetic(jc *JClass) {
	if _, exists := cl.classes[jc.BinaryName]; exists {
		return
	}
	cl.classes[jc.BinaryName] = jc
}
