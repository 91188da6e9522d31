package vm

import (
	"fmt"
	"sync"

	"github.com/govem/govem/internal/vmerr"
	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
)

// RuntimeConstantPool is the per-class cache of resolved symbolic
// references layered over the immutable classfile.ConstantPool. All
// caches are keyed by CP index and populated lazily.
type RuntimeConstantPool struct {
	cp     *classfile.ConstantPool
	loader *BootstrapClassLoader

	mu       sync.Mutex
	classes  map[uint16]*ResolvedClass
	fields   map[uint16]*ResolvedField
	methods  map[uint16]*ResolvedMethod
	ifaceMds map[uint16]*ResolvedMethod
}

func NewRuntimeConstantPool(cp *classfile.ConstantPool, loader *BootstrapClassLoader) *RuntimeConstantPool {
	return &RuntimeConstantPool{
		cp:       cp,
		loader:   loader,
		classes:  make(map[uint16]*ResolvedClass),
		fields:   make(map[uint16]*ResolvedField),
		methods:  make(map[uint16]*ResolvedMethod),
		ifaceMds: make(map[uint16]*ResolvedMethod),
	}
}

// ResolvedField is a field reference resolved to its defining class.
type ResolvedField struct {
	Class *JClass
	Field *JField
}

// ResolvedMethod is a method reference resolved to the class that
// actually declares the method body (after super-chain/interface walk).
type ResolvedMethod struct {
	Class  *JClass
	Method *JMethod
}

// ResolveClass resolves a CONSTANT_Class entry at index, lazily.
func (rp *RuntimeConstantPool) ResolveClass(index uint16) (*ResolvedClass, error) {
	rp.mu.Lock()
	if rc, ok := rp.classes[index]; ok {
		rp.mu.Unlock()
		return rc, nil
	}
	rp.mu.Unlock()

	name, err := rp.cp.ClassName(index)
	if err != nil {
		return nil, err
	}
	rc, err := rp.loader.LoadClass(name)
	if err != nil {
		return nil, err
	}
	rp.mu.Lock()
	rp.classes[index] = rc
	rp.mu.Unlock()
	return rc, nil
}

// ResolveField resolves a CONSTANT_Fieldref, walking the super-class
// chain if the field is not declared directly on the referenced class.
func (rp *RuntimeConstantPool) ResolveField(index uint16) (*ResolvedField, error) {
	rp.mu.Lock()
	if rf, ok := rp.fields[index]; ok {
		rp.mu.Unlock()
		return rf, nil
	}
	rp.mu.Unlock()

	ref, err := rp.cp.Fieldref(index)
	if err != nil {
		return nil, err
	}
	rc, err := rp.loader.LoadClass(ref.ClassName)
	if err != nil {
		return nil, err
	}
	if rc.Instance == nil {
		return nil, fmt.Errorf("fieldref %s.%s on a non-instance class: %w", ref.ClassName, ref.Name, vmerr.ErrIncompatibleClassChange)
	}

	for cur := rc.Instance; cur != nil; cur = cur.Super {
		if f, ok := cur.Fields[memberKey(ref.Name, ref.Descriptor)]; ok {
			rf := &ResolvedField{Class: cur, Field: f}
			rp.mu.Lock()
			rp.fields[index] = rf
			rp.mu.Unlock()
			return rf, nil
		}
		if f := cur.FindStaticField(ref.Name, ref.Descriptor); f != nil {
			rf := &ResolvedField{Class: cur, Field: f}
			rp.mu.Lock()
			rp.fields[index] = rf
			rp.mu.Unlock()
			return rf, nil
		}
	}
	return nil, fmt.Errorf("%s.%s:%s: %w", ref.ClassName, ref.Name, ref.Descriptor, vmerr.ErrNoSuchField)
}

// ResolveMethod resolves a CONSTANT_Methodref, walking the super-class
// chain, then (for default methods) the super-interface chain.
func (rp *RuntimeConstantPool) ResolveMethod(index uint16) (*ResolvedMethod, error) {
	rp.mu.Lock()
	if rm, ok := rp.methods[index]; ok {
		rp.mu.Unlock()
		return rm, nil
	}
	rp.mu.Unlock()

	ref, err := rp.cp.Methodref(index)
	if err != nil {
		return nil, err
	}
	rc, err := rp.loader.LoadClass(ref.ClassName)
	if err != nil {
		return nil, err
	}
	if rc.Instance == nil {
		return nil, fmt.Errorf("methodref %s.%s on a non-instance class: %w", ref.ClassName, ref.Name, vmerr.ErrIncompatibleClassChange)
	}
	rm, err := rp.resolveMethodByName(rc.Instance, ref.Name, ref.Descriptor)
	if err != nil {
		return nil, err
	}
	rp.mu.Lock()
	rp.methods[index] = rm
	rp.mu.Unlock()
	return rm, nil
}

// ResolveInterfaceMethod resolves a CONSTANT_InterfaceMethodref.
func (rp *RuntimeConstantPool) ResolveInterfaceMethod(index uint16) (*ResolvedMethod, error) {
	rp.mu.Lock()
	if rm, ok := rp.ifaceMds[index]; ok {
		rp.mu.Unlock()
		return rm, nil
	}
	rp.mu.Unlock()

	ref, err := rp.cp.InterfaceMethodref(index)
	if err != nil {
		return nil, err
	}
	rc, err := rp.loader.LoadClass(ref.ClassName)
	if err != nil {
		return nil, err
	}
	if rc.Instance == nil {
		return nil, fmt.Errorf("interface methodref %s.%s on a non-instance class: %w", ref.ClassName, ref.Name, vmerr.ErrIncompatibleClassChange)
	}
	rm, err := rp.resolveMethodByName(rc.Instance, ref.Name, ref.Descriptor)
	if err != nil {
		return nil, err
	}
	rp.mu.Lock()
	rp.ifaceMds[index] = rm
	rp.mu.Unlock()
	return rm, nil
}

// resolveMethodByName implements method lookup order: defining class,
// then super-class chain, then super-interfaces depth-first (for default
// methods).
func (rp *RuntimeConstantPool) resolveMethodByName(jc *JClass, name, descriptor string) (*ResolvedMethod, error) {
	if cur, m := lookupMethod(jc, name, descriptor); m != nil {
		return &ResolvedMethod{Class: cur, Method: m}, nil
	}
	return nil, fmt.Errorf("%s.%s:%s: %w", jc.BinaryName, name, descriptor, vmerr.ErrNoSuchMethod)
}

// lookupMethod implements method lookup starting at jc: the defining
// class's own table, then its super-class chain, then the super-interface
// graph depth-first (for default methods). Shared by symbolic resolution
// (above) and by virtual/interface dispatch's runtime-class re-lookup
// (interpreter.go), which restarts this same walk from the receiver's
// actual runtime class rather than the compile-time-resolved one.
func lookupMethod(jc *JClass, name, descriptor string) (*JClass, *JMethod) {
	for cur := jc; cur != nil; cur = cur.Super {
		if m := cur.FindMethodDeclared(name, descriptor); m != nil {
			return cur, m
		}
	}
	for cur := jc; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			if c, m := lookupInInterface(iface, name, descriptor); m != nil {
				return c, m
			}
		}
	}
	return nil, nil
}

func lookupInInterface(iface *JClass, name, descriptor string) (*JClass, *JMethod) {
	if m := iface.FindMethodDeclared(name, descriptor); m != nil {
		return iface, m
	}
	for _, super := range iface.Interfaces {
		if c, m := lookupInInterface(super, name, descriptor); m != nil {
			return c, m
		}
	}
	return nil, nil
}

// ResolveString interns the payload of the CONSTANT_String entry at index
// via the VM's StringHeap, returning the java/lang/String instance.
func (rp *RuntimeConstantPool) ResolveString(index uint16, strings *heap.StringHeap) (*heap.Object, error) {
	s, err := rp.cp.StringLiteral(index)
	if err != nil {
		return nil, err
	}
	return strings.Intern(s), nil
}
