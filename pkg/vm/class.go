// Package vm implements the class loader/linker, runtime constant pool,
// frame/interpreter, and per-thread call stack of the execution core.
package vm

import (
	"sync"

	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
)

// LinkageStatus is a class's position in the Allocated -> Prepared ->
// UnderInitialization -> Initialized lifecycle.
type LinkageStatus int

const (
	Allocated LinkageStatus = iota
	Prepared
	UnderInitialization
	Initialized
)

func (s LinkageStatus) String() string {
	switch s {
	case Allocated:
		return "Allocated"
	case Prepared:
		return "Prepared"
	case UnderInitialization:
		return "UnderInitialization"
	case Initialized:
		return "Initialized"
	default:
		return "Unknown"
	}
}

// JField is one field of a JClass: instance fields address Offset into an
// Instance's Primitives/Refs (depending on IsRef); static fields address
// Offset into the owning class's StaticPrimitives/StaticRefs.
type JField struct {
	Owner       *JClass
	Name        string
	Descriptor  string
	Type        classfile.FieldType
	AccessFlags uint16
	IsStatic    bool
	IsRef       bool
	Offset      int // byte offset (primitive) or slot index (ref)
}

func (f *JField) IsCategory2() bool { return f.Type.IsCategory2() }

// JMethod is one method of a JClass.
type JMethod struct {
	Owner       *JClass
	Name        string
	Descriptor  string
	Type        classfile.MethodType
	AccessFlags uint16
	Code        *classfile.CodeAttribute // nil for abstract/native
	Exceptions  []string
}

func (m *JMethod) IsStatic() bool   { return m.AccessFlags&classfile.AccStatic != 0 }
func (m *JMethod) IsNative() bool   { return m.AccessFlags&classfile.AccNative != 0 }
func (m *JMethod) IsAbstract() bool { return m.AccessFlags&classfile.AccAbstract != 0 }

// memberKey identifies a method or field by name+descriptor, since JVM
// overloading means name alone is not unique.
func memberKey(name, descriptor string) string { return name + "\x00" + descriptor }

// JClass is an Instance-kind loaded class: a decoded ClassFile plus all
// link-time-derived metadata (field layout, method table, runtime
// constant pool, mirror instance).
type JClass struct {
	BinaryName string
	ClassFile  *classfile.ClassFile
	Super      *JClass // nil only for java/lang/Object
	Interfaces []*JClass

	Fields  map[string]*JField // instance fields, keyed by memberKey
	Methods map[string]*JMethod

	instancePrimBytes int
	instanceRefCount  int

	StaticPrimitives []byte
	StaticRefs       []*heap.Object
	staticFields     map[string]*JField

	RuntimePool *RuntimeConstantPool

	Mirror *heap.Object

	mu     sync.Mutex
	Status LinkageStatus
}

// heap.ClassLayout implementation.
func (c *JClass) Name() string          { return c.BinaryName }
func (c *JClass) IsArray() bool         { return false }
func (c *JClass) InstanceSize() int     { return c.instancePrimBytes }
func (c *JClass) InstanceRefCount() int { return c.instanceRefCount }
func (c *JClass) ComponentWidth() int   { return 0 }
func (c *JClass) ComponentIsRef() bool  { return false }

// FindInstanceField looks up an instance field by name+descriptor,
// searching the super-class chain (fields are inherited for access, not
// redeclared).
func (c *JClass) FindInstanceField(name, descriptor string) *JField {
	for cur := c; cur != nil; cur = cur.Super {
		if f, ok := cur.Fields[memberKey(name, descriptor)]; ok && !f.IsStatic {
			return f
		}
	}
	return nil
}

// FindStaticField looks up a static field declared directly on c (JVM
// static field resolution does not traverse the hierarchy the way method
// resolution does, though callers typically walk the chain themselves per
// GETSTATIC/PUTSTATIC resolution rules).
func (c *JClass) FindStaticField(name, descriptor string) *JField {
	if f, ok := c.staticFields[memberKey(name, descriptor)]; ok {
		return f
	}
	return nil
}

// FindMethodDeclared looks up a method declared directly on c, not
// traversing super classes/interfaces.
func (c *JClass) FindMethodDeclared(name, descriptor string) *JMethod {
	if m, ok := c.Methods[memberKey(name, descriptor)]; ok {
		return m
	}
	return nil
}

// IsSubclassOf reports whether c is t or a (possibly indirect) subclass
// of t.
func (c *JClass) IsSubclassOf(t *JClass) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == t {
			return true
		}
	}
	return false
}

// implementsInterface reports whether c or any ancestor declares t among
// its transitive super-interfaces.
func (c *JClass) implementsInterface(t *JClass) bool {
	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			if iface == t || iface.implementsInterface(t) {
				return true
			}
		}
	}
	return false
}

func (c *JClass) IsInterface() bool {
	return c.ClassFile != nil && c.ClassFile.AccessFlags&classfile.AccInterface != 0
}

// staticRefRoot is a heap.RefLocation over one slot of a class's static
// reference-field block, used to fold every loaded class's static fields
// into the GC root set.
type staticRefRoot struct {
	jc  *JClass
	idx int
}

func (r staticRefRoot) Get() *heap.Object  { return r.jc.StaticRefs[r.idx] }
func (r staticRefRoot) Set(v *heap.Object) { r.jc.StaticRefs[r.idx] = v }

// ValueFieldIndex satisfies heap.StringClass: the Refs index of
// java/lang/String's `value` field, used by heap.StringHeap to wire the
// backing char array into every interned instance.
func (c *JClass) ValueFieldIndex() int {
	if f := c.FindInstanceField("value", "[C"); f != nil {
		return f.Offset
	}
	return 0
}

// ArrayClass is an Array-kind class. Its super class is
// always java/lang/Object; it implements Cloneable and java/io/Serializable
// (checked structurally in instanceOf, not via the Interfaces list).
type ArrayClass struct {
	BinaryName    string
	Dimensions    int
	ComponentBase classfile.BaseType // set if the innermost component is primitive
	ComponentJC   *JClass            // set if the innermost component is a class/interface
	ObjectClass   *JClass            // java/lang/Object, for assignability checks

	Mirror *heap.Object
}

func (a *ArrayClass) Name() string  { return a.BinaryName }
func (a *ArrayClass) IsArray() bool { return true }

func (a *ArrayClass) InstanceSize() int     { return 0 }
func (a *ArrayClass) InstanceRefCount() int { return 0 }

// ComponentWidth returns the native byte width of one element one
// dimension down. A multi-dimensional array's component is itself a
// reference (to the next-rank sub-array), so only a 1-D array of
// primitives has a nonzero primitive width.
func (a *ArrayClass) ComponentWidth() int {
	if a.Dimensions > 1 || a.ComponentJC != nil {
		return 0
	}
	return primitiveWidth(a.ComponentBase)
}

func (a *ArrayClass) ComponentIsRef() bool {
	return a.Dimensions > 1 || a.ComponentJC != nil
}

func primitiveWidth(b classfile.BaseType) int {
	switch b {
	case classfile.BaseByte, classfile.BaseBoolean:
		return 1
	case classfile.BaseChar, classfile.BaseShort:
		return 2
	case classfile.BaseInt, classfile.BaseFloat:
		return 4
	case classfile.BaseLong, classfile.BaseDouble:
		return 8
	default:
		return 0
	}
}
