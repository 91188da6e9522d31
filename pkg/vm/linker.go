package vm

import (
	"fmt"

	"github.com/govem/govem/internal/vmerr"
	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
)

// ClassLinker turns a decoded class file into a usable JClass: Prepare
// lays out fields and builds the method table; Initialize runs <clinit>
// (recursively, reentrant-safe).
type ClassLinker struct {
	loader *BootstrapClassLoader // back-reference, set by NewBootstrapClassLoader
	heap   *heap.Heap
	vm     *VM // for invoking <clinit> through the interpreter
}

func NewClassLinker(h *heap.Heap) *ClassLinker {
	return &ClassLinker{heap: h}
}

// classMirrorLayout is the fixed shape of every java/lang/Class mirror:
// one ref field (the interned name string).
type classMirrorLayout struct{ name string }

func (classMirrorLayout) Name() string          { return "java/lang/Class" }
func (classMirrorLayout) IsArray() bool         { return false }
func (classMirrorLayout) InstanceSize() int     { return 0 }
func (classMirrorLayout) InstanceRefCount() int { return 1 }
func (classMirrorLayout) ComponentWidth() int   { return 0 }
func (classMirrorLayout) ComponentIsRef() bool  { return false }

func (l *ClassLinker) newMirror(binaryName string) *heap.Object {
	if l.heap == nil {
		return nil
	}
	obj := l.heap.AllocPermanent(classMirrorLayout{name: binaryName}, 1)
	if l.vm != nil && l.vm.Strings != nil {
		nameStr := l.vm.Strings.Intern(binaryName)
		obj.SetRef(0, nameStr)
	}
	return obj
}

// Prepare performs Allocated -> Prepared. It recursively prepares the
// super-class and super-interfaces first.
func (l *ClassLinker) Prepare(cf *classfile.ClassFile) (*JClass, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving this_class: %v", vmerr.ErrClassFormat, err)
	}

	jc := &JClass{
		BinaryName:   name,
		ClassFile:    cf,
		Fields:       make(map[string]*JField),
		Methods:      make(map[string]*JMethod),
		staticFields: make(map[string]*JField),
		Status:       Allocated,
	}

	superName, err := cf.SuperClassName()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving super_class of %s: %v", vmerr.ErrClassFormat, name, err)
	}
	if superName != "" {
		resolved, err := l.loader.LoadClass(superName)
		if err != nil {
			return nil, err
		}
		jc.Super = resolved.Instance
	}

	ifaceNames, err := cf.InterfaceNames()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving interfaces of %s: %v", vmerr.ErrClassFormat, name, err)
	}
	for _, ifaceName := range ifaceNames {
		resolved, err := l.loader.LoadClass(ifaceName)
		if err != nil {
			return nil, err
		}
		jc.Interfaces = append(jc.Interfaces, resolved.Instance)
	}

	if err := l.layoutFields(jc, cf); err != nil {
		return nil, err
	}
	if err := l.buildMethodTable(jc, cf); err != nil {
		return nil, err
	}

	jc.RuntimePool = NewRuntimeConstantPool(cf.ConstantPool, l.loader)
	jc.Mirror = l.newMirror(name)
	jc.Status = Prepared
	return jc, nil
}

func (l *ClassLinker) layoutFields(jc *JClass, cf *classfile.ClassFile) error {
	instPrimCursor := 0
	instRefCursor := 0
	staticPrimCursor := 0
	staticRefCursor := 0
	if jc.Super != nil {
		instPrimCursor = jc.Super.instancePrimBytes
		instRefCursor = jc.Super.instanceRefCount
	}

	for i := range cf.Fields {
		fi := &cf.Fields[i]
		ft, err := classfile.ParseDescriptor(fi.Descriptor)
		if err != nil {
			return fmt.Errorf("%w: field %s.%s descriptor %q: %v", vmerr.ErrClassFormat, jc.BinaryName, fi.Name, fi.Descriptor, err)
		}

		field := &JField{
			Owner:       jc,
			Name:        fi.Name,
			Descriptor:  fi.Descriptor,
			Type:        ft,
			AccessFlags: fi.AccessFlags,
			IsStatic:    fi.AccessFlags&classfile.AccStatic != 0,
			IsRef:       ft.IsReference(),
		}

		if field.IsStatic {
			if field.IsRef {
				field.Offset = staticRefCursor
				staticRefCursor++
			} else {
				field.Offset = staticPrimCursor
				staticPrimCursor += primFieldWidth(ft)
			}
			jc.staticFields[memberKey(fi.Name, fi.Descriptor)] = field
		} else {
			if field.IsRef {
				field.Offset = instRefCursor
				instRefCursor++
			} else {
				field.Offset = instPrimCursor
				instPrimCursor += primFieldWidth(ft)
			}
		}
		jc.Fields[memberKey(fi.Name, fi.Descriptor)] = field
	}

	jc.instancePrimBytes = instPrimCursor
	jc.instanceRefCount = instRefCursor
	jc.StaticPrimitives = make([]byte, staticPrimCursor)
	jc.StaticRefs = make([]*heap.Object, staticRefCursor)
	return nil
}

// primFieldWidth returns the byte footprint of a primitive field: 8 for
// category-2 types (long/double), 4 otherwise. Every category-1
// primitive gets a uniform 4 bytes regardless of its JVM descriptor
// width, which is simpler than packing booleans/bytes/chars/shorts at
// their native JVM width and is not observable from bytecode (fields are
// always addressed by the linker's own offsets, never by raw pointer
// arithmetic).
func primFieldWidth(ft classfile.FieldType) int {
	if ft.IsCategory2() {
		return 8
	}
	return 4
}

func (l *ClassLinker) buildMethodTable(jc *JClass, cf *classfile.ClassFile) error {
	for i := range cf.Methods {
		mi := &cf.Methods[i]
		mt, err := classfile.ParseMethodDescriptor(mi.Descriptor)
		if err != nil {
			return fmt.Errorf("%w: method %s.%s descriptor %q: %v", vmerr.ErrClassFormat, jc.BinaryName, mi.Name, mi.Descriptor, err)
		}
		jc.Methods[memberKey(mi.Name, mi.Descriptor)] = &JMethod{
			Owner:       jc,
			Name:        mi.Name,
			Descriptor:  mi.Descriptor,
			Type:        mt,
			AccessFlags: mi.AccessFlags,
			Code:        mi.Code,
			Exceptions:  mi.Exceptions,
		}
	}
	return nil
}

// Initialize performs Prepared -> Initialized: recursively initializes
// super-class and super-interfaces, copies ConstantValue into static
// slots, and invokes <clinit>()V. Reentrant: a class already
// UnderInitialization on the calling thread's path returns immediately.
func (l *ClassLinker) Initialize(jc *JClass) error {
	jc.mu.Lock()
	switch jc.Status {
	case Initialized, UnderInitialization:
		jc.mu.Unlock()
		return nil
	}
	jc.Status = UnderInitialization
	jc.mu.Unlock()

	if jc.Super != nil {
		if err := l.Initialize(jc.Super); err != nil {
			return err
		}
	}
	for _, iface := range jc.Interfaces {
		if err := l.Initialize(iface); err != nil {
			return err
		}
	}

	l.applyConstantValues(jc)

	if clinit := jc.FindMethodDeclared("<clinit>", "()V"); clinit != nil {
		if _, unwind, err := l.vm.invokeDirect(clinit, jc, nil); err != nil {
			return err
		} else if unwind != nil {
			return fmt.Errorf("uncaught exception in %s.<clinit>: %s", jc.BinaryName, unwind.Exception.ClassName())
		}
	}

	jc.mu.Lock()
	jc.Status = Initialized
	jc.mu.Unlock()
	return nil
}

func (l *ClassLinker) applyConstantValues(jc *JClass) {
	for i := range jc.ClassFile.Fields {
		fi := &jc.ClassFile.Fields[i]
		if fi.ConstantValue == nil {
			continue
		}
		field := jc.staticFields[memberKey(fi.Name, fi.Descriptor)]
		if field == nil {
			continue
		}
		switch cv := fi.ConstantValue.(type) {
		case *classfile.ConstantInteger:
			putStaticInt32(jc, field, cv.Value)
		case *classfile.ConstantFloat:
			putStaticFloat32(jc, field, cv.Value)
		case *classfile.ConstantLong:
			putStaticInt64(jc, field, cv.Value)
		case *classfile.ConstantDouble:
			putStaticFloat64(jc, field, cv.Value)
		case *classfile.ConstantString:
			if l.vm != nil {
				s, err := jc.ClassFile.ConstantPool.Utf8(cv.StringIndex)
				if err == nil {
					jc.StaticRefs[field.Offset] = l.vm.Strings.Intern(s)
				}
			}
		}
	}
}

// --- instanceOf: assignability rules ---

// InstanceOf reports whether a value of runtime class s is assignable to
// static type t. s and t are each either *JClass or *ArrayClass, surfaced
// uniformly as *ResolvedClass.
func InstanceOf(s, t *ResolvedClass) bool {
	switch {
	case s.Array != nil:
		return arrayInstanceOf(s.Array, t)
	case s.Instance.IsInterface():
		return interfaceInstanceOf(s.Instance, t)
	default:
		return classInstanceOf(s.Instance, t)
	}
}

func classInstanceOf(s *JClass, t *ResolvedClass) bool {
	if t.Array != nil {
		return false
	}
	if t.Instance.IsInterface() {
		return s.implementsInterface(t.Instance)
	}
	return s.IsSubclassOf(t.Instance)
}

func interfaceInstanceOf(s *JClass, t *ResolvedClass) bool {
	if t.Array != nil {
		return false
	}
	if !t.Instance.IsInterface() {
		return t.Instance.Super == nil // java/lang/Object has no super
	}
	if s == t.Instance {
		return true
	}
	return s.implementsInterface(t.Instance)
}

func arrayInstanceOf(s *ArrayClass, t *ResolvedClass) bool {
	if t.Array == nil {
		return isArraySuperType(t.Instance)
	}
	ta := t.Array
	if s.Dimensions == ta.Dimensions {
		if s.ComponentJC == nil && ta.ComponentJC == nil {
			return s.ComponentBase == ta.ComponentBase
		}
		if s.ComponentJC != nil && ta.ComponentJC != nil {
			return classInstanceOf(s.ComponentJC, &ResolvedClass{Instance: ta.ComponentJC})
		}
		return false
	}
	// A deeper array sheds dimensions one at a time; what remains after
	// matching ta's rank is itself an array, so ta's component must be a
	// super type of array types (Object, Cloneable, Serializable).
	return s.Dimensions > ta.Dimensions && ta.ComponentJC != nil && isArraySuperType(ta.ComponentJC)
}

// isArraySuperType reports whether c is one of the three class types every
// array is assignable to: java/lang/Object (the only class with no super),
// Cloneable, and java/io/Serializable.
func isArraySuperType(c *JClass) bool {
	return c.Super == nil ||
		c.BinaryName == "java/lang/Cloneable" ||
		c.BinaryName == "java/io/Serializable"
}
