package native

import (
	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

// primitiveClassNames maps a primitive's descriptor letter (or 'V' for
// void) to its Java source name. getPrimitiveClass and isPrimitive both
// resolve through this one table, so a primitive's identity as seen
// through Class.getPrimitiveClass and through boxed TYPE fields
// (Integer.TYPE and friends) always agree.
var primitiveClassNames = map[byte]string{
	'B': "byte", 'C': "char", 'D': "double", 'F': "float",
	'I': "int", 'J': "long", 'S': "short", 'Z': "boolean", 'V': "void",
}

// classMirrorLayout mirrors the unexported shape vm.ClassLinker uses for
// every loaded class's java/lang/Class instance: one ref slot holding the
// interned name.
type classMirrorLayout struct{ name string }

func (classMirrorLayout) Name() string          { return "java/lang/Class" }
func (classMirrorLayout) IsArray() bool         { return false }
func (classMirrorLayout) InstanceSize() int     { return 0 }
func (classMirrorLayout) InstanceRefCount() int { return 1 }
func (classMirrorLayout) ComponentWidth() int   { return 0 }
func (classMirrorLayout) ComponentIsRef() bool  { return false }

// primitiveMirror returns the registry's canonical mirror for a primitive
// kind, allocating it in the permanent region on first use. Mirrors are
// per-Registry (and so per-VM), never process-global.
func (r *Registry) primitiveMirror(vmi *vm.VM, letter byte) *heap.Object {
	r.primMirrorsMu.Lock()
	defer r.primMirrorsMu.Unlock()
	if r.primMirrors == nil {
		r.primMirrors = make(map[byte]*heap.Object)
	}
	if m, ok := r.primMirrors[letter]; ok {
		return m
	}
	name := primitiveClassNames[letter]
	obj := vmi.Heap.AllocPermanent(classMirrorLayout{name: name}, 1)
	obj.SetRef(0, vmi.InternString(name))
	r.primMirrors[letter] = obj
	return obj
}

func (r *Registry) isPrimitiveMirror(mirror *heap.Object) bool {
	r.primMirrorsMu.Lock()
	defer r.primMirrorsMu.Unlock()
	for _, m := range r.primMirrors {
		if m == mirror {
			return true
		}
	}
	return false
}

func registerClassNatives(r *Registry) {
	r.Register("java/lang/Class", "registerNatives", "()V", noop)

	r.Register("java/lang/Class", "getName", "()Ljava/lang/String;", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		mirror := args[0].Ref
		if mirror == nil {
			return vm.Value{}, nil, nil
		}
		name, _ := mirror.GetRef(0)
		return vm.RefValue(name), nil, nil
	})

	r.Register("java/lang/Class", "isPrimitive", "()Z", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		return vm.IntValue(vm.BoolToInt(r.isPrimitiveMirror(args[0].Ref))), nil, nil
	})

	// isInterface has no cheap answer from a bare Class mirror (the mirror
	// carries only its name, not a back-reference to the JClass it names),
	// so this conservatively reports false rather than walking the loader
	// by name on every call.
	r.Register("java/lang/Class", "isInterface", "()Z", func(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		return vm.IntValue(0), nil, nil
	})

	r.Register("java/lang/Class", "isArray", "()Z", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		mirror := args[0].Ref
		if mirror == nil {
			return vm.IntValue(0), nil, nil
		}
		if name, _ := mirror.GetRef(0); name != nil {
			s := javaStringToGo(name)
			if len(s) > 0 && s[0] == '[' {
				return vm.IntValue(1), nil, nil
			}
		}
		return vm.IntValue(0), nil, nil
	})

	// getPrimitiveClass is called by each boxed type's static TYPE field
	// initializer (Integer.TYPE = Class.getPrimitiveClass("int")). The
	// argument is a java/lang/String naming the primitive; resolution goes
	// through the same descriptor-letter table isPrimitive checks against,
	// so the two stay consistent by construction.
	r.Register("java/lang/Class", "getPrimitiveClass", "(Ljava/lang/String;)Ljava/lang/Class;",
		func(vmi *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
			name := javaStringToGo(args[0].Ref)
			for letter, n := range primitiveClassNames {
				if n == name {
					return vm.RefValue(r.primitiveMirror(vmi, letter)), nil, nil
				}
			}
			return vm.Value{}, vmi.Throw("java/lang/IllegalArgumentException", name), nil
		})
}
