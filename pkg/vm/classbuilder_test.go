package vm

import (
	"bytes"
	"testing"

	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
)

// cpBuilder assembles a classfile.ConstantPool from struct literals instead
// of a serialized byte stream: classfile.ConstantPoolEntry and its variants
// are already exported, and classfile.FieldInfo/MethodInfo store resolved
// name/descriptor strings directly rather than constant-pool indices, so
// everything except symbolic (ldc/getstatic/invoke/new/checkcast/instanceof/
// catch-type) operands can skip the wire format entirely. Entries are
// 1-indexed; a long/double entry consumes its slot plus a reserved nil
// successor, mirroring the real decoder's constantEmpty convention.
type cpBuilder struct{ entries []classfile.ConstantPoolEntry }

func newCP() *cpBuilder { return &cpBuilder{entries: []classfile.ConstantPoolEntry{nil}} }

func (b *cpBuilder) add(e classfile.ConstantPoolEntry) uint16 {
	idx := uint16(len(b.entries))
	b.entries = append(b.entries, e)
	return idx
}

func (b *cpBuilder) addWide(e classfile.ConstantPoolEntry) uint16 {
	idx := b.add(e)
	b.entries = append(b.entries, nil)
	return idx
}

func (b *cpBuilder) pool() *classfile.ConstantPool { return classfile.NewConstantPool(b.entries) }

func (b *cpBuilder) utf8(s string) uint16 { return b.add(&classfile.ConstantUtf8{Value: s}) }

func (b *cpBuilder) class(name string) uint16 {
	return b.add(&classfile.ConstantClass{NameIndex: b.utf8(name)})
}

func (b *cpBuilder) nameAndType(name, descriptor string) uint16 {
	return b.add(&classfile.ConstantNameAndType{NameIndex: b.utf8(name), DescriptorIndex: b.utf8(descriptor)})
}

func (b *cpBuilder) fieldref(class, name, descriptor string) uint16 {
	return b.add(&classfile.ConstantFieldref{ClassIndex: b.class(class), NameAndTypeIndex: b.nameAndType(name, descriptor)})
}

func (b *cpBuilder) methodref(class, name, descriptor string) uint16 {
	return b.add(&classfile.ConstantMethodref{ClassIndex: b.class(class), NameAndTypeIndex: b.nameAndType(name, descriptor)})
}

func (b *cpBuilder) ifaceMethodref(class, name, descriptor string) uint16 {
	return b.add(&classfile.ConstantInterfaceMethodref{ClassIndex: b.class(class), NameAndTypeIndex: b.nameAndType(name, descriptor)})
}

func (b *cpBuilder) integer(v int32) uint16    { return b.add(&classfile.ConstantInteger{Value: v}) }
func (b *cpBuilder) float32c(v float32) uint16 { return b.add(&classfile.ConstantFloat{Value: v}) }
func (b *cpBuilder) long(v int64) uint16       { return b.addWide(&classfile.ConstantLong{Value: v}) }
func (b *cpBuilder) double(v float64) uint16   { return b.addWide(&classfile.ConstantDouble{Value: v}) }
func (b *cpBuilder) str(s string) uint16 {
	return b.add(&classfile.ConstantString{StringIndex: b.utf8(s)})
}

// buildCF assembles a classfile.ClassFile around cp, registering this/super/
// interface names as CONSTANT_Class entries the way the real decoder would.
func buildCF(cp *cpBuilder, thisName, superName string, interfaces []string, accessFlags uint16, fields []classfile.FieldInfo, methods []classfile.MethodInfo) *classfile.ClassFile {
	thisIdx := cp.class(thisName)
	var superIdx uint16
	if superName != "" {
		superIdx = cp.class(superName)
	}
	ifaceIdxs := make([]uint16, len(interfaces))
	for i, n := range interfaces {
		ifaceIdxs[i] = cp.class(n)
	}
	return &classfile.ClassFile{
		MajorVersion: 61,
		ConstantPool: cp.pool(),
		AccessFlags:  accessFlags,
		ThisClass:    thisIdx,
		SuperClass:   superIdx,
		Interfaces:   ifaceIdxs,
		Fields:       fields,
		Methods:      methods,
	}
}

func methodInfo(name, descriptor string, accessFlags uint16, maxStack, maxLocals uint16, code []byte, handlers ...classfile.ExceptionHandler) classfile.MethodInfo {
	return classfile.MethodInfo{
		AccessFlags: accessFlags,
		Name:        name,
		Descriptor:  descriptor,
		Code: &classfile.CodeAttribute{
			MaxStack:          maxStack,
			MaxLocals:         maxLocals,
			Code:              code,
			ExceptionHandlers: handlers,
		},
	}
}

func nativeMethodInfo(name, descriptor string, accessFlags uint16) classfile.MethodInfo {
	return classfile.MethodInfo{AccessFlags: accessFlags | classfile.AccNative, Name: name, Descriptor: descriptor}
}

func fieldInfo(name, descriptor string, accessFlags uint16, constantValue classfile.ConstantPoolEntry) classfile.FieldInfo {
	return classfile.FieldInfo{AccessFlags: accessFlags, Name: name, Descriptor: descriptor, ConstantValue: constantValue}
}

// handler builds one exception-table entry; catchClass == "" means
// catch-all (finally-style), matching classfile.ExceptionHandler.CatchType's
// zero-means-any convention.
func handler(cp *cpBuilder, startPC, endPC, handlerPC uint16, catchClass string) classfile.ExceptionHandler {
	var catchType uint16
	if catchClass != "" {
		catchType = cp.class(catchClass)
	}
	return classfile.ExceptionHandler{StartPC: startPC, EndPC: endPC, HandlerPC: handlerPC, CatchType: catchType}
}

// bc is a small big-endian bytecode assembler, for tests that would
// otherwise hand-count byte offsets.
type bc struct{ buf bytes.Buffer }

func (c *bc) u8(v byte) *bc { c.buf.WriteByte(v); return c }
func (c *bc) i8(v int8) *bc { return c.u8(byte(v)) }
func (c *bc) u16(v uint16) *bc {
	c.buf.WriteByte(byte(v >> 8))
	c.buf.WriteByte(byte(v))
	return c
}
func (c *bc) i16(v int16) *bc { return c.u16(uint16(v)) }
func (c *bc) i32(v int32) *bc {
	u := uint32(v)
	c.buf.WriteByte(byte(u >> 24))
	c.buf.WriteByte(byte(u >> 16))
	c.buf.WriteByte(byte(u >> 8))
	c.buf.WriteByte(byte(u))
	return c
}
func (c *bc) bytes() []byte { return append([]byte(nil), c.buf.Bytes()...) }

// testVM wires a heap/linker/loader/VM quadruple around hand-built
// ClassFile values (see buildCF), for tests that exercise the real
// Prepare/Initialize/Invoke pipeline without reading bytes off a classpath.
type testVM struct {
	t *testing.T
	*VM
}

// newTestVM builds a VM whose loader already has java/lang/Object and
// java/lang/String (with a "value":"[C" field, as heap.StringHeap requires)
// defined, the way Bootstrap's classpath-driven resolution would, but
// without needing real class bytes.
func newTestVM(t *testing.T) *testVM {
	return newTestVMSize(t, 1<<20)
}

func newTestVMSize(t *testing.T, heapBytes int) *testVM {
	t.Helper()
	h := heap.NewHeap(heapBytes)
	linker := NewClassLinker(h)
	loader := NewBootstrapClassLoader(linker)
	v := NewVM(h, nil, loader, linker, nil)
	tv := &testVM{t: t, VM: v}

	tv.defineClass(objectClassFile())
	strJC := tv.defineClass(stringClassFile())
	charArr, err := loader.LoadClass("[C")
	if err != nil {
		t.Fatalf("loading [C: %v", err)
	}
	v.Strings = heap.NewStringHeap(h, strJC, charArr.Array)
	return tv
}

// defineClass runs cf through the real linker (Prepare + Initialize) and
// registers the result in the loader's class table under its own name, the
// same state LoadClass would leave behind for bytes read off a classpath.
func (tv *testVM) defineClass(cf *classfile.ClassFile) *JClass {
	tv.t.Helper()
	name, err := cf.ClassName()
	if err != nil {
		tv.t.Fatalf("resolving class name: %v", err)
	}
	jc, err := tv.Linker.Prepare(cf)
	if err != nil {
		tv.t.Fatalf("preparing %s: %v", name, err)
	}
	tv.Loader.classes[name] = jc
	if err := tv.Linker.Initialize(jc); err != nil {
		tv.t.Fatalf("initializing %s: %v", name, err)
	}
	return jc
}

func objectClassFile() *classfile.ClassFile {
	cp := newCP()
	init := methodInfo("<init>", "()V", classfile.AccPublic, 1, 1, []byte{OpReturn})
	return buildCF(cp, "java/lang/Object", "", nil, classfile.AccPublic, nil, []classfile.MethodInfo{init})
}

func stringClassFile() *classfile.ClassFile {
	cp := newCP()
	fields := []classfile.FieldInfo{fieldInfo("value", "[C", 0, nil)}
	return buildCF(cp, "java/lang/String", "java/lang/Object", nil, classfile.AccPublic, fields, nil)
}

// fakeNatives is a minimal vm.NativeRegistry for tests that need a native
// method without pulling in the native bridge package (which imports vm,
// so vm's own tests can't import it back).
type fakeNatives struct{ funcs map[string]NativeFunc }

func newFakeNatives() *fakeNatives { return &fakeNatives{funcs: make(map[string]NativeFunc)} }

func (f *fakeNatives) register(class, method, descriptor string, fn NativeFunc) {
	f.funcs[class+"."+method+":"+descriptor] = fn
}

func (f *fakeNatives) Lookup(class, method, descriptor string) (NativeFunc, bool) {
	fn, ok := f.funcs[class+"."+method+":"+descriptor]
	return fn, ok
}

// wireStdout defines a java/io/PrintStream class with a native
// println(Ljava/lang/String;)V method and a java/lang/System class with a
// static out field of that type, both run through the real decoder-shaped
// ClassFile path rather than NewSyntheticClass, so GETSTATIC and
// INVOKEVIRTUAL resolve them exactly as they would classes read off a
// classpath.
func (tv *testVM) wireStdout(w *bytes.Buffer) *fakeNatives {
	tv.t.Helper()

	psCP := newCP()
	println := nativeMethodInfo("println", "(Ljava/lang/String;)V", classfile.AccPublic)
	psCF := buildCF(psCP, "java/io/PrintStream", "java/lang/Object", nil, classfile.AccPublic, nil, []classfile.MethodInfo{println})
	psJC := tv.defineClass(psCF)

	sysCP := newCP()
	outField := fieldInfo("out", "Ljava/io/PrintStream;", classfile.AccStatic|classfile.AccPublic, nil)
	sysCF := buildCF(sysCP, "java/lang/System", "java/lang/Object", nil, classfile.AccPublic, []classfile.FieldInfo{outField}, nil)
	sysJC := tv.defineClass(sysCF)

	out := tv.NewPermanentInstance(psJC)
	if err := tv.SetStaticField(sysJC, "out", "Ljava/io/PrintStream;", RefValue(out)); err != nil {
		tv.t.Fatalf("wiring System.out: %v", err)
	}

	nat := newFakeNatives()
	nat.register("java/io/PrintStream", "println", "(Ljava/lang/String;)V", func(vmi *VM, t *Thread, args []Value) (Value, *UnwindResult, error) {
		w.WriteString(javaStringToGoForTest(args[1].Ref))
		w.WriteByte('\n')
		return Value{}, nil, nil
	})
	tv.Natives = nat
	return nat
}

// javaStringToGoForTest decodes a java/lang/String instance's backing char[]
// back to a Go string, the same conversion pkg/native's println natives
// perform, reimplemented here since that package can't be imported back
// into vm's own tests.
func javaStringToGoForTest(s *heap.Object) string {
	if s == nil {
		return "null"
	}
	jc, ok := s.Class.(*JClass)
	if !ok {
		return ""
	}
	f := jc.FindInstanceField("value", "[C")
	if f == nil {
		return ""
	}
	chars, _ := s.GetRef(f.Offset)
	if chars == nil {
		return ""
	}
	units := make([]uint16, chars.Length)
	for i := range units {
		v, _ := chars.GetInt16(i * 2)
		units[i] = uint16(v)
	}
	runes := make([]rune, len(units))
	for i, u := range units {
		runes[i] = rune(u)
	}
	return string(runes)
}
