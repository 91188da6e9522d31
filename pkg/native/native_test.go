package native

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

// rawClassBytes assembles a minimal well-formed .class byte stream with an
// optional instance field and no methods, for environments that only need
// java/lang/Object and java/lang/String to exist well enough to allocate
// and intern strings. Test-only symbols in one package can't be imported
// by another package's tests, so this stays self-contained.
func rawClassBytes(t *testing.T, thisName, superName, fieldName, fieldDescriptor string) []byte {
	t.Helper()
	var cp bytes.Buffer
	n := uint16(1)

	addUtf8 := func(s string) uint16 {
		idx := n
		n++
		cp.WriteByte(classfile.TagUtf8)
		binary.Write(&cp, binary.BigEndian, uint16(len(s)))
		cp.WriteString(s)
		return idx
	}
	addClass := func(name string) uint16 {
		nameIdx := addUtf8(name)
		idx := n
		n++
		cp.WriteByte(classfile.TagClass)
		binary.Write(&cp, binary.BigEndian, nameIdx)
		return idx
	}

	thisIdx := addClass(thisName)
	var superIdx uint16
	if superName != "" {
		superIdx = addClass(superName)
	}

	var fieldNameIdx, fieldDescIdx uint16
	if fieldName != "" {
		fieldNameIdx = addUtf8(fieldName)
		fieldDescIdx = addUtf8(fieldDescriptor)
	}

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&out, binary.BigEndian, uint16(0))
	binary.Write(&out, binary.BigEndian, uint16(61))
	binary.Write(&out, binary.BigEndian, n)
	out.Write(cp.Bytes())
	binary.Write(&out, binary.BigEndian, uint16(classfile.AccPublic|classfile.AccSuper))
	binary.Write(&out, binary.BigEndian, thisIdx)
	binary.Write(&out, binary.BigEndian, superIdx)
	binary.Write(&out, binary.BigEndian, uint16(0)) // interfaces_count
	if fieldName != "" {
		binary.Write(&out, binary.BigEndian, uint16(1)) // fields_count
		binary.Write(&out, binary.BigEndian, uint16(0)) // access_flags
		binary.Write(&out, binary.BigEndian, fieldNameIdx)
		binary.Write(&out, binary.BigEndian, fieldDescIdx)
		binary.Write(&out, binary.BigEndian, uint16(0)) // attributes_count
	} else {
		binary.Write(&out, binary.BigEndian, uint16(0))
	}
	binary.Write(&out, binary.BigEndian, uint16(0)) // methods_count
	binary.Write(&out, binary.BigEndian, uint16(0)) // attributes_count
	return out.Bytes()
}

// testEnv bundles a fully wired VM (real java/lang/Object + java/lang/String
// classes read off a classpath, a bootstrapped native registry, and
// captured stdout/stderr buffers), for exercising natives the way a running
// interpreter would call them rather than as bare Go functions.
type testEnv struct {
	vm       *vm.VM
	registry *Registry
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	write := func(binaryName string, data []byte) {
		path := filepath.Join(dir, binaryName+".class")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating dir for %s.class: %v", binaryName, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("writing %s.class: %v", binaryName, err)
		}
	}
	write("java/lang/Object", rawClassBytes(t, "java/lang/Object", "", "", ""))
	write("java/lang/String", rawClassBytes(t, "java/lang/String", "java/lang/Object", "value", "[C"))

	h := heap.NewHeap(1 << 20)
	linker := vm.NewClassLinker(h)
	loader := vm.NewBootstrapClassLoader(linker)
	loader.Classpath = []vm.ClasspathEntry{vm.NewDirClasspathEntry(dir)}

	if _, err := loader.LoadClass("java/lang/Object"); err != nil {
		t.Fatalf("loading java/lang/Object: %v", err)
	}
	strRC, err := loader.LoadClass("java/lang/String")
	if err != nil {
		t.Fatalf("loading java/lang/String: %v", err)
	}
	charArr, err := loader.LoadClass("[C")
	if err != nil {
		t.Fatalf("loading [C: %v", err)
	}

	v := vm.NewVM(h, nil, loader, linker, nil)
	v.Strings = heap.NewStringHeap(h, strRC.Instance, charArr.Array)

	var stdout, stderr bytes.Buffer
	reg, err := Bootstrap(v, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	v.Natives = reg
	return &testEnv{vm: v, registry: reg, stdout: &stdout, stderr: &stderr}
}

func (e *testEnv) nativeFunc(t *testing.T, class, method, descriptor string) vm.NativeFunc {
	t.Helper()
	fn, ok := e.registry.Lookup(class, method, descriptor)
	if !ok {
		t.Fatalf("no native registered for %s.%s%s", class, method, descriptor)
	}
	return fn
}

func (e *testEnv) systemOut(t *testing.T) *heap.Object {
	t.Helper()
	systemJC, err := e.vm.ResolveClass("java/lang/System")
	if err != nil {
		t.Fatalf("resolving java/lang/System: %v", err)
	}
	v, err := e.vm.GetStaticField(systemJC, "out", "Ljava/io/PrintStream;")
	if err != nil {
		t.Fatalf("reading System.out: %v", err)
	}
	return v.Ref
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("Foo", "bar", "()V", func(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		called = true
		return vm.Value{}, nil, nil
	})

	fn, ok := r.Lookup("Foo", "bar", "()V")
	if !ok {
		t.Fatal("expected Lookup to find the registered native")
	}
	if _, _, err := fn(nil, nil, nil); err != nil {
		t.Fatalf("calling native: %v", err)
	}
	if !called {
		t.Error("registered native body was never invoked")
	}

	if _, ok := r.Lookup("Foo", "bar", "(I)V"); ok {
		t.Error("Lookup matched a different descriptor, overloading should be descriptor-exact")
	}
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register("Foo", "bar", "()V", func(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		return vm.IntValue(1), nil, nil
	})
	r.Register("Foo", "bar", "()V", func(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		return vm.IntValue(2), nil, nil
	})

	fn, _ := r.Lookup("Foo", "bar", "()V")
	got, _, _ := fn(nil, nil, nil)
	if got.Int32() != 2 {
		t.Errorf("got %d, want 2 (later registration should win)", got.Int32())
	}
}

func TestBootstrapWiresSystemOutPrintln(t *testing.T) {
	env := newTestEnv(t)
	out := env.systemOut(t)
	println := env.nativeFunc(t, "java/io/PrintStream", "println", "(Ljava/lang/String;)V")

	hello := env.vm.InternString("Hello")
	if _, _, err := println(env.vm, nil, []vm.Value{vm.RefValue(out), vm.RefValue(hello)}); err != nil {
		t.Fatalf("println: %v", err)
	}
	if got := env.stdout.String(); got != "Hello\n" {
		t.Errorf("stdout = %q, want %q", got, "Hello\n")
	}
}

func TestBootstrapWiresSystemErrSeparately(t *testing.T) {
	env := newTestEnv(t)
	systemJC, err := env.vm.ResolveClass("java/lang/System")
	if err != nil {
		t.Fatalf("resolving java/lang/System: %v", err)
	}
	errVal, err := env.vm.GetStaticField(systemJC, "err", "Ljava/io/PrintStream;")
	if err != nil {
		t.Fatalf("reading System.err: %v", err)
	}

	println := env.nativeFunc(t, "java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	if _, _, err := println(env.vm, nil, []vm.Value{errVal, vm.RefValue(env.vm.InternString("oops"))}); err != nil {
		t.Fatalf("println: %v", err)
	}
	if got := env.stderr.String(); got != "oops\n" {
		t.Errorf("stderr = %q, want %q", got, "oops\n")
	}
	if env.stdout.Len() != 0 {
		t.Errorf("stdout should be untouched, got %q", env.stdout.String())
	}
}

func TestPrintlnIntAndBoolOverloads(t *testing.T) {
	env := newTestEnv(t)
	out := env.systemOut(t)

	printlnInt := env.nativeFunc(t, "java/io/PrintStream", "println", "(I)V")
	if _, _, err := printlnInt(env.vm, nil, []vm.Value{vm.RefValue(out), vm.IntValue(42)}); err != nil {
		t.Fatalf("println(int): %v", err)
	}
	printlnBool := env.nativeFunc(t, "java/io/PrintStream", "println", "(Z)V")
	if _, _, err := printlnBool(env.vm, nil, []vm.Value{vm.RefValue(out), vm.IntValue(1)}); err != nil {
		t.Fatalf("println(bool): %v", err)
	}
	if got, want := env.stdout.String(), "42\ntrue\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestIdentityHashCodeNative(t *testing.T) {
	env := newTestEnv(t)
	objectJC, err := env.vm.ResolveClass("java/lang/Object")
	if err != nil {
		t.Fatalf("resolving java/lang/Object: %v", err)
	}
	obj, err := env.vm.NewInstance(objectJC)
	if err != nil {
		t.Fatalf("allocating instance: %v", err)
	}

	fn := env.nativeFunc(t, "java/lang/System", "identityHashCode", "(Ljava/lang/Object;)I")
	got, unwind, err := fn(env.vm, nil, []vm.Value{vm.RefValue(obj)})
	if err != nil || unwind != nil {
		t.Fatalf("identityHashCode: err=%v unwind=%v", err, unwind)
	}
	if got.Int32() != obj.IdentityHash {
		t.Errorf("got %d, want %d", got.Int32(), obj.IdentityHash)
	}

	got, unwind, err = fn(env.vm, nil, []vm.Value{vm.NullValue()})
	if err != nil || unwind != nil {
		t.Fatalf("identityHashCode(null): err=%v unwind=%v", err, unwind)
	}
	if got.Int32() != 0 {
		t.Errorf("identityHashCode(null) = %d, want 0", got.Int32())
	}
}

func TestObjectHashCodeAndGetClassNatives(t *testing.T) {
	env := newTestEnv(t)
	objectJC, err := env.vm.ResolveClass("java/lang/Object")
	if err != nil {
		t.Fatalf("resolving java/lang/Object: %v", err)
	}
	obj, err := env.vm.NewInstance(objectJC)
	if err != nil {
		t.Fatalf("allocating instance: %v", err)
	}

	hashCode := env.nativeFunc(t, "java/lang/Object", "hashCode", "()I")
	got, _, err := hashCode(env.vm, nil, []vm.Value{vm.RefValue(obj)})
	if err != nil {
		t.Fatalf("hashCode: %v", err)
	}
	if got.Int32() != obj.IdentityHash {
		t.Errorf("hashCode() = %d, want %d", got.Int32(), obj.IdentityHash)
	}

	getClass := env.nativeFunc(t, "java/lang/Object", "getClass", "()Ljava/lang/Class;")
	mirror, _, err := getClass(env.vm, nil, []vm.Value{vm.RefValue(obj)})
	if err != nil {
		t.Fatalf("getClass: %v", err)
	}
	if mirror.Ref == nil {
		t.Fatal("expected a non-nil Class mirror")
	}
	if want := vm.MirrorOf(obj); mirror.Ref != want {
		t.Errorf("getClass() mirror = %v, want %v", mirror.Ref, want)
	}
}

func TestObjectCloneCopiesBackingStorageIndependently(t *testing.T) {
	env := newTestEnv(t)
	intArr, err := env.vm.Loader.LoadClass("[I")
	if err != nil {
		t.Fatalf("resolving [I: %v", err)
	}
	arr, err := env.vm.NewArray(intArr.Array, 4)
	if err != nil {
		t.Fatalf("allocating int[4]: %v", err)
	}
	if err := arr.SetInt32(0, 7); err != nil {
		t.Fatalf("SetInt32: %v", err)
	}

	clone := env.nativeFunc(t, "java/lang/Object", "clone", "()Ljava/lang/Object;")
	got, unwind, err := clone(env.vm, nil, []vm.Value{vm.RefValue(arr)})
	if err != nil || unwind != nil {
		t.Fatalf("clone: err=%v unwind=%v", err, unwind)
	}
	cloned := got.Ref
	if err := arr.SetInt32(0, 99); err != nil {
		t.Fatalf("mutating original: %v", err)
	}
	v, err := cloned.GetInt32(0)
	if err != nil {
		t.Fatalf("GetInt32 on clone: %v", err)
	}
	if v != 7 {
		t.Errorf("clone element 0 = %d, want 7 (mutating the original must not affect the clone)", v)
	}
}

func TestArraycopyPrimitive(t *testing.T) {
	env := newTestEnv(t)
	intArr, err := env.vm.Loader.LoadClass("[I")
	if err != nil {
		t.Fatalf("resolving [I: %v", err)
	}
	src, err := env.vm.NewArray(intArr.Array, 4)
	if err != nil {
		t.Fatalf("allocating src: %v", err)
	}
	dst, err := env.vm.NewArray(intArr.Array, 4)
	if err != nil {
		t.Fatalf("allocating dst: %v", err)
	}
	for i := int32(0); i < 4; i++ {
		if err := src.SetInt32(int(i)*4, i+1); err != nil {
			t.Fatalf("SetInt32(%d): %v", i, err)
		}
	}

	arraycopy := env.nativeFunc(t, "java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V")
	_, unwind, err := arraycopy(env.vm, nil, []vm.Value{
		vm.RefValue(src), vm.IntValue(1), vm.RefValue(dst), vm.IntValue(0), vm.IntValue(3),
	})
	if err != nil || unwind != nil {
		t.Fatalf("arraycopy: err=%v unwind=%v", err, unwind)
	}
	for i, want := range []int32{2, 3, 4, 0} {
		got, err := dst.GetInt32(i * 4)
		if err != nil {
			t.Fatalf("GetInt32(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("dst[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestArraycopyOutOfBoundsThrows(t *testing.T) {
	env := newTestEnv(t)
	intArr, err := env.vm.Loader.LoadClass("[I")
	if err != nil {
		t.Fatalf("resolving [I: %v", err)
	}
	src, err := env.vm.NewArray(intArr.Array, 2)
	if err != nil {
		t.Fatalf("allocating src: %v", err)
	}
	dst, err := env.vm.NewArray(intArr.Array, 2)
	if err != nil {
		t.Fatalf("allocating dst: %v", err)
	}

	arraycopy := env.nativeFunc(t, "java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V")
	_, unwind, err := arraycopy(env.vm, nil, []vm.Value{
		vm.RefValue(src), vm.IntValue(0), vm.RefValue(dst), vm.IntValue(0), vm.IntValue(5),
	})
	if err != nil {
		t.Fatalf("arraycopy: %v", err)
	}
	if unwind == nil {
		t.Fatal("expected an ArrayIndexOutOfBoundsException")
	}
	if unwind.ClassName() != "java/lang/ArrayIndexOutOfBoundsException" {
		t.Errorf("got %s, want java/lang/ArrayIndexOutOfBoundsException", unwind.ClassName())
	}
}

func TestArraycopyNullThrowsNPE(t *testing.T) {
	env := newTestEnv(t)
	intArr, err := env.vm.Loader.LoadClass("[I")
	if err != nil {
		t.Fatalf("resolving [I: %v", err)
	}
	dst, err := env.vm.NewArray(intArr.Array, 2)
	if err != nil {
		t.Fatalf("allocating dst: %v", err)
	}

	arraycopy := env.nativeFunc(t, "java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V")
	_, unwind, err := arraycopy(env.vm, nil, []vm.Value{
		vm.NullValue(), vm.IntValue(0), vm.RefValue(dst), vm.IntValue(0), vm.IntValue(1),
	})
	if err != nil {
		t.Fatalf("arraycopy: %v", err)
	}
	if unwind == nil || unwind.ClassName() != "java/lang/NullPointerException" {
		t.Fatalf("got unwind=%v, want java/lang/NullPointerException", unwind)
	}
}

func TestJavaStringToGoRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	s := env.vm.InternString("hello, world")
	if got := JavaStringToGo(s); got != "hello, world" {
		t.Errorf("got %q, want %q", got, "hello, world")
	}
}

func TestJavaStringToGoHandlesSupplementaryCharacters(t *testing.T) {
	env := newTestEnv(t)
	const want = "a\U0001F600b" // a grinning-face emoji needs a UTF-16 surrogate pair
	s := env.vm.InternString(want)
	if got := JavaStringToGo(s); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestJavaStringToGoNilIsNullLiteral(t *testing.T) {
	if got := JavaStringToGo(nil); got != "null" {
		t.Errorf("got %q, want %q", got, "null")
	}
}

func TestObjectWaitNotifyAreNoops(t *testing.T) {
	env := newTestEnv(t)
	for _, call := range []struct{ method, descriptor string }{
		{"wait", "(J)V"}, {"notify", "()V"}, {"notifyAll", "()V"},
	} {
		fn := env.nativeFunc(t, "java/lang/Object", call.method, call.descriptor)
		if _, unwind, err := fn(env.vm, nil, []vm.Value{vm.NullValue(), vm.LongValue(0)}); err != nil || unwind != nil {
			t.Errorf("%s%s: err=%v unwind=%v", call.method, call.descriptor, err, unwind)
		}
	}
}
