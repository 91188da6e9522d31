package vm

import (
	"testing"

	"github.com/govem/govem/pkg/classfile"
)

func TestFieldLayoutSuperFieldsPrecedeSubFields(t *testing.T) {
	tv := newTestVM(t)

	baseFields := []classfile.FieldInfo{fieldInfo("a", "I", 0, nil), fieldInfo("b", "J", 0, nil)}
	baseCF := buildCF(newCP(), "LayoutBase", "java/lang/Object", nil, classfile.AccPublic, baseFields, nil)
	base := tv.defineClass(baseCF)

	subFields := []classfile.FieldInfo{fieldInfo("c", "I", 0, nil)}
	subCF := buildCF(newCP(), "LayoutSub", "LayoutBase", nil, classfile.AccPublic, subFields, nil)
	sub := tv.defineClass(subCF)

	a := base.FindInstanceField("a", "I")
	b := base.FindInstanceField("b", "J")
	c := sub.FindInstanceField("c", "I")
	if a == nil || b == nil || c == nil {
		t.Fatal("missing laid-out fields")
	}
	if a.Offset != 0 {
		t.Errorf("a.Offset = %d, want 0", a.Offset)
	}
	if b.Offset != 4 {
		t.Errorf("b.Offset = %d, want 4 (after one category-1 field)", b.Offset)
	}
	if c.Offset != base.InstanceSize() {
		t.Errorf("c.Offset = %d, want %d (subclass fields start at the super payload size)", c.Offset, base.InstanceSize())
	}

	// Inherited offsets stay valid through the subclass's own lookup.
	if got := sub.FindInstanceField("a", "I"); got != a {
		t.Error("field lookup through the subclass should find the super's record")
	}
}

func TestInitializeRunsClinitOnce(t *testing.T) {
	tv := newTestVM(t)
	cp := newCP()
	fields := []classfile.FieldInfo{fieldInfo("count", "I", classfile.AccStatic, nil)}
	fref := cp.fieldref("Once", "count", "I")
	clinitCode := (&bc{}).
		u8(OpGetstatic).u16(fref).
		u8(OpIconst1).u8(OpIadd).
		u8(OpPutstatic).u16(fref).
		u8(OpReturn).
		bytes()
	clinit := methodInfo("<clinit>", "()V", classfile.AccStatic, 4, 0, clinitCode)
	cf := buildCF(cp, "Once", "java/lang/Object", nil, classfile.AccPublic, fields, []classfile.MethodInfo{clinit})
	jc := tv.defineClass(cf) // defineClass already initializes

	if err := tv.Linker.Initialize(jc); err != nil {
		t.Fatalf("re-initializing: %v", err)
	}
	v, err := tv.GetStaticField(jc, "count", "I")
	if err != nil {
		t.Fatalf("reading count: %v", err)
	}
	if got := v.Int32(); got != 1 {
		t.Errorf("count = %d, want 1 (<clinit> must run exactly once)", got)
	}
}

func TestConstantValueCopiedIntoStaticSlot(t *testing.T) {
	tv := newTestVM(t)
	fields := []classfile.FieldInfo{
		fieldInfo("answer", "I", classfile.AccStatic|classfile.AccFinal, &classfile.ConstantInteger{Value: 42}),
		fieldInfo("ratio", "D", classfile.AccStatic|classfile.AccFinal, &classfile.ConstantDouble{Value: 2.5}),
	}
	cf := buildCF(newCP(), "Constants", "java/lang/Object", nil, classfile.AccPublic, fields, nil)
	jc := tv.defineClass(cf)

	v, err := tv.GetStaticField(jc, "answer", "I")
	if err != nil {
		t.Fatalf("reading answer: %v", err)
	}
	if got := v.Int32(); got != 42 {
		t.Errorf("answer = %d, want 42", got)
	}
	d, err := tv.GetStaticField(jc, "ratio", "D")
	if err != nil {
		t.Fatalf("reading ratio: %v", err)
	}
	if got := d.Float64(); got != 2.5 {
		t.Errorf("ratio = %v, want 2.5", got)
	}
}

func TestInstanceOfClassHierarchy(t *testing.T) {
	tv := newTestVM(t)
	tv.defineClass(buildCF(newCP(), "Animal", "java/lang/Object", nil, classfile.AccPublic, nil, nil))
	tv.defineClass(buildCF(newCP(), "Dog", "Animal", nil, classfile.AccPublic, nil, nil))
	tv.defineClass(buildCF(newCP(), "Cat", "Animal", nil, classfile.AccPublic, nil, nil))

	load := func(name string) *ResolvedClass {
		rc, err := tv.Loader.LoadClass(name)
		if err != nil {
			t.Fatalf("LoadClass(%s): %v", name, err)
		}
		return rc
	}

	dog, cat, animal, object := load("Dog"), load("Cat"), load("Animal"), load("java/lang/Object")
	if !InstanceOf(dog, animal) {
		t.Error("Dog instanceof Animal should hold")
	}
	if !InstanceOf(dog, object) {
		t.Error("Dog instanceof Object should hold")
	}
	if InstanceOf(dog, cat) {
		t.Error("Dog instanceof Cat should not hold")
	}
	if InstanceOf(animal, dog) {
		t.Error("Animal instanceof Dog should not hold (supertype is not a subtype)")
	}
}

func TestInstanceOfInterface(t *testing.T) {
	tv := newTestVM(t)
	tv.defineClass(buildCF(newCP(), "Walker", "java/lang/Object", nil, classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract, nil, nil))
	tv.defineClass(buildCF(newCP(), "Robot", "java/lang/Object", []string{"Walker"}, classfile.AccPublic, nil, nil))
	tv.defineClass(buildCF(newCP(), "Android", "Robot", nil, classfile.AccPublic, nil, nil))

	load := func(name string) *ResolvedClass {
		rc, err := tv.Loader.LoadClass(name)
		if err != nil {
			t.Fatalf("LoadClass(%s): %v", name, err)
		}
		return rc
	}

	walker, robot, android, object := load("Walker"), load("Robot"), load("Android"), load("java/lang/Object")
	if !InstanceOf(robot, walker) {
		t.Error("Robot instanceof Walker should hold (direct interface)")
	}
	if !InstanceOf(android, walker) {
		t.Error("Android instanceof Walker should hold (interface inherited via super)")
	}
	if !InstanceOf(walker, object) {
		t.Error("an interface is assignable to Object")
	}
	if InstanceOf(walker, robot) {
		t.Error("Walker instanceof Robot should not hold")
	}
}

func TestInstanceOfArrays(t *testing.T) {
	tv := newTestVM(t)
	tv.defineClass(buildCF(newCP(), "Animal", "java/lang/Object", nil, classfile.AccPublic, nil, nil))
	tv.defineClass(buildCF(newCP(), "Dog", "Animal", nil, classfile.AccPublic, nil, nil))

	load := func(name string) *ResolvedClass {
		rc, err := tv.Loader.LoadClass(name)
		if err != nil {
			t.Fatalf("LoadClass(%s): %v", name, err)
		}
		return rc
	}

	intArr := load("[I")
	longArr := load("[J")
	intArr2 := load("[[I")
	dogArr := load("[LDog;")
	animalArr := load("[LAnimal;")
	objArr := load("[Ljava/lang/Object;")
	object := load("java/lang/Object")

	if !InstanceOf(intArr, object) {
		t.Error("int[] instanceof Object should hold")
	}
	if !InstanceOf(intArr, intArr) {
		t.Error("int[] instanceof int[] should hold")
	}
	if InstanceOf(intArr, longArr) {
		t.Error("int[] instanceof long[] should not hold")
	}
	if !InstanceOf(dogArr, animalArr) {
		t.Error("Dog[] instanceof Animal[] should hold (covariant arrays)")
	}
	if InstanceOf(animalArr, dogArr) {
		t.Error("Animal[] instanceof Dog[] should not hold")
	}
	if !InstanceOf(intArr2, objArr) {
		t.Error("int[][] instanceof Object[] should hold (the component int[] is a reference)")
	}
	if InstanceOf(intArr, objArr) {
		t.Error("int[] instanceof Object[] should not hold (primitive component)")
	}
}
