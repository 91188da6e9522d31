package classfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

func TestParseSimpleClass(t *testing.T) {
	code := []byte{0x2a, 0xb1} // aload_0, return
	raw := buildSimpleClass(t, "Hello", "java/lang/Object",
		map[string][2]string{"<init>": {"", "()V"}},
		map[string][]byte{"<init>": code})

	cf, err := Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cf.MajorVersion != 61 {
		t.Errorf("major version: got %d, want 61", cf.MajorVersion)
	}

	className, err := cf.ClassName()
	if err != nil {
		t.Fatalf("ClassName: %v", err)
	}
	if className != "Hello" {
		t.Errorf("this_class: got %q, want %q", className, "Hello")
	}

	superName, err := cf.SuperClassName()
	if err != nil {
		t.Fatalf("SuperClassName: %v", err)
	}
	if superName != "java/lang/Object" {
		t.Errorf("super_class: got %q, want %q", superName, "java/lang/Object")
	}

	m := cf.FindMethod("<init>", "()V")
	if m == nil {
		t.Fatal("<init>()V not found")
	}
	if m.Code == nil {
		t.Fatal("<init> has no Code attribute")
	}
	if !bytes.Equal(m.Code.Code, code) {
		t.Errorf("code bytes: got %v, want %v", m.Code.Code, code)
	}
	if m.Code.MaxStack != 16 || m.Code.MaxLocals != 16 {
		t.Errorf("max_stack/max_locals: got %d/%d, want 16/16", m.Code.MaxStack, m.Code.MaxLocals)
	}
}

func TestParseMultipleMethods(t *testing.T) {
	raw := buildSimpleClass(t, "Add", "java/lang/Object",
		map[string][2]string{
			"<init>": {"", "()V"},
			"add":    {"", "(II)I"},
		},
		map[string][]byte{
			"<init>": {0x2a, 0xb1},
			"add":    {0x1a, 0x1b, 0x60, 0xac}, // iload_0, iload_1, iadd, ireturn
		})

	cf, err := Parse(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cf.FindMethod("<init>", "()V") == nil {
		t.Error("<init>()V not found")
	}
	add := cf.FindMethod("add", "(II)I")
	if add == nil {
		t.Fatal("add(II)I not found")
	}
	if add.Code == nil || len(add.Code.Code) == 0 {
		t.Fatal("add has no bytecode")
	}
}

func TestParseConstantPoolReferences(t *testing.T) {
	b := newClassBuilder()
	thisIdx := b.addClass("Sample")
	superIdx := b.addClass("java/lang/Object")
	methodrefIdx := b.addMethodref("java/lang/Object", "<init>", "()V")
	intIdx := b.addInteger(42)
	longIdx := b.addLong(1<<40 + 7)
	strIdx := b.addString("hi")
	codeNameIdx := b.addUtf8("Code")

	code := []byte{0xb1} // return
	var attrBuf bytes.Buffer
	attribute(&attrBuf, codeNameIdx, codeAttr(b, 1, 1, code))
	initNameIdx := b.addUtf8("<init>")
	initDescIdx := b.addUtf8("()V")

	var out bytes.Buffer
	mustWrite := func(v any) {
		if err := binary.Write(&out, binary.BigEndian, v); err != nil {
			t.Fatalf("writing: %v", err)
		}
	}
	mustWrite(uint32(classMagic))
	mustWrite(uint16(0))
	mustWrite(uint16(61))
	mustWrite(b.n)
	out.Write(b.cp.Bytes())
	mustWrite(uint16(AccPublic | AccSuper))
	mustWrite(thisIdx)
	mustWrite(superIdx)
	mustWrite(uint16(0))
	mustWrite(uint16(0))
	mustWrite(uint16(1))
	mustWrite(uint16(AccPublic))
	mustWrite(initNameIdx)
	mustWrite(initDescIdx)
	mustWrite(uint16(1))
	out.Write(attrBuf.Bytes())
	mustWrite(uint16(0))

	cf, err := Parse(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ref, err := cf.ConstantPool.Methodref(methodrefIdx)
	if err != nil {
		t.Fatalf("Methodref: %v", err)
	}
	if ref.ClassName != "java/lang/Object" || ref.Name != "<init>" || ref.Descriptor != "()V" {
		t.Errorf("resolved methodref: %+v", ref)
	}

	intEntry, err := cf.ConstantPool.At(intIdx)
	if err != nil {
		t.Fatalf("At(int): %v", err)
	}
	if intEntry.(*ConstantInteger).Value != 42 {
		t.Errorf("integer constant: got %d, want 42", intEntry.(*ConstantInteger).Value)
	}

	longEntry, err := cf.ConstantPool.At(longIdx)
	if err != nil {
		t.Fatalf("At(long): %v", err)
	}
	if longEntry.(*ConstantLong).Value != 1<<40+7 {
		t.Errorf("long constant: got %d", longEntry.(*ConstantLong).Value)
	}

	strEntry, err := cf.ConstantPool.At(strIdx)
	if err != nil {
		t.Fatalf("At(string): %v", err)
	}
	s, err := cf.ConstantPool.Utf8(strEntry.(*ConstantString).StringIndex)
	if err != nil || s != "hi" {
		t.Errorf("string constant: got %q, err %v", s, err)
	}
}

func TestParseInvalidMagic(t *testing.T) {
	f, err := os.CreateTemp("", "invalid*.class")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer os.Remove(f.Name())

	f.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	f.Close()

	r, err := os.Open(f.Name())
	if err != nil {
		t.Fatalf("opening temp file: %v", err)
	}
	defer r.Close()

	if _, err := Parse(r); err == nil {
		t.Error("expected error for invalid magic number, got nil")
	}
}

func TestParseTruncatedFile(t *testing.T) {
	raw := buildSimpleClass(t, "Hello", "java/lang/Object",
		map[string][2]string{"<init>": {"", "()V"}},
		map[string][]byte{"<init>": {0x2a, 0xb1}})

	if _, err := Parse(bytes.NewReader(raw[:len(raw)/2])); err == nil {
		t.Error("expected error parsing truncated class file, got nil")
	}
}
