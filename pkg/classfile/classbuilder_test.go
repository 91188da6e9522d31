package classfile

import (
	"bytes"
	"encoding/binary"
)

// classBuilder assembles a minimal, well-formed .class byte stream in
// memory so decoder tests don't depend on a javac toolchain or fixture
// files. Constant pool entries are appended in declaration order and
// returned indices are stable once added.
type classBuilder struct {
	cp  bytes.Buffer
	n   uint16 // next constant pool index (1-based)
	buf bytes.Buffer
}

func newClassBuilder() *classBuilder {
	return &classBuilder{n: 1}
}

func (b *classBuilder) addUtf8(s string) uint16 {
	idx := b.n
	b.n++
	b.cp.WriteByte(TagUtf8)
	binary.Write(&b.cp, binary.BigEndian, uint16(len(s)))
	b.cp.WriteString(s)
	return idx
}

func (b *classBuilder) addClass(name string) uint16 {
	nameIdx := b.addUtf8(name)
	idx := b.n
	b.n++
	b.cp.WriteByte(TagClass)
	binary.Write(&b.cp, binary.BigEndian, nameIdx)
	return idx
}

func (b *classBuilder) addNameAndType(name, descriptor string) uint16 {
	nameIdx := b.addUtf8(name)
	descIdx := b.addUtf8(descriptor)
	idx := b.n
	b.n++
	b.cp.WriteByte(TagNameAndType)
	binary.Write(&b.cp, binary.BigEndian, nameIdx)
	binary.Write(&b.cp, binary.BigEndian, descIdx)
	return idx
}

func (b *classBuilder) addMethodref(className, name, descriptor string) uint16 {
	classIdx := b.addClass(className)
	natIdx := b.addNameAndType(name, descriptor)
	idx := b.n
	b.n++
	b.cp.WriteByte(TagMethodref)
	binary.Write(&b.cp, binary.BigEndian, classIdx)
	binary.Write(&b.cp, binary.BigEndian, natIdx)
	return idx
}

func (b *classBuilder) addInteger(v int32) uint16 {
	idx := b.n
	b.n++
	b.cp.WriteByte(TagInteger)
	binary.Write(&b.cp, binary.BigEndian, v)
	return idx
}

func (b *classBuilder) addLong(v int64) uint16 {
	idx := b.n
	b.n += 2
	b.cp.WriteByte(TagLong)
	binary.Write(&b.cp, binary.BigEndian, v)
	return idx
}

func (b *classBuilder) addString(s string) uint16 {
	utf8Idx := b.addUtf8(s)
	idx := b.n
	b.n++
	b.cp.WriteByte(TagString)
	binary.Write(&b.cp, binary.BigEndian, utf8Idx)
	return idx
}

// codeAttr builds a raw Code attribute body (without the name_index/length
// header) around the given bytecode.
func codeAttr(b *classBuilder, maxStack, maxLocals uint16, code []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, maxStack)
	binary.Write(&buf, binary.BigEndian, maxLocals)
	binary.Write(&buf, binary.BigEndian, uint32(len(code)))
	buf.Write(code)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(&buf, binary.BigEndian, uint16(0)) // attributes_count
	return buf.Bytes()
}

func attribute(buf *bytes.Buffer, nameIdx uint16, data []byte) {
	binary.Write(buf, binary.BigEndian, nameIdx)
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

// buildSimpleClass assembles a minimal public class with no superclass
// interfaces, the given method set, and an empty field list. Each method
// carries the given raw bytecode under a synthesized Code attribute with
// maxStack/maxLocals sized generously to not overflow in tests.
func buildSimpleClass(t interface {
	Helper()
	Fatalf(string, ...any)
}, thisName, superName string, methods map[string][2]string, methodCode map[string][]byte) []byte {
	t.Helper()
	b := newClassBuilder()

	thisIdx := b.addClass(thisName)
	var superIdx uint16
	if superName != "" {
		superIdx = b.addClass(superName)
	}
	codeNameIdx := b.addUtf8("Code")

	type methodRec struct {
		nameIdx, descIdx uint16
		attr             []byte
	}
	var recs []methodRec
	for name, nd := range methods {
		descriptor := nd[1]
		nameIdx := b.addUtf8(name)
		descIdx := b.addUtf8(descriptor)
		var attrBuf bytes.Buffer
		attribute(&attrBuf, codeNameIdx, codeAttr(b, 16, 16, methodCode[name]))
		recs = append(recs, methodRec{nameIdx, descIdx, attrBuf.Bytes()})
	}

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(classMagic))
	binary.Write(&out, binary.BigEndian, uint16(0))  // minor
	binary.Write(&out, binary.BigEndian, uint16(61)) // major (Java 17)
	binary.Write(&out, binary.BigEndian, b.n)        // constant_pool_count
	out.Write(b.cp.Bytes())
	binary.Write(&out, binary.BigEndian, uint16(AccPublic|AccSuper))
	binary.Write(&out, binary.BigEndian, thisIdx)
	binary.Write(&out, binary.BigEndian, superIdx)
	binary.Write(&out, binary.BigEndian, uint16(0)) // interfaces_count
	binary.Write(&out, binary.BigEndian, uint16(0)) // fields_count
	binary.Write(&out, binary.BigEndian, uint16(len(recs)))
	for _, r := range recs {
		binary.Write(&out, binary.BigEndian, uint16(AccPublic|AccStatic))
		binary.Write(&out, binary.BigEndian, r.nameIdx)
		binary.Write(&out, binary.BigEndian, r.descIdx)
		binary.Write(&out, binary.BigEndian, uint16(1)) // attributes_count
		out.Write(r.attr)
	}
	binary.Write(&out, binary.BigEndian, uint16(0)) // class attributes_count

	if out.Len() == 0 {
		t.Fatalf("built empty class body")
	}
	return out.Bytes()
}
