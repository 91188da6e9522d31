package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const classMagic = 0xCAFEBABE

// Parse decodes a .class file from r (JVM spec §4). The magic number is
// verified first; a mismatch or short read fails immediately.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	entries, err := parseConstantPoolEntries(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = NewConstantPool(entries)

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := range cf.Interfaces {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	if err := parseClassAttributes(r, cf); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

// parseConstantPoolEntries reads constant_pool_count-1 entries. The
// returned slice is 1-indexed: index 0 is nil, and the second slot of
// every Long/Double entry is a constantEmpty sentinel.
func parseConstantPoolEntries(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	entries := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading tag at index %d: %w", i, err)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, err)
			}
			raw := make([]byte, length)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, err)
			}
			s, err := decodeModifiedUTF8(raw)
			if err != nil {
				return nil, fmt.Errorf("decoding Utf8 at index %d: %w", i, err)
			}
			entries[i] = &ConstantUtf8{Value: s}

		case TagInteger:
			var v int32
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, fmt.Errorf("reading Integer at index %d: %w", i, err)
			}
			entries[i] = &ConstantInteger{Value: v}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Float at index %d: %w", i, err)
			}
			entries[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var v int64
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, fmt.Errorf("reading Long at index %d: %w", i, err)
			}
			entries[i] = &ConstantLong{Value: v}
			i++
			if int(i) < len(entries) {
				entries[i] = &constantEmpty{}
			}

		case TagDouble:
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Double at index %d: %w", i, err)
			}
			entries[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++
			if int(i) < len(entries) {
				entries[i] = &constantEmpty{}
			}

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Class at index %d: %w", i, err)
			}
			entries[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var strIndex uint16
			if err := binary.Read(r, binary.BigEndian, &strIndex); err != nil {
				return nil, fmt.Errorf("reading String at index %d: %w", i, err)
			}
			entries[i] = &ConstantString{StringIndex: strIndex}

		case TagFieldref:
			c, n, err := readClassNatPair(r)
			if err != nil {
				return nil, fmt.Errorf("reading Fieldref at index %d: %w", i, err)
			}
			entries[i] = &ConstantFieldref{ClassIndex: c, NameAndTypeIndex: n}

		case TagMethodref:
			c, n, err := readClassNatPair(r)
			if err != nil {
				return nil, fmt.Errorf("reading Methodref at index %d: %w", i, err)
			}
			entries[i] = &ConstantMethodref{ClassIndex: c, NameAndTypeIndex: n}

		case TagInterfaceMethodref:
			c, n, err := readClassNatPair(r)
			if err != nil {
				return nil, fmt.Errorf("reading InterfaceMethodref at index %d: %w", i, err)
			}
			entries[i] = &ConstantInterfaceMethodref{ClassIndex: c, NameAndTypeIndex: n}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType name_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType descriptor_index at index %d: %w", i, err)
			}
			entries[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var refKind uint8
			var refIndex uint16
			if err := binary.Read(r, binary.BigEndian, &refKind); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference_kind at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &refIndex); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference_index at index %d: %w", i, err)
			}
			entries[i] = &ConstantMethodHandle{ReferenceKind: refKind, ReferenceIndex: refIndex}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading MethodType at index %d: %w", i, err)
			}
			entries[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			var bmIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &bmIndex); err != nil {
				return nil, fmt.Errorf("reading Dynamic/InvokeDynamic bootstrap index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading Dynamic/InvokeDynamic name_and_type at index %d: %w", i, err)
			}
			entries[i] = &ConstantInvokeDynamic{BootstrapMethodAttrIndex: bmIndex, NameAndTypeIndex: natIndex}

		case TagModule, TagPackage:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Module/Package at index %d: %w", i, err)
			}
			entries[i] = &ConstantClass{NameIndex: nameIndex}

		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return entries, nil
}

func readClassNatPair(r io.Reader) (classIndex, natIndex uint16, err error) {
	if err = binary.Read(r, binary.BigEndian, &classIndex); err != nil {
		return 0, 0, err
	}
	if err = binary.Read(r, binary.BigEndian, &natIndex); err != nil {
		return 0, 0, err
	}
	return classIndex, natIndex, nil
}

func parseFields(r io.Reader, pool *ConstantPool, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := range fields {
		accessFlags, name, desc, attrs, err := parseMemberHeader(r, pool)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		f := FieldInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc}
		for _, a := range attrs {
			if a.Name == "ConstantValue" {
				if len(a.Data) != 2 {
					return nil, fmt.Errorf("field %d: malformed ConstantValue attribute", i)
				}
				idx := binary.BigEndian.Uint16(a.Data)
				entry, err := pool.At(idx)
				if err != nil {
					return nil, fmt.Errorf("field %d: resolving ConstantValue: %w", i, err)
				}
				f.ConstantValue = entry
			} else {
				f.RawAttrs = append(f.RawAttrs, a)
			}
		}
		fields[i] = f
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool *ConstantPool, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := range methods {
		accessFlags, name, desc, attrs, err := parseMemberHeader(r, pool)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		m := MethodInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc}
		for _, a := range attrs {
			switch a.Name {
			case "Code":
				code, err := parseCodeAttribute(a.Data, pool)
				if err != nil {
					return nil, fmt.Errorf("method %d (%s): parsing Code: %w", i, name, err)
				}
				m.Code = code
			case "Exceptions":
				names, err := parseExceptionsAttribute(a.Data, pool)
				if err != nil {
					return nil, fmt.Errorf("method %d (%s): parsing Exceptions: %w", i, name, err)
				}
				m.Exceptions = names
			default:
				m.RawAttrs = append(m.RawAttrs, a)
			}
		}
		methods[i] = m
	}
	return methods, nil
}

// parseMemberHeader reads the common field_info/method_info prefix:
// access_flags, name_index, descriptor_index, then its attribute list.
func parseMemberHeader(r io.Reader, pool *ConstantPool) (accessFlags uint16, name, descriptor string, attrs []AttributeInfo, err error) {
	var nameIndex, descIndex, attrCount uint16
	if err = binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
		return 0, "", "", nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
		return 0, "", "", nil, fmt.Errorf("reading name index: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &descIndex); err != nil {
		return 0, "", "", nil, fmt.Errorf("reading descriptor index: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &attrCount); err != nil {
		return 0, "", "", nil, fmt.Errorf("reading attributes count: %w", err)
	}
	if name, err = pool.Utf8(nameIndex); err != nil {
		return 0, "", "", nil, fmt.Errorf("resolving name: %w", err)
	}
	if descriptor, err = pool.Utf8(descIndex); err != nil {
		return 0, "", "", nil, fmt.Errorf("resolving descriptor: %w", err)
	}
	attrs, err = parseRawAttributes(r, pool, attrCount)
	if err != nil {
		return 0, "", "", nil, fmt.Errorf("parsing attributes: %w", err)
	}
	return accessFlags, name, descriptor, attrs, nil
}

// parseRawAttributes reads count attribute_info structures verbatim:
// unknown attributes are kept as raw bytes, skipped by their declared
// length rather than interpreted.
func parseRawAttributes(r io.Reader, pool *ConstantPool, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := range attrs {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}
		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseExceptionsAttribute(data []byte, pool *ConstantPool) ([]string, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("Exceptions attribute too short")
	}
	count := binary.BigEndian.Uint16(data)
	if len(data) < 2+2*int(count) {
		return nil, fmt.Errorf("Exceptions attribute truncated")
	}
	names := make([]string, count)
	for i := range names {
		idx := binary.BigEndian.Uint16(data[2+2*i:])
		name, err := pool.ClassName(idx)
		if err != nil {
			return nil, err
		}
		names[i] = name
	}
	return names, nil
}

func parseCodeAttribute(data []byte, pool *ConstantPool) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}
	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])
	if uint64(len(data)) < 8+uint64(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}
	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	offset := 8 + int(codeLength)
	if offset+2 > len(data) {
		return nil, fmt.Errorf("Code attribute truncated before exception table")
	}
	exTableLen := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	handlers := make([]ExceptionHandler, exTableLen)
	for i := range handlers {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("Code attribute truncated in exception table entry %d", i)
		}
		handlers[i] = ExceptionHandler{
			StartPC:   binary.BigEndian.Uint16(data[offset:]),
			EndPC:     binary.BigEndian.Uint16(data[offset+2:]),
			HandlerPC: binary.BigEndian.Uint16(data[offset+4:]),
			CatchType: binary.BigEndian.Uint16(data[offset+6:]),
		}
		offset += 8
	}

	if offset+2 > len(data) {
		return nil, fmt.Errorf("Code attribute truncated before attributes count")
	}
	attrCount := binary.BigEndian.Uint16(data[offset:])
	offset += 2

	ca := &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
	}

	for i := uint16(0); i < attrCount; i++ {
		if offset+6 > len(data) {
			return nil, fmt.Errorf("Code attribute truncated in nested attribute %d", i)
		}
		nameIndex := binary.BigEndian.Uint16(data[offset:])
		length := binary.BigEndian.Uint32(data[offset+2:])
		offset += 6
		if uint64(offset)+uint64(length) > uint64(len(data)) {
			return nil, fmt.Errorf("Code attribute nested attribute %d exceeds data bounds", i)
		}
		attrData := data[offset : offset+int(length)]
		offset += int(length)

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			continue
		}
		switch name {
		case "LineNumberTable":
			entries, err := parseLineNumberTable(attrData)
			if err != nil {
				return nil, fmt.Errorf("parsing LineNumberTable: %w", err)
			}
			ca.LineNumbers = append(ca.LineNumbers, entries...)
		case "StackMapTable":
			ca.StackMapTable = attrData
		case "LocalVariableTable", "LocalVariableTypeTable":
			// Recognised but not retained: debug-only variable tables.
		default:
			ca.RawAttrs = append(ca.RawAttrs, AttributeInfo{Name: name, Data: attrData})
		}
	}

	return ca, nil
}

func parseLineNumberTable(data []byte) ([]LineNumberEntry, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("LineNumberTable too short")
	}
	count := binary.BigEndian.Uint16(data)
	if len(data) < 2+4*int(count) {
		return nil, fmt.Errorf("LineNumberTable truncated")
	}
	entries := make([]LineNumberEntry, count)
	for i := range entries {
		off := 2 + 4*i
		entries[i] = LineNumberEntry{
			StartPC: binary.BigEndian.Uint16(data[off:]),
			Line:    binary.BigEndian.Uint16(data[off+2:]),
		}
	}
	return entries, nil
}

func parseClassAttributes(r io.Reader, cf *ClassFile) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return fmt.Errorf("reading class attributes count: %w", err)
	}
	attrs, err := parseRawAttributes(r, cf.ConstantPool, count)
	if err != nil {
		return err
	}
	for _, a := range attrs {
		if a.Name == "SourceFile" && len(a.Data) == 2 {
			idx := binary.BigEndian.Uint16(a.Data)
			name, err := cf.ConstantPool.Utf8(idx)
			if err == nil {
				cf.SourceFile = name
			}
		}
	}
	return nil
}
