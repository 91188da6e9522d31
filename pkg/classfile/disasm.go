package classfile

import (
	"fmt"
	"strings"
)

// opcodeInfo names one bytecode instruction and the width of its fixed
// operand bytes (not counting the opcode byte itself); -1 marks a
// variable-width instruction (tableswitch/lookupswitch/wide) that
// Disassemble steps by hand. The same JVM spec §6.5 opcode table package
// vm's interpreter switches on, duplicated here as plain byte values so
// this package (a pure decoder) never has to import vm.
var opcodeInfo = map[byte]struct {
	name     string
	operands int
}{
	0x00: {"nop", 0}, 0x01: {"aconst_null", 0},
	0x02: {"iconst_m1", 0}, 0x03: {"iconst_0", 0}, 0x04: {"iconst_1", 0},
	0x05: {"iconst_2", 0}, 0x06: {"iconst_3", 0}, 0x07: {"iconst_4", 0}, 0x08: {"iconst_5", 0},
	0x09: {"lconst_0", 0}, 0x0a: {"lconst_1", 0},
	0x0b: {"fconst_0", 0}, 0x0c: {"fconst_1", 0}, 0x0d: {"fconst_2", 0},
	0x0e: {"dconst_0", 0}, 0x0f: {"dconst_1", 0},
	0x10: {"bipush", 1}, 0x11: {"sipush", 2},
	0x12: {"ldc", 1}, 0x13: {"ldc_w", 2}, 0x14: {"ldc2_w", 2},
	0x15: {"iload", 1}, 0x16: {"lload", 1}, 0x17: {"fload", 1}, 0x18: {"dload", 1}, 0x19: {"aload", 1},
	0x1a: {"iload_0", 0}, 0x1b: {"iload_1", 0}, 0x1c: {"iload_2", 0}, 0x1d: {"iload_3", 0},
	0x1e: {"lload_0", 0}, 0x1f: {"lload_1", 0}, 0x20: {"lload_2", 0}, 0x21: {"lload_3", 0},
	0x22: {"fload_0", 0}, 0x23: {"fload_1", 0}, 0x24: {"fload_2", 0}, 0x25: {"fload_3", 0},
	0x26: {"dload_0", 0}, 0x27: {"dload_1", 0}, 0x28: {"dload_2", 0}, 0x29: {"dload_3", 0},
	0x2a: {"aload_0", 0}, 0x2b: {"aload_1", 0}, 0x2c: {"aload_2", 0}, 0x2d: {"aload_3", 0},
	0x2e: {"iaload", 0}, 0x2f: {"laload", 0}, 0x30: {"faload", 0}, 0x31: {"daload", 0},
	0x32: {"aaload", 0}, 0x33: {"baload", 0}, 0x34: {"caload", 0}, 0x35: {"saload", 0},
	0x36: {"istore", 1}, 0x37: {"lstore", 1}, 0x38: {"fstore", 1}, 0x39: {"dstore", 1}, 0x3a: {"astore", 1},
	0x3b: {"istore_0", 0}, 0x3c: {"istore_1", 0}, 0x3d: {"istore_2", 0}, 0x3e: {"istore_3", 0},
	0x3f: {"lstore_0", 0}, 0x40: {"lstore_1", 0}, 0x41: {"lstore_2", 0}, 0x42: {"lstore_3", 0},
	0x43: {"fstore_0", 0}, 0x44: {"fstore_1", 0}, 0x45: {"fstore_2", 0}, 0x46: {"fstore_3", 0},
	0x47: {"dstore_0", 0}, 0x48: {"dstore_1", 0}, 0x49: {"dstore_2", 0}, 0x4a: {"dstore_3", 0},
	0x4b: {"astore_0", 0}, 0x4c: {"astore_1", 0}, 0x4d: {"astore_2", 0}, 0x4e: {"astore_3", 0},
	0x4f: {"iastore", 0}, 0x50: {"lastore", 0}, 0x51: {"fastore", 0}, 0x52: {"dastore", 0},
	0x53: {"aastore", 0}, 0x54: {"bastore", 0}, 0x55: {"castore", 0}, 0x56: {"sastore", 0},
	0x57: {"pop", 0}, 0x58: {"pop2", 0},
	0x59: {"dup", 0}, 0x5a: {"dup_x1", 0}, 0x5b: {"dup_x2", 0},
	0x5c: {"dup2", 0}, 0x5d: {"dup2_x1", 0}, 0x5e: {"dup2_x2", 0}, 0x5f: {"swap", 0},
	0x60: {"iadd", 0}, 0x61: {"ladd", 0}, 0x62: {"fadd", 0}, 0x63: {"dadd", 0},
	0x64: {"isub", 0}, 0x65: {"lsub", 0}, 0x66: {"fsub", 0}, 0x67: {"dsub", 0},
	0x68: {"imul", 0}, 0x69: {"lmul", 0}, 0x6a: {"fmul", 0}, 0x6b: {"dmul", 0},
	0x6c: {"idiv", 0}, 0x6d: {"ldiv", 0}, 0x6e: {"fdiv", 0}, 0x6f: {"ddiv", 0},
	0x70: {"irem", 0}, 0x71: {"lrem", 0}, 0x72: {"frem", 0}, 0x73: {"drem", 0},
	0x74: {"ineg", 0}, 0x75: {"lneg", 0}, 0x76: {"fneg", 0}, 0x77: {"dneg", 0},
	0x78: {"ishl", 0}, 0x79: {"lshl", 0}, 0x7a: {"ishr", 0}, 0x7b: {"lshr", 0},
	0x7c: {"iushr", 0}, 0x7d: {"lushr", 0},
	0x7e: {"iand", 0}, 0x7f: {"land", 0}, 0x80: {"ior", 0}, 0x81: {"lor", 0},
	0x82: {"ixor", 0}, 0x83: {"lxor", 0},
	0x84: {"iinc", 2},
	0x85: {"i2l", 0}, 0x86: {"i2f", 0}, 0x87: {"i2d", 0},
	0x88: {"l2i", 0}, 0x89: {"l2f", 0}, 0x8a: {"l2d", 0},
	0x8b: {"f2i", 0}, 0x8c: {"f2l", 0}, 0x8d: {"f2d", 0},
	0x8e: {"d2i", 0}, 0x8f: {"d2l", 0}, 0x90: {"d2f", 0},
	0x91: {"i2b", 0}, 0x92: {"i2c", 0}, 0x93: {"i2s", 0},
	0x94: {"lcmp", 0}, 0x95: {"fcmpl", 0}, 0x96: {"fcmpg", 0}, 0x97: {"dcmpl", 0}, 0x98: {"dcmpg", 0},
	0x99: {"ifeq", 2}, 0x9a: {"ifne", 2}, 0x9b: {"iflt", 2}, 0x9c: {"ifge", 2}, 0x9d: {"ifgt", 2}, 0x9e: {"ifle", 2},
	0x9f: {"if_icmpeq", 2}, 0xa0: {"if_icmpne", 2}, 0xa1: {"if_icmplt", 2},
	0xa2: {"if_icmpge", 2}, 0xa3: {"if_icmpgt", 2}, 0xa4: {"if_icmple", 2},
	0xa5: {"if_acmpeq", 2}, 0xa6: {"if_acmpne", 2},
	0xa7: {"goto", 2}, 0xa8: {"jsr", 2}, 0xa9: {"ret", 1},
	0xaa: {"tableswitch", -1}, 0xab: {"lookupswitch", -1},
	0xac: {"ireturn", 0}, 0xad: {"lreturn", 0}, 0xae: {"freturn", 0},
	0xaf: {"dreturn", 0}, 0xb0: {"areturn", 0}, 0xb1: {"return", 0},
	0xb2: {"getstatic", 2}, 0xb3: {"putstatic", 2}, 0xb4: {"getfield", 2}, 0xb5: {"putfield", 2},
	0xb6: {"invokevirtual", 2}, 0xb7: {"invokespecial", 2}, 0xb8: {"invokestatic", 2},
	0xb9: {"invokeinterface", 4}, 0xba: {"invokedynamic", 4},
	0xbb: {"new", 2}, 0xbc: {"newarray", 1}, 0xbd: {"anewarray", 2},
	0xbe: {"arraylength", 0}, 0xbf: {"athrow", 0},
	0xc0: {"checkcast", 2}, 0xc1: {"instanceof", 2},
	0xc2: {"monitorenter", 0}, 0xc3: {"monitorexit", 0},
	0xc4: {"wide", -1}, 0xc5: {"multianewarray", 3},
	0xc6: {"ifnull", 2}, 0xc7: {"ifnonnull", 2},
	0xc8: {"goto_w", 4}, 0xc9: {"jsr_w", 4},
	0xca: {"breakpoint", 0}, 0xfe: {"impdep1", 0}, 0xff: {"impdep2", 0},
}

func u16(code []byte, at int) uint16 { return uint16(code[at])<<8 | uint16(code[at+1]) }
func u32(code []byte, at int) uint32 {
	return uint32(code[at])<<24 | uint32(code[at+1])<<16 | uint32(code[at+2])<<8 | uint32(code[at+3])
}

// instructionWidth returns the total byte length (opcode + operands) of
// the instruction starting at pc, handling the three variable-width forms
// (tableswitch, lookupswitch, wide) per JVM spec §4.4/§6.5's padding and
// sub-opcode rules.
func instructionWidth(code []byte, pc int) int {
	op := code[pc]
	switch op {
	case 0xaa: // tableswitch
		pad := (4 - (pc+1)%4) % 4
		base := pc + 1 + pad
		low := int32(u32(code, base+4))
		high := int32(u32(code, base+8))
		return 1 + pad + 12 + int(high-low+1)*4
	case 0xab: // lookupswitch
		pad := (4 - (pc+1)%4) % 4
		base := pc + 1 + pad
		npairs := int32(u32(code, base+4))
		return 1 + pad + 8 + int(npairs)*8
	case 0xc4: // wide
		if code[pc+1] == 0x84 { // iinc
			return 6
		}
		return 4
	default:
		info, ok := opcodeInfo[op]
		if !ok {
			return 1
		}
		return 1 + info.operands
	}
}

// disassembleOne formats one instruction at pc as a javap-ish line:
// offset, mnemonic, and its operand bytes as a signed/unsigned integer
// (raw, unresolved; the caller annotates CP-indexed operands separately).
func disassembleOne(code []byte, pc int) string {
	op := code[pc]
	info, ok := opcodeInfo[op]
	name := info.name
	if !ok {
		name = fmt.Sprintf("unknown_0x%02x", op)
	}

	switch op {
	case 0xaa, 0xab: // tableswitch / lookupswitch: print only the instruction's total width
		width := instructionWidth(code, pc)
		return fmt.Sprintf("%4d: %s (%d bytes)", pc, name, width)
	case 0xc4: // wide
		sub := code[pc+1]
		subInfo := opcodeInfo[sub]
		idx := u16(code, pc+2)
		if sub == 0x84 {
			delta := int16(u16(code, pc+4))
			return fmt.Sprintf("%4d: wide %s %d, %d", pc, subInfo.name, idx, delta)
		}
		return fmt.Sprintf("%4d: wide %s %d", pc, subInfo.name, idx)
	}

	switch info.operands {
	case 0:
		return fmt.Sprintf("%4d: %s", pc, name)
	case 1:
		if op == 0x10 { // bipush: signed byte
			return fmt.Sprintf("%4d: %s %d", pc, name, int8(code[pc+1]))
		}
		return fmt.Sprintf("%4d: %s %d", pc, name, code[pc+1])
	case 2:
		return fmt.Sprintf("%4d: %s %d", pc, name, u16(code, pc+1))
	case 3:
		return fmt.Sprintf("%4d: %s %d, %d", pc, name, u16(code, pc+1), code[pc+3])
	case 4:
		if op == 0xb9 { // invokeinterface: index, count, reserved-zero
			return fmt.Sprintf("%4d: %s %d, %d", pc, name, u16(code, pc+1), code[pc+3])
		}
		return fmt.Sprintf("%4d: %s %d", pc, name, u32(code, pc+1))
	default:
		return fmt.Sprintf("%4d: %s", pc, name)
	}
}

// DisassembleCode renders one method's Code attribute, one instruction per
// line, in the style of javap -c: offset, mnemonic, operand.
func DisassembleCode(c *CodeAttribute) string {
	var b strings.Builder
	for pc := 0; pc < len(c.Code); {
		fmt.Fprintln(&b, disassembleOne(c.Code, pc))
		pc += instructionWidth(c.Code, pc)
	}
	return b.String()
}

// Disassemble renders cf's constant pool, fields, and method bytecode as
// a single human-readable report: constant-pool entries by index,
// field/method signatures, and Code bytes.
func Disassemble(cf *ClassFile) string {
	var b strings.Builder

	name, _ := cf.ClassName()
	super, _ := cf.SuperClassName()
	fmt.Fprintf(&b, "class %s", name)
	if super != "" {
		fmt.Fprintf(&b, " extends %s", super)
	}
	fmt.Fprintf(&b, "\n  minor version: %d\n  major version: %d\n  access flags: 0x%04x\n",
		cf.MinorVersion, cf.MajorVersion, cf.AccessFlags)

	fmt.Fprintln(&b, "Constant pool:")
	for i := 1; i < cf.ConstantPool.Len(); i++ {
		e, err := cf.ConstantPool.At(uint16(i))
		if err != nil {
			continue // reserved index 0 or a long/double's empty second slot
		}
		fmt.Fprintf(&b, "  #%d = %s\n", i, describeConstant(cf.ConstantPool, e))
	}

	fmt.Fprintln(&b, "Fields:")
	for _, f := range cf.Fields {
		fmt.Fprintf(&b, "  %s %s:%s\n", accessFlagsString(f.AccessFlags), f.Name, f.Descriptor)
	}

	fmt.Fprintln(&b, "Methods:")
	for _, m := range cf.Methods {
		fmt.Fprintf(&b, "  %s %s%s\n", accessFlagsString(m.AccessFlags), m.Name, m.Descriptor)
		if m.Code != nil {
			fmt.Fprintf(&b, "    max_stack=%d, max_locals=%d\n", m.Code.MaxStack, m.Code.MaxLocals)
			for _, line := range strings.Split(strings.TrimRight(DisassembleCode(m.Code), "\n"), "\n") {
				fmt.Fprintf(&b, "    %s\n", line)
			}
			for _, eh := range m.Code.ExceptionHandlers {
				fmt.Fprintf(&b, "    catch [%d,%d) -> %d type=#%d\n", eh.StartPC, eh.EndPC, eh.HandlerPC, eh.CatchType)
			}
		}
		for _, attr := range m.RawAttrs {
			fmt.Fprintf(&b, "    attribute %s (%d bytes, unrecognized)\n", attr.Name, len(attr.Data))
		}
	}

	return b.String()
}

func describeConstant(cp *ConstantPool, e ConstantPoolEntry) string {
	switch c := e.(type) {
	case *ConstantUtf8:
		return fmt.Sprintf("Utf8\t\t%s", c.Value)
	case *ConstantInteger:
		return fmt.Sprintf("Integer\t\t%d", c.Value)
	case *ConstantFloat:
		return fmt.Sprintf("Float\t\t%f", c.Value)
	case *ConstantLong:
		return fmt.Sprintf("Long\t\t%d", c.Value)
	case *ConstantDouble:
		return fmt.Sprintf("Double\t\t%f", c.Value)
	case *ConstantClass:
		return fmt.Sprintf("Class\t\t#%d", c.NameIndex)
	case *ConstantString:
		return fmt.Sprintf("String\t\t#%d", c.StringIndex)
	case *ConstantFieldref:
		return fmt.Sprintf("Fieldref\t\t#%d.#%d", c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantMethodref:
		return fmt.Sprintf("Methodref\t\t#%d.#%d", c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		return fmt.Sprintf("InterfaceMethodref\t#%d.#%d", c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantNameAndType:
		return fmt.Sprintf("NameAndType\t#%d:#%d", c.NameIndex, c.DescriptorIndex)
	case *ConstantMethodHandle:
		return fmt.Sprintf("MethodHandle\tkind=%d #%d", c.ReferenceKind, c.ReferenceIndex)
	case *ConstantMethodType:
		return fmt.Sprintf("MethodType\t#%d", c.DescriptorIndex)
	case *ConstantInvokeDynamic:
		return fmt.Sprintf("InvokeDynamic\tbootstrap=#%d #%d", c.BootstrapMethodAttrIndex, c.NameAndTypeIndex)
	default:
		return fmt.Sprintf("tag=%d", e.Tag())
	}
}

func accessFlagsString(flags uint16) string {
	var parts []string
	for _, pair := range []struct {
		bit  uint16
		name string
	}{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"}, {AccNative, "native"},
		{AccAbstract, "abstract"}, {AccInterface, "interface"}, {AccSynthetic, "synthetic"},
	} {
		if flags&pair.bit != 0 {
			parts = append(parts, pair.name)
		}
	}
	if len(parts) == 0 {
		return "(package)"
	}
	return strings.Join(parts, " ")
}
