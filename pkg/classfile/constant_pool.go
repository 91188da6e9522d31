package classfile

import "fmt"

// Constant pool tags (JVM spec §4.4).
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// ConstantPoolEntry is implemented by every constant pool variant.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct{ Value string }

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct{ Value int32 }

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct{ Value float32 }

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct{ Value int64 }

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct{ Value float64 }

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

type ConstantClass struct{ NameIndex uint16 }

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct{ StringIndex uint16 }

func (c *ConstantString) Tag() uint8 { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

type ConstantMethodType struct{ DescriptorIndex uint16 }

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantInvokeDynamic) Tag() uint8 { return TagInvokeDynamic }

// constantEmpty occupies the second slot of a Long/Double entry. Valid
// constant-pool references never index it; any accessor landing here
// indicates a corrupt class file.
type constantEmpty struct{}

func (c *constantEmpty) Tag() uint8 { return 0 }

// ConstantPool is the 1-indexed, immutable symbolic constant table of a
// class file. Index 0 and the second slot of every Long/Double entry are
// reserved (see constantEmpty).
type ConstantPool struct {
	entries []ConstantPoolEntry
}

// NewConstantPool wraps a 1-indexed entry slice (entries[0] is unused).
func NewConstantPool(entries []ConstantPoolEntry) *ConstantPool {
	return &ConstantPool{entries: entries}
}

// Len returns the slot count, including the reserved index 0.
func (p *ConstantPool) Len() int { return len(p.entries) }

// At fetches the raw entry at index, failing loudly on an out-of-range or
// reserved/Empty index: both always indicate a corrupt class file.
func (p *ConstantPool) At(index uint16) (ConstantPoolEntry, error) {
	if int(index) <= 0 || int(index) >= len(p.entries) || p.entries[index] == nil {
		return nil, fmt.Errorf("constant pool: invalid index %d", index)
	}
	if _, empty := p.entries[index].(*constantEmpty); empty {
		return nil, fmt.Errorf("constant pool: index %d is the empty half of a long/double slot", index)
	}
	return p.entries[index], nil
}

// Utf8 returns the UTF-8 string at index.
func (p *ConstantPool) Utf8(index uint16) (string, error) {
	e, err := p.At(index)
	if err != nil {
		return "", err
	}
	u, ok := e.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool: index %d is not Utf8 (tag=%d)", index, e.Tag())
	}
	return u.Value, nil
}

// StringLiteral returns the UTF-8 payload referenced by a CONSTANT_String
// entry.
func (p *ConstantPool) StringLiteral(index uint16) (string, error) {
	e, err := p.At(index)
	if err != nil {
		return "", err
	}
	s, ok := e.(*ConstantString)
	if !ok {
		return "", fmt.Errorf("constant pool: index %d is not String (tag=%d)", index, e.Tag())
	}
	return p.Utf8(s.StringIndex)
}

// ClassName returns the name referenced by a CONSTANT_Class entry.
func (p *ConstantPool) ClassName(index uint16) (string, error) {
	e, err := p.At(index)
	if err != nil {
		return "", err
	}
	c, ok := e.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool: index %d is not Class (tag=%d)", index, e.Tag())
	}
	return p.Utf8(c.NameIndex)
}

// NameAndType resolves a CONSTANT_NameAndType entry to its (name, descriptor) pair.
func (p *ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	e, err := p.At(index)
	if err != nil {
		return "", "", err
	}
	nat, ok := e.(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool: index %d is not NameAndType (tag=%d)", index, e.Tag())
	}
	name, err = p.Utf8(nat.NameIndex)
	if err != nil {
		return "", "", err
	}
	descriptor, err = p.Utf8(nat.DescriptorIndex)
	return name, descriptor, err
}

// MemberRef is the resolved (class name, member name, descriptor) triple
// shared by Fieldref/Methodref/InterfaceMethodref.
type MemberRef struct {
	ClassName  string
	Name       string
	Descriptor string
}

// Fieldref resolves a CONSTANT_Fieldref entry.
func (p *ConstantPool) Fieldref(index uint16) (*MemberRef, error) {
	e, err := p.At(index)
	if err != nil {
		return nil, err
	}
	f, ok := e.(*ConstantFieldref)
	if !ok {
		return nil, fmt.Errorf("constant pool: index %d is not Fieldref (tag=%d)", index, e.Tag())
	}
	return p.resolveMemberRef(f.ClassIndex, f.NameAndTypeIndex)
}

// Methodref resolves a CONSTANT_Methodref entry.
func (p *ConstantPool) Methodref(index uint16) (*MemberRef, error) {
	e, err := p.At(index)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*ConstantMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool: index %d is not Methodref (tag=%d)", index, e.Tag())
	}
	return p.resolveMemberRef(m.ClassIndex, m.NameAndTypeIndex)
}

// InterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func (p *ConstantPool) InterfaceMethodref(index uint16) (*MemberRef, error) {
	e, err := p.At(index)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*ConstantInterfaceMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool: index %d is not InterfaceMethodref (tag=%d)", index, e.Tag())
	}
	return p.resolveMemberRef(m.ClassIndex, m.NameAndTypeIndex)
}

func (p *ConstantPool) resolveMemberRef(classIndex, natIndex uint16) (*MemberRef, error) {
	className, err := p.ClassName(classIndex)
	if err != nil {
		return nil, err
	}
	name, desc, err := p.NameAndType(natIndex)
	if err != nil {
		return nil, err
	}
	return &MemberRef{ClassName: className, Name: name, Descriptor: desc}, nil
}
