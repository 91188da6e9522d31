package classfile

import (
	"fmt"
	"strings"
)

// BaseType is one of the eight primitive descriptor letters.
type BaseType byte

const (
	BaseByte    BaseType = 'B'
	BaseChar    BaseType = 'C'
	BaseDouble  BaseType = 'D'
	BaseFloat   BaseType = 'F'
	BaseInt     BaseType = 'I'
	BaseLong    BaseType = 'J'
	BaseShort   BaseType = 'S'
	BaseBoolean BaseType = 'Z'
)

// FieldType is a parsed field descriptor: either a primitive BaseType, or
// a reference type (class name or array) identified by Dimensions > 0 /
// ClassName != "".
type FieldType struct {
	Base       BaseType // zero value if this is a reference type
	ClassName  string   // internal form, e.g. "java/lang/String"; "" for primitives
	Dimensions int      // number of leading '[' (0 for non-array types)
}

// IsPrimitive reports whether this is a non-array primitive type.
func (t FieldType) IsPrimitive() bool {
	return t.Dimensions == 0 && t.Base != 0
}

// IsReference reports whether a value of this type is GC-traced, i.e.
// whether it is an object or array type.
func (t FieldType) IsReference() bool {
	return t.Dimensions > 0 || (t.Base == 0 && t.ClassName != "")
}

// IsCategory2 reports whether this type occupies two slots (long/double).
func (t FieldType) IsCategory2() bool {
	return t.Dimensions == 0 && (t.Base == BaseLong || t.Base == BaseDouble)
}

// ComponentType returns the type one dimension down (e.g. "[[I" -> "[I").
// Dimensions is not checked: on a non-array type the result has
// Dimensions == -1, so callers must check first.
func (t FieldType) ComponentType() FieldType {
	c := t
	c.Dimensions--
	return c
}

// String renders the type back to its descriptor form (round-trips with Parse).
func (t FieldType) String() string {
	var sb strings.Builder
	for i := 0; i < t.Dimensions; i++ {
		sb.WriteByte('[')
	}
	if t.ClassName != "" || (t.Base == 0 && t.Dimensions == 0) {
		sb.WriteByte('L')
		sb.WriteString(t.ClassName)
		sb.WriteByte(';')
	} else {
		sb.WriteByte(byte(t.Base))
	}
	return sb.String()
}

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []FieldType
	Return FieldType // Void == true means no return type
	Void   bool
}

// String renders the method descriptor back to its textual form.
func (m MethodType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	if m.Void {
		sb.WriteByte('V')
	} else {
		sb.WriteString(m.Return.String())
	}
	return sb.String()
}

// ParamSlots returns the number of operand-stack/local-variable slots the
// parameters occupy (category-2 types count twice).
func (m MethodType) ParamSlots() int {
	n := 0
	for _, p := range m.Params {
		if p.IsCategory2() {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ParseFieldType parses a single FieldType starting at s[0]; returns the
// parsed type and the unconsumed remainder of s. A failure to consume a
// well-formed prefix is reported as an error; the trailing-garbage check
// for whole-descriptor parsing is performed by ParseDescriptor and
// ParseMethodDescriptor.
func ParseFieldType(s string) (FieldType, string, error) {
	dims := 0
	i := 0
	for i < len(s) && s[i] == '[' {
		dims++
		i++
	}
	if i >= len(s) {
		return FieldType{}, "", fmt.Errorf("descriptor: unexpected end after %d '['", dims)
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return FieldType{Base: BaseType(s[i]), Dimensions: dims}, s[i+1:], nil
	case 'L':
		end := strings.IndexByte(s[i+1:], ';')
		if end < 0 {
			return FieldType{}, "", fmt.Errorf("descriptor: unterminated class type in %q", s)
		}
		className := s[i+1 : i+1+end]
		return FieldType{ClassName: className, Dimensions: dims}, s[i+1+end+1:], nil
	default:
		return FieldType{}, "", fmt.Errorf("descriptor: invalid type tag %q in %q", s[i], s)
	}
}

// ParseDescriptor parses a complete field descriptor, failing if any
// trailing bytes remain unconsumed.
func ParseDescriptor(s string) (FieldType, error) {
	t, rest, err := ParseFieldType(s)
	if err != nil {
		return FieldType{}, err
	}
	if rest != "" {
		return FieldType{}, fmt.Errorf("descriptor: trailing data %q after field type in %q", rest, s)
	}
	return t, nil
}

// ParseMethodDescriptor parses a complete method descriptor:
// '(' FieldType* ')' ( FieldType | 'V' ).
func ParseMethodDescriptor(s string) (MethodType, error) {
	if len(s) == 0 || s[0] != '(' {
		return MethodType{}, fmt.Errorf("descriptor: method descriptor must start with '(': %q", s)
	}
	rest := s[1:]
	var params []FieldType
	for len(rest) > 0 && rest[0] != ')' {
		t, next, err := ParseFieldType(rest)
		if err != nil {
			return MethodType{}, fmt.Errorf("descriptor: parsing parameter in %q: %w", s, err)
		}
		params = append(params, t)
		rest = next
	}
	if len(rest) == 0 || rest[0] != ')' {
		return MethodType{}, fmt.Errorf("descriptor: missing ')' in %q", s)
	}
	rest = rest[1:]
	if rest == "V" {
		return MethodType{Params: params, Void: true}, nil
	}
	ret, tail, err := ParseFieldType(rest)
	if err != nil {
		return MethodType{}, fmt.Errorf("descriptor: parsing return type in %q: %w", s, err)
	}
	if tail != "" {
		return MethodType{}, fmt.Errorf("descriptor: trailing data %q after return type in %q", tail, s)
	}
	return MethodType{Params: params, Return: ret}, nil
}
