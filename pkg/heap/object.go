// Package heap implements the managed object heap: instance/array
// allocation, string interning, and a two-space copying collector.
//
// Go gives a program no raw control over memory layout, so an Object here
// is not a byte-offset-addressed blob inside a mmap'd arena. It is a Go
// struct with two parallel payload slices: Primitives (packed native-width
// bytes for numeric fields/elements) and Refs (a slice of real *Object
// pointers for reference-typed fields/elements). The copying collector
// below still performs Cheney's algorithm faithfully at this level:
// semispace flip, bump allocation, a forwarding map, and root-driven
// scan-and-copy. It just copies Go struct records instead of memcpy'ing
// raw bytes.
package heap

import "fmt"

// ClassLayout is the subset of class metadata the heap needs to allocate
// and describe an object, implemented by vm.JClass / vm.ArrayClass. The
// heap package never imports vm; this interface is the seam.
type ClassLayout interface {
	Name() string
	IsArray() bool
	InstanceSize() int     // bytes of Primitives for a non-array instance
	InstanceRefCount() int // length of Refs for a non-array instance
	ComponentWidth() int   // array: native byte width of one primitive element (0 if ref component)
	ComponentIsRef() bool  // array: true if component type is reference-or-array
}

// Object is a heap-allocated instance or array.
type Object struct {
	Class        ClassLayout
	IdentityHash int32
	IsArrayObj   bool
	Length       int32 // arrays only
	Primitives   []byte
	Refs         []*Object
	Permanent    bool // true for interned strings and class mirrors; never relocated
}

// ClassName reports the object's runtime class name, for error messages.
func (o *Object) ClassName() string {
	if o == nil {
		return "<null>"
	}
	return o.Class.Name()
}

func (o *Object) checkPrimBounds(offset, width int) error {
	if offset < 0 || offset+width > len(o.Primitives) {
		return fmt.Errorf("heap: primitive offset %d+%d out of bounds (len %d)", offset, width, len(o.Primitives))
	}
	return nil
}

// GetInt8/SetInt8 etc. address the Primitives slice directly (byte offset
// for instance fields, or offset = index*width for array elements).

func (o *Object) GetByte(offset int) (byte, error) {
	if err := o.checkPrimBounds(offset, 1); err != nil {
		return 0, err
	}
	return o.Primitives[offset], nil
}

func (o *Object) SetByte(offset int, v byte) error {
	if err := o.checkPrimBounds(offset, 1); err != nil {
		return err
	}
	o.Primitives[offset] = v
	return nil
}

func (o *Object) GetInt16(offset int) (int16, error) {
	if err := o.checkPrimBounds(offset, 2); err != nil {
		return 0, err
	}
	return int16(uint16(o.Primitives[offset]) | uint16(o.Primitives[offset+1])<<8), nil
}

func (o *Object) SetInt16(offset int, v int16) error {
	if err := o.checkPrimBounds(offset, 2); err != nil {
		return err
	}
	o.Primitives[offset] = byte(v)
	o.Primitives[offset+1] = byte(v >> 8)
	return nil
}

func (o *Object) GetInt32(offset int) (int32, error) {
	if err := o.checkPrimBounds(offset, 4); err != nil {
		return 0, err
	}
	u := uint32(0)
	for i := 0; i < 4; i++ {
		u |= uint32(o.Primitives[offset+i]) << (8 * i)
	}
	return int32(u), nil
}

func (o *Object) SetInt32(offset int, v int32) error {
	if err := o.checkPrimBounds(offset, 4); err != nil {
		return err
	}
	u := uint32(v)
	for i := 0; i < 4; i++ {
		o.Primitives[offset+i] = byte(u >> (8 * i))
	}
	return nil
}

func (o *Object) GetInt64(offset int) (int64, error) {
	if err := o.checkPrimBounds(offset, 8); err != nil {
		return 0, err
	}
	u := uint64(0)
	for i := 0; i < 8; i++ {
		u |= uint64(o.Primitives[offset+i]) << (8 * i)
	}
	return int64(u), nil
}

func (o *Object) SetInt64(offset int, v int64) error {
	if err := o.checkPrimBounds(offset, 8); err != nil {
		return err
	}
	u := uint64(v)
	for i := 0; i < 8; i++ {
		o.Primitives[offset+i] = byte(u >> (8 * i))
	}
	return nil
}

func (o *Object) checkRefBounds(index int) error {
	if index < 0 || index >= len(o.Refs) {
		return fmt.Errorf("heap: ref index %d out of bounds (len %d)", index, len(o.Refs))
	}
	return nil
}

func (o *Object) GetRef(index int) (*Object, error) {
	if err := o.checkRefBounds(index); err != nil {
		return nil, err
	}
	return o.Refs[index], nil
}

func (o *Object) SetRef(index int, v *Object) error {
	if err := o.checkRefBounds(index); err != nil {
		return err
	}
	o.Refs[index] = v
	return nil
}
