package vm

import (
	"math"

	"github.com/govem/govem/pkg/heap"
)

// Kind tags a Value's dynamic type. Tagged slots mean every slot always
// knows whether it holds a reference, so GC root-walking never needs to
// reconstruct slot typing from a StackMapTable-anchored abstract
// interpretation of the bytecode.
type Kind uint8

const (
	KindInt32 Kind = iota
	KindInt64
	KindFloat32
	KindFloat64
	KindRef
)

// Value is one tagged slot of the operand stack and local-variable
// array. Category-2 values (long, double) occupy
// two adjacent slots; by convention the value lives in the lower-indexed
// slot and the companion slot holds a zero KindInt32 placeholder (see
// second), never a reference (mirroring how
// classfile's constantEmpty marks the second half of a Long/Double
// constant-pool entry).
type Value struct {
	Kind Kind
	bits uint64
	Ref  *heap.Object
}

func IntValue(v int32) Value     { return Value{Kind: KindInt32, bits: uint64(uint32(v))} }
func LongValue(v int64) Value    { return Value{Kind: KindInt64, bits: uint64(v)} }
func FloatValue(v float32) Value { return Value{Kind: KindFloat32, bits: uint64(math.Float32bits(v))} }
func DoubleValue(v float64) Value {
	return Value{Kind: KindFloat64, bits: math.Float64bits(v)}
}
func RefValue(o *heap.Object) Value { return Value{Kind: KindRef, Ref: o} }
func NullValue() Value              { return Value{Kind: KindRef, Ref: nil} }

// second returns the companion slot written alongside a category-2 value.
func second() Value { return Value{Kind: KindInt32, bits: 0} }

func (v Value) Int32() int32     { return int32(uint32(v.bits)) }
func (v Value) Int64() int64     { return int64(v.bits) }
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }

func (v Value) IsCategory2() bool { return v.Kind == KindInt64 || v.Kind == KindFloat64 }
func (v Value) IsRef() bool       { return v.Kind == KindRef }

// BoolToInt renders a boolean condition as the int32 the JVM expects on
// the operand stack (0 or 1).
func BoolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
