package vm

import (
	"math"

	"github.com/govem/govem/pkg/heap"
)

// Static field accessors address jc.StaticPrimitives/StaticRefs directly
// by the JField's Offset (byte offset for primitives, slot index for refs).

func putStaticInt32(jc *JClass, f *JField, v int32) {
	u := uint32(v)
	for i := 0; i < 4; i++ {
		jc.StaticPrimitives[f.Offset+i] = byte(u >> (8 * i))
	}
}

func getStaticInt32(jc *JClass, f *JField) int32 {
	u := uint32(0)
	for i := 0; i < 4; i++ {
		u |= uint32(jc.StaticPrimitives[f.Offset+i]) << (8 * i)
	}
	return int32(u)
}

func putStaticInt64(jc *JClass, f *JField, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		jc.StaticPrimitives[f.Offset+i] = byte(u >> (8 * i))
	}
}

func getStaticInt64(jc *JClass, f *JField) int64 {
	u := uint64(0)
	for i := 0; i < 8; i++ {
		u |= uint64(jc.StaticPrimitives[f.Offset+i]) << (8 * i)
	}
	return int64(u)
}

func putStaticFloat32(jc *JClass, f *JField, v float32) {
	putStaticInt32(jc, f, int32(math.Float32bits(v)))
}
func getStaticFloat32(jc *JClass, f *JField) float32 {
	return math.Float32frombits(uint32(getStaticInt32(jc, f)))
}

func putStaticFloat64(jc *JClass, f *JField, v float64) {
	putStaticInt64(jc, f, int64(math.Float64bits(v)))
}
func getStaticFloat64(jc *JClass, f *JField) float64 {
	return math.Float64frombits(uint64(getStaticInt64(jc, f)))
}

func getStaticRef(jc *JClass, f *JField) *heap.Object    { return jc.StaticRefs[f.Offset] }
func putStaticRef(jc *JClass, f *JField, v *heap.Object) { jc.StaticRefs[f.Offset] = v }

// staticValue/setStaticValue bridge a JField to the Value type used on the
// operand stack, dispatching on the field's parsed type.
func staticValue(jc *JClass, f *JField) Value {
	if f.IsRef {
		return RefValue(getStaticRef(jc, f))
	}
	if f.Type.IsCategory2() {
		if f.Type.Base == 'D' {
			return DoubleValue(getStaticFloat64(jc, f))
		}
		return LongValue(getStaticInt64(jc, f))
	}
	if f.Type.Base == 'F' {
		return FloatValue(getStaticFloat32(jc, f))
	}
	return IntValue(getStaticInt32(jc, f))
}

func setStaticValue(jc *JClass, f *JField, v Value) {
	if f.IsRef {
		putStaticRef(jc, f, v.Ref)
		return
	}
	if f.Type.IsCategory2() {
		if f.Type.Base == 'D' {
			putStaticFloat64(jc, f, v.Float64())
		} else {
			putStaticInt64(jc, f, v.Int64())
		}
		return
	}
	if f.Type.Base == 'F' {
		putStaticFloat32(jc, f, v.Float32())
	} else {
		putStaticInt32(jc, f, v.Int32())
	}
}

// instanceValue/setInstanceValue are the Instance-payload counterparts,
// used by GETFIELD/PUTFIELD.
func instanceValue(obj *heap.Object, f *JField) Value {
	if f.IsRef {
		ref, _ := obj.GetRef(f.Offset)
		return RefValue(ref)
	}
	if f.Type.IsCategory2() {
		i64, _ := obj.GetInt64(f.Offset)
		if f.Type.Base == 'D' {
			return DoubleValue(math.Float64frombits(uint64(i64)))
		}
		return LongValue(i64)
	}
	i32, _ := obj.GetInt32(f.Offset)
	if f.Type.Base == 'F' {
		return FloatValue(math.Float32frombits(uint32(i32)))
	}
	return IntValue(i32)
}

func setInstanceValue(obj *heap.Object, f *JField, v Value) {
	if f.IsRef {
		obj.SetRef(f.Offset, v.Ref)
		return
	}
	if f.Type.IsCategory2() {
		if f.Type.Base == 'D' {
			obj.SetInt64(f.Offset, int64(math.Float64bits(v.Float64())))
		} else {
			obj.SetInt64(f.Offset, v.Int64())
		}
		return
	}
	if f.Type.Base == 'F' {
		obj.SetInt32(f.Offset, int32(math.Float32bits(v.Float32())))
	} else {
		obj.SetInt32(f.Offset, v.Int32())
	}
}
