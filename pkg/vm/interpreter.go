package vm

import (
	"fmt"
	"math"

	"github.com/govem/govem/internal/vmerr"
	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
)

// interpret runs frame's bytecode to completion, returning the method's
// result (zero Value for void), an UnwindResult if an uncaught exception
// propagated past every handler this frame's exception table covers, or a
// Go error for a host-level failure (resolution error, unsupported
// opcode) rather than a modeled Java exception.
func interpret(t *Thread, f *Frame) (Value, *UnwindResult, error) {
	vmi := t.VM

	var pending *UnwindResult

	// raise allocates and raises a VM exception at the instruction whose
	// address is pc; if the current frame's exception table covers pc with
	// a matching handler, execution resumes there and raise reports true
	// (caller should `continue` the dispatch loop); otherwise pending is
	// set for interpret to return to its caller.
	raise := func(pc int, className, message string) bool {
		exc := vmi.raise(className, message)
		if tryHandle(f, exc, pc) {
			return true
		}
		pending = newUnwind(exc)
		return false
	}

	// push places v on the operand stack; category-2 values take two slots.
	push := func(v Value) {
		f.Push(v)
		if v.IsCategory2() {
			f.Push(second())
		}
	}

	for {
		pc := f.PC
		op := f.ReadU8()

		switch op {
		case OpNop:

		case OpAconstNull:
			f.Push(NullValue())
		case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
			f.Push(IntValue(int32(op) - int32(OpIconst0)))
		case OpLconst0, OpLconst1:
			f.PushCategory2(LongValue(int64(op - OpLconst0)))
		case OpFconst0, OpFconst1, OpFconst2:
			f.Push(FloatValue(float32(op - OpFconst0)))
		case OpDconst0, OpDconst1:
			f.PushCategory2(DoubleValue(float64(op - OpDconst0)))
		case OpBipush:
			f.Push(IntValue(int32(f.ReadI8())))
		case OpSipush:
			f.Push(IntValue(int32(f.ReadI16())))

		case OpLdc, OpLdcW, OpLdc2W:
			var idx uint16
			if op == OpLdc {
				idx = uint16(f.ReadU8())
			} else {
				idx = f.ReadU16()
			}
			v, err := loadConstant(vmi, f, idx)
			if err != nil {
				return Value{}, nil, err
			}
			if op == OpLdc2W {
				f.PushCategory2(v)
			} else {
				f.Push(v)
			}

		case OpIload, OpLload, OpFload, OpDload, OpAload:
			loadLocalOp(f, op, int(f.ReadU8()))
		case OpIload0, OpIload1, OpIload2, OpIload3:
			f.Push(f.GetLocal(int(op - OpIload0)))
		case OpLload0, OpLload1, OpLload2, OpLload3:
			f.PushCategory2(f.GetLocal(int(op - OpLload0)))
		case OpFload0, OpFload1, OpFload2, OpFload3:
			f.Push(f.GetLocal(int(op - OpFload0)))
		case OpDload0, OpDload1, OpDload2, OpDload3:
			f.PushCategory2(f.GetLocal(int(op - OpDload0)))
		case OpAload0, OpAload1, OpAload2, OpAload3:
			f.Push(f.GetLocal(int(op - OpAload0)))

		case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
			storeLocalOp(f, op, int(f.ReadU8()))
		case OpIstore0, OpIstore1, OpIstore2, OpIstore3:
			f.SetLocal(int(op-OpIstore0), f.Pop())
		case OpLstore0, OpLstore1, OpLstore2, OpLstore3:
			f.SetLocal(int(op-OpLstore0), f.PopCategory2())
		case OpFstore0, OpFstore1, OpFstore2, OpFstore3:
			f.SetLocal(int(op-OpFstore0), f.Pop())
		case OpDstore0, OpDstore1, OpDstore2, OpDstore3:
			f.SetLocal(int(op-OpDstore0), f.PopCategory2())
		case OpAstore0, OpAstore1, OpAstore2, OpAstore3:
			f.SetLocal(int(op-OpAstore0), f.Pop())

		case OpIaload, OpFaload, OpLaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
			idx := f.Pop().Int32()
			arr := f.Pop().Ref
			if arr == nil {
				if raise(pc, "java/lang/NullPointerException", "") {
					continue
				}
				return Value{}, pending, nil
			}
			if idx < 0 || idx >= arr.Length {
				if raise(pc, "java/lang/ArrayIndexOutOfBoundsException", fmt.Sprintf("Index %d out of bounds for length %d", idx, arr.Length)) {
					continue
				}
				return Value{}, pending, nil
			}
			switch op {
			case OpIaload:
				v, _ := arr.GetInt32(int(idx) * 4)
				f.Push(IntValue(v))
			case OpFaload:
				v, _ := arr.GetInt32(int(idx) * 4)
				f.Push(FloatValue(math.Float32frombits(uint32(v))))
			case OpLaload:
				v, _ := arr.GetInt64(int(idx) * 8)
				f.PushCategory2(LongValue(v))
			case OpDaload:
				v, _ := arr.GetInt64(int(idx) * 8)
				f.PushCategory2(DoubleValue(math.Float64frombits(uint64(v))))
			case OpAaload:
				v, _ := arr.GetRef(int(idx))
				f.Push(RefValue(v))
			case OpBaload:
				v, _ := arr.GetByte(int(idx))
				f.Push(IntValue(int32(int8(v))))
			case OpCaload:
				v, _ := arr.GetInt16(int(idx) * 2)
				f.Push(IntValue(int32(uint16(v))))
			case OpSaload:
				v, _ := arr.GetInt16(int(idx) * 2)
				f.Push(IntValue(int32(v)))
			}

		case OpIastore, OpFastore, OpLastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
			var val Value
			if op == OpLastore || op == OpDastore {
				val = f.PopCategory2()
			} else {
				val = f.Pop()
			}
			idx := f.Pop().Int32()
			arr := f.Pop().Ref
			if arr == nil {
				if raise(pc, "java/lang/NullPointerException", "") {
					continue
				}
				return Value{}, pending, nil
			}
			if idx < 0 || idx >= arr.Length {
				if raise(pc, "java/lang/ArrayIndexOutOfBoundsException", fmt.Sprintf("Index %d out of bounds for length %d", idx, arr.Length)) {
					continue
				}
				return Value{}, pending, nil
			}
			switch op {
			case OpIastore:
				arr.SetInt32(int(idx)*4, val.Int32())
			case OpFastore:
				arr.SetInt32(int(idx)*4, int32(math.Float32bits(val.Float32())))
			case OpLastore:
				arr.SetInt64(int(idx)*8, val.Int64())
			case OpDastore:
				arr.SetInt64(int(idx)*8, int64(math.Float64bits(val.Float64())))
			case OpAastore:
				arr.SetRef(int(idx), val.Ref)
			case OpBastore:
				arr.SetByte(int(idx), byte(val.Int32()))
			case OpCastore, OpSastore:
				arr.SetInt16(int(idx)*2, int16(val.Int32()))
			}

		case OpPop:
			f.Pop()
		case OpPop2:
			f.Pop()
			f.Pop()
		case OpDup:
			f.Push(f.Peek(0))
		case OpDupX1:
			v1, v2 := f.Pop(), f.Pop()
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
		case OpDupX2:
			v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
		case OpDup2:
			v1, v2 := f.Pop(), f.Pop()
			f.Push(v2)
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
		case OpDup2X1:
			v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
			f.Push(v2)
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
		case OpDup2X2:
			v1, v2, v3, v4 := f.Pop(), f.Pop(), f.Pop(), f.Pop()
			f.Push(v2)
			f.Push(v1)
			f.Push(v4)
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
		case OpSwap:
			v1, v2 := f.Pop(), f.Pop()
			f.Push(v1)
			f.Push(v2)

		case OpIadd:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a + b))
		case OpLadd:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a + b))
		case OpFadd:
			b, a := f.Pop().Float32(), f.Pop().Float32()
			f.Push(FloatValue(a + b))
		case OpDadd:
			b, a := f.PopCategory2().Float64(), f.PopCategory2().Float64()
			f.PushCategory2(DoubleValue(a + b))
		case OpIsub:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a - b))
		case OpLsub:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a - b))
		case OpFsub:
			b, a := f.Pop().Float32(), f.Pop().Float32()
			f.Push(FloatValue(a - b))
		case OpDsub:
			b, a := f.PopCategory2().Float64(), f.PopCategory2().Float64()
			f.PushCategory2(DoubleValue(a - b))
		case OpImul:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a * b))
		case OpLmul:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a * b))
		case OpFmul:
			b, a := f.Pop().Float32(), f.Pop().Float32()
			f.Push(FloatValue(a * b))
		case OpDmul:
			b, a := f.PopCategory2().Float64(), f.PopCategory2().Float64()
			f.PushCategory2(DoubleValue(a * b))
		case OpIdiv:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			if b == 0 {
				if raise(pc, "java/lang/ArithmeticException", "/ by zero") {
					continue
				}
				return Value{}, pending, nil
			}
			f.Push(IntValue(a / b))
		case OpLdiv:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			if b == 0 {
				if raise(pc, "java/lang/ArithmeticException", "/ by zero") {
					continue
				}
				return Value{}, pending, nil
			}
			f.PushCategory2(LongValue(a / b))
		case OpFdiv:
			b, a := f.Pop().Float32(), f.Pop().Float32()
			f.Push(FloatValue(a / b))
		case OpDdiv:
			b, a := f.PopCategory2().Float64(), f.PopCategory2().Float64()
			f.PushCategory2(DoubleValue(a / b))
		case OpIrem:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			if b == 0 {
				if raise(pc, "java/lang/ArithmeticException", "/ by zero") {
					continue
				}
				return Value{}, pending, nil
			}
			f.Push(IntValue(a - (a/b)*b))
		case OpLrem:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			if b == 0 {
				if raise(pc, "java/lang/ArithmeticException", "/ by zero") {
					continue
				}
				return Value{}, pending, nil
			}
			f.PushCategory2(LongValue(a - (a/b)*b))
		case OpFrem:
			b, a := f.Pop().Float32(), f.Pop().Float32()
			f.Push(FloatValue(float32(math.Mod(float64(a), float64(b)))))
		case OpDrem:
			b, a := f.PopCategory2().Float64(), f.PopCategory2().Float64()
			f.PushCategory2(DoubleValue(math.Mod(a, b)))
		case OpIneg:
			f.Push(IntValue(-f.Pop().Int32()))
		case OpLneg:
			f.PushCategory2(LongValue(-f.PopCategory2().Int64()))
		case OpFneg:
			f.Push(FloatValue(-f.Pop().Float32()))
		case OpDneg:
			f.PushCategory2(DoubleValue(-f.PopCategory2().Float64()))

		case OpIshl:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a << (uint32(b) & 0x1F)))
		case OpLshl:
			b, a := f.Pop().Int32(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a << (uint64(b) & 0x3F)))
		case OpIshr:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a >> (uint32(b) & 0x1F)))
		case OpLshr:
			b, a := f.Pop().Int32(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a >> (uint64(b) & 0x3F)))
		case OpIushr:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(int32(uint32(a) >> (uint32(b) & 0x1F))))
		case OpLushr:
			b, a := f.Pop().Int32(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(int64(uint64(a) >> (uint64(b) & 0x3F))))
		case OpIand:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a & b))
		case OpLand:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a & b))
		case OpIor:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a | b))
		case OpLor:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a | b))
		case OpIxor:
			b, a := f.Pop().Int32(), f.Pop().Int32()
			f.Push(IntValue(a ^ b))
		case OpLxor:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			f.PushCategory2(LongValue(a ^ b))
		case OpIinc:
			idx := int(f.ReadU8())
			c := int32(f.ReadI8())
			f.SetLocal(idx, IntValue(f.GetLocal(idx).Int32()+c))

		case OpI2l:
			f.PushCategory2(LongValue(int64(f.Pop().Int32())))
		case OpI2f:
			f.Push(FloatValue(float32(f.Pop().Int32())))
		case OpI2d:
			f.PushCategory2(DoubleValue(float64(f.Pop().Int32())))
		case OpL2i:
			f.Push(IntValue(int32(f.PopCategory2().Int64())))
		case OpL2f:
			f.Push(FloatValue(float32(f.PopCategory2().Int64())))
		case OpL2d:
			f.PushCategory2(DoubleValue(float64(f.PopCategory2().Int64())))
		case OpF2i:
			f.Push(IntValue(floatToInt32(f.Pop().Float32())))
		case OpF2l:
			f.PushCategory2(LongValue(floatToInt64(f.Pop().Float32())))
		case OpF2d:
			f.PushCategory2(DoubleValue(float64(f.Pop().Float32())))
		case OpD2i:
			f.Push(IntValue(doubleToInt32(f.PopCategory2().Float64())))
		case OpD2l:
			f.PushCategory2(LongValue(doubleToInt64(f.PopCategory2().Float64())))
		case OpD2f:
			f.Push(FloatValue(float32(f.PopCategory2().Float64())))
		case OpI2b:
			f.Push(IntValue(int32(int8(f.Pop().Int32()))))
		case OpI2c:
			f.Push(IntValue(int32(uint16(f.Pop().Int32()))))
		case OpI2s:
			f.Push(IntValue(int32(int16(f.Pop().Int32()))))

		case OpLcmp:
			b, a := f.PopCategory2().Int64(), f.PopCategory2().Int64()
			f.Push(IntValue(cmp64(a, b)))
		case OpFcmpl:
			b, a := f.Pop().Float32(), f.Pop().Float32()
			f.Push(IntValue(fcmp(float64(a), float64(b), -1)))
		case OpFcmpg:
			b, a := f.Pop().Float32(), f.Pop().Float32()
			f.Push(IntValue(fcmp(float64(a), float64(b), 1)))
		case OpDcmpl:
			b, a := f.PopCategory2().Float64(), f.PopCategory2().Float64()
			f.Push(IntValue(fcmp(a, b, -1)))
		case OpDcmpg:
			b, a := f.PopCategory2().Float64(), f.PopCategory2().Float64()
			f.Push(IntValue(fcmp(a, b, 1)))

		case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
			offset := f.ReadI16()
			if compareToZero(op, f.Pop().Int32()) {
				f.PC = pc + int(offset)
			}
		case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
			offset := f.ReadI16()
			b, a := f.Pop().Int32(), f.Pop().Int32()
			if compareInts(op, a, b) {
				f.PC = pc + int(offset)
			}
		case OpIfAcmpeq, OpIfAcmpne:
			offset := f.ReadI16()
			b, a := f.Pop().Ref, f.Pop().Ref
			eq := a == b
			if (op == OpIfAcmpeq) == eq {
				f.PC = pc + int(offset)
			}
		case OpIfnull, OpIfnonnull:
			offset := f.ReadI16()
			isNull := f.Pop().Ref == nil
			if (op == OpIfnull) == isNull {
				f.PC = pc + int(offset)
			}
		case OpGoto:
			offset := f.ReadI16()
			f.PC = pc + int(offset)
		case OpGotoW:
			offset := f.ReadI32()
			f.PC = pc + int(offset)

		case OpTableswitch:
			for f.PC%4 != 0 {
				f.ReadU8()
			}
			def := f.ReadI32()
			low := f.ReadI32()
			high := f.ReadI32()
			count := int(high - low + 1)
			offsets := make([]int32, count)
			for i := 0; i < count; i++ {
				offsets[i] = f.ReadI32()
			}
			idx := f.Pop().Int32()
			if idx < low || idx > high {
				f.PC = pc + int(def)
			} else {
				f.PC = pc + int(offsets[idx-low])
			}
		case OpLookupswitch:
			for f.PC%4 != 0 {
				f.ReadU8()
			}
			def := f.ReadI32()
			npairs := f.ReadI32()
			key := f.Pop().Int32()
			target := def
			for i := int32(0); i < npairs; i++ {
				match := f.ReadI32()
				offset := f.ReadI32()
				if match == key {
					target = offset
				}
			}
			f.PC = pc + int(target)

		case OpIreturn, OpFreturn:
			return f.Pop(), nil, nil
		case OpLreturn, OpDreturn:
			return f.PopCategory2(), nil, nil
		case OpAreturn:
			return f.Pop(), nil, nil
		case OpReturn:
			return Value{}, nil, nil

		case OpGetstatic, OpPutstatic:
			idx := f.ReadU16()
			rf, err := f.Class.RuntimePool.ResolveField(idx)
			if err != nil {
				return Value{}, nil, err
			}
			if err := vmi.Linker.Initialize(rf.Class); err != nil {
				return Value{}, nil, err
			}
			if op == OpGetstatic {
				push(staticValue(rf.Class, rf.Field))
			} else {
				var v Value
				if rf.Field.IsCategory2() {
					v = f.PopCategory2()
				} else {
					v = f.Pop()
				}
				setStaticValue(rf.Class, rf.Field, v)
			}

		case OpGetfield, OpPutfield:
			idx := f.ReadU16()
			rf, err := f.Class.RuntimePool.ResolveField(idx)
			if err != nil {
				return Value{}, nil, err
			}
			if op == OpGetfield {
				obj := f.Pop().Ref
				if obj == nil {
					if raise(pc, "java/lang/NullPointerException", "") {
						continue
					}
					return Value{}, pending, nil
				}
				push(instanceValue(obj, rf.Field))
			} else {
				var v Value
				if rf.Field.IsCategory2() {
					v = f.PopCategory2()
				} else {
					v = f.Pop()
				}
				obj := f.Pop().Ref
				if obj == nil {
					if raise(pc, "java/lang/NullPointerException", "") {
						continue
					}
					return Value{}, pending, nil
				}
				setInstanceValue(obj, rf.Field, v)
			}

		case OpInvokestatic:
			idx := f.ReadU16()
			rm, err := f.Class.RuntimePool.ResolveMethod(idx)
			if err != nil {
				return Value{}, nil, err
			}
			if err := vmi.Linker.Initialize(rm.Class); err != nil {
				return Value{}, nil, err
			}
			args := popArgs(f, rm.Method.Type.Params)
			v, unwind, err := t.Invoke(rm.Method, rm.Class, args)
			if err != nil {
				return Value{}, nil, err
			}
			if unwind != nil {
				if tryHandle(f, unwind.Exception, pc) {
					continue
				}
				return Value{}, unwind, nil
			}
			if !rm.Method.Type.Void {
				push(v)
			}

		case OpInvokespecial, OpInvokevirtual, OpInvokeinterface:
			idx := f.ReadU16()
			var rm *ResolvedMethod
			var err error
			if op == OpInvokeinterface {
				rm, err = f.Class.RuntimePool.ResolveInterfaceMethod(idx)
				f.ReadU8() // count
				f.ReadU8() // reserved zero byte
			} else {
				rm, err = f.Class.RuntimePool.ResolveMethod(idx)
			}
			if err != nil {
				return Value{}, nil, err
			}
			args := popArgs(f, rm.Method.Type.Params)
			receiver := f.Pop().Ref
			if receiver == nil {
				if raise(pc, "java/lang/NullPointerException", "") {
					continue
				}
				return Value{}, pending, nil
			}

			targetClass, targetMethod := rm.Class, rm.Method
			if op == OpInvokevirtual || op == OpInvokeinterface {
				if runtimeClass, ok := receiver.Class.(*JClass); ok {
					if c, m := lookupMethod(runtimeClass, rm.Method.Name, rm.Method.Descriptor); m != nil {
						targetClass, targetMethod = c, m
					}
				}
			}

			v, unwind, err := t.Invoke(targetMethod, targetClass, append([]Value{RefValue(receiver)}, args...))
			if err != nil {
				return Value{}, nil, err
			}
			if unwind != nil {
				if tryHandle(f, unwind.Exception, pc) {
					continue
				}
				return Value{}, unwind, nil
			}
			if !rm.Method.Type.Void {
				push(v)
			}

		case OpNew:
			idx := f.ReadU16()
			rc, err := f.Class.RuntimePool.ResolveClass(idx)
			if err != nil {
				return Value{}, nil, err
			}
			if rc.Instance == nil {
				return Value{}, nil, fmt.Errorf("new: %s is not an instance class: %w", rc.Name(), vmerr.ErrIncompatibleClassChange)
			}
			if err := vmi.Linker.Initialize(rc.Instance); err != nil {
				return Value{}, nil, err
			}
			obj, err := vmi.allocInstance(rc.Instance)
			if err != nil {
				if raise(pc, "java/lang/OutOfMemoryError", "") {
					continue
				}
				return Value{}, pending, nil
			}
			f.Push(RefValue(obj))

		case OpNewarray:
			atype := f.ReadU8()
			length := f.Pop().Int32()
			if length < 0 {
				if raise(pc, "java/lang/NegativeArraySizeException", fmt.Sprintf("%d", length)) {
					continue
				}
				return Value{}, pending, nil
			}
			rc, err := vmi.Loader.LoadClass(primitiveArrayDescriptor(atype))
			if err != nil {
				return Value{}, nil, err
			}
			obj, err := vmi.allocArray(rc.Array, length)
			if err != nil {
				if raise(pc, "java/lang/OutOfMemoryError", "") {
					continue
				}
				return Value{}, pending, nil
			}
			f.Push(RefValue(obj))

		case OpAnewarray:
			idx := f.ReadU16()
			length := f.Pop().Int32()
			if length < 0 {
				if raise(pc, "java/lang/NegativeArraySizeException", fmt.Sprintf("%d", length)) {
					continue
				}
				return Value{}, pending, nil
			}
			componentName, err := f.Class.ClassFile.ConstantPool.ClassName(idx)
			if err != nil {
				return Value{}, nil, err
			}
			rc, err := vmi.Loader.LoadClass(arrayDescriptorFor(componentName))
			if err != nil {
				return Value{}, nil, err
			}
			obj, err := vmi.allocArray(rc.Array, length)
			if err != nil {
				if raise(pc, "java/lang/OutOfMemoryError", "") {
					continue
				}
				return Value{}, pending, nil
			}
			f.Push(RefValue(obj))

		case OpMultianewarray:
			idx := f.ReadU16()
			dimCount := int(f.ReadU8())
			descriptor, err := f.Class.ClassFile.ConstantPool.ClassName(idx)
			if err != nil {
				return Value{}, nil, err
			}
			dims := make([]int32, dimCount)
			for i := dimCount - 1; i >= 0; i-- {
				dims[i] = f.Pop().Int32()
			}
			if d, ok := firstNegativeDim(dims); ok {
				if raise(pc, "java/lang/NegativeArraySizeException", fmt.Sprintf("%d", d)) {
					continue
				}
				return Value{}, pending, nil
			}
			obj, err := buildMultiArray(vmi, descriptor, dims)
			if err != nil {
				return Value{}, nil, err
			}
			f.Push(RefValue(obj))

		case OpArraylength:
			arr := f.Pop().Ref
			if arr == nil {
				if raise(pc, "java/lang/NullPointerException", "") {
					continue
				}
				return Value{}, pending, nil
			}
			f.Push(IntValue(arr.Length))

		case OpAthrow:
			exc := f.Pop().Ref
			if exc == nil {
				if raise(pc, "java/lang/NullPointerException", "") {
					continue
				}
				return Value{}, pending, nil
			}
			if tryHandle(f, exc, pc) {
				continue
			}
			return Value{}, newUnwind(exc), nil

		case OpCheckcast:
			idx := f.ReadU16()
			v := f.Peek(0)
			if v.Ref != nil {
				target, err := f.Class.RuntimePool.ResolveClass(idx)
				if err != nil {
					return Value{}, nil, err
				}
				s := runtimeResolvedClassOf(v.Ref)
				if s == nil || !InstanceOf(s, target) {
					if raise(pc, "java/lang/ClassCastException", fmt.Sprintf("%s cannot be cast to %s", v.Ref.ClassName(), target.Name())) {
						continue
					}
					return Value{}, pending, nil
				}
			}

		case OpInstanceof:
			idx := f.ReadU16()
			v := f.Pop()
			if v.Ref == nil {
				f.Push(IntValue(0))
				continue
			}
			target, err := f.Class.RuntimePool.ResolveClass(idx)
			if err != nil {
				return Value{}, nil, err
			}
			s := runtimeResolvedClassOf(v.Ref)
			f.Push(IntValue(BoolToInt(s != nil && InstanceOf(s, target))))

		case OpMonitorenter, OpMonitorexit:
			f.Pop()

		case OpWide:
			sub := f.ReadU8()
			switch sub {
			case OpIload, OpLload, OpFload, OpDload, OpAload:
				loadLocalOp(f, sub, int(f.ReadU16()))
			case OpIstore, OpLstore, OpFstore, OpDstore, OpAstore:
				storeLocalOp(f, sub, int(f.ReadU16()))
			case OpIinc:
				idx := int(f.ReadU16())
				c := int32(f.ReadI16())
				f.SetLocal(idx, IntValue(f.GetLocal(idx).Int32()+c))
			case OpRet:
				return Value{}, nil, fmt.Errorf("ret: %w", vmerr.ErrUnsupportedOpcode)
			}

		case OpInvokedynamic, OpJsr, OpJsrW, OpRet, OpBreakpoint, OpImpdep1, OpImpdep2:
			return Value{}, nil, fmt.Errorf("opcode 0x%02x: %w", op, vmerr.ErrUnsupportedOpcode)

		default:
			return Value{}, nil, fmt.Errorf("opcode 0x%02x: %w", op, vmerr.ErrUnsupportedOpcode)
		}
	}
}

func loadLocalOp(f *Frame, op Opcode, idx int) {
	switch op {
	case OpLload, OpDload:
		f.PushCategory2(f.GetLocal(idx))
	default:
		f.Push(f.GetLocal(idx))
	}
}

func storeLocalOp(f *Frame, op Opcode, idx int) {
	switch op {
	case OpLstore, OpDstore:
		f.SetLocal(idx, f.PopCategory2())
	default:
		f.SetLocal(idx, f.Pop())
	}
}

// popArgs pops len(params) logical arguments off the operand stack,
// popping two slots for each category-2 parameter, returning them in
// left-to-right (declaration) order.
func popArgs(f *Frame, params []classfile.FieldType) []Value {
	args := make([]Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		if params[i].IsCategory2() {
			args[i] = f.PopCategory2()
		} else {
			args[i] = f.Pop()
		}
	}
	return args
}

func loadConstant(vmi *VM, f *Frame, idx uint16) (Value, error) {
	entry, err := f.Class.ClassFile.ConstantPool.At(idx)
	if err != nil {
		return Value{}, err
	}
	switch e := entry.(type) {
	case *classfile.ConstantInteger:
		return IntValue(e.Value), nil
	case *classfile.ConstantFloat:
		return FloatValue(e.Value), nil
	case *classfile.ConstantLong:
		return LongValue(e.Value), nil
	case *classfile.ConstantDouble:
		return DoubleValue(e.Value), nil
	case *classfile.ConstantString:
		obj, err := f.Class.RuntimePool.ResolveString(idx, vmi.Strings)
		if err != nil {
			return Value{}, err
		}
		return RefValue(obj), nil
	case *classfile.ConstantClass:
		rc, err := f.Class.RuntimePool.ResolveClass(idx)
		if err != nil {
			return Value{}, err
		}
		if rc.Instance != nil {
			return RefValue(rc.Instance.Mirror), nil
		}
		return RefValue(rc.Array.Mirror), nil
	default:
		return Value{}, fmt.Errorf("ldc: unsupported constant pool tag %d at index %d", entry.Tag(), idx)
	}
}

func compareToZero(op Opcode, v int32) bool {
	switch op {
	case OpIfeq:
		return v == 0
	case OpIfne:
		return v != 0
	case OpIflt:
		return v < 0
	case OpIfge:
		return v >= 0
	case OpIfgt:
		return v > 0
	case OpIfle:
		return v <= 0
	}
	return false
}

func compareInts(op Opcode, a, b int32) bool {
	switch op {
	case OpIfIcmpeq:
		return a == b
	case OpIfIcmpne:
		return a != b
	case OpIfIcmplt:
		return a < b
	case OpIfIcmpge:
		return a >= b
	case OpIfIcmpgt:
		return a > b
	case OpIfIcmple:
		return a <= b
	}
	return false
}

func cmp64(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// fcmp implements fcmpl/dcmpl (nanResult=-1) and fcmpg/dcmpg (nanResult=1):
// identical otherwise, differing only in which side a NaN operand biases
// toward for a subsequent conditional branch (JVM spec §6.5.fcmp<op>).
func fcmp(a, b float64, nanResult int32) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return nanResult
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func floatToInt32(v float32) int32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	if v >= float32(math.MaxInt32) {
		return math.MaxInt32
	}
	if v <= float32(math.MinInt32) {
		return math.MinInt32
	}
	return int32(v)
}

func floatToInt64(v float32) int64 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	if float64(v) >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	if float64(v) <= float64(math.MinInt64) {
		return math.MinInt64
	}
	return int64(v)
}

func doubleToInt32(v float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func doubleToInt64(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

// tryHandle scans frame's exception table for a handler covering pc that
// matches exc's runtime class, resuming execution at the handler PC with
// the operand stack cleared and exc as its sole operand.
func tryHandle(f *Frame, exc *heap.Object, pc int) bool {
	code := f.Method.Code
	if code == nil || exc == nil {
		return false
	}
	excClass, ok := exc.Class.(*JClass)
	if !ok {
		return false
	}
	for _, h := range code.ExceptionHandlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			f.SP = 0
			f.Push(RefValue(exc))
			f.PC = int(h.HandlerPC)
			return true
		}
		rc, err := f.Class.RuntimePool.ResolveClass(h.CatchType)
		if err != nil || rc.Instance == nil {
			continue
		}
		if InstanceOf(&ResolvedClass{Instance: excClass}, rc) {
			f.SP = 0
			f.Push(RefValue(exc))
			f.PC = int(h.HandlerPC)
			return true
		}
	}
	return false
}

func runtimeResolvedClassOf(obj *heap.Object) *ResolvedClass {
	if obj.IsArrayObj {
		if ac, ok := obj.Class.(*ArrayClass); ok {
			return &ResolvedClass{Array: ac}
		}
		return nil
	}
	if jc, ok := obj.Class.(*JClass); ok {
		return &ResolvedClass{Instance: jc}
	}
	return nil
}

func primitiveArrayDescriptor(atype uint8) string {
	switch atype {
	case AtypeBoolean:
		return "[Z"
	case AtypeChar:
		return "[C"
	case AtypeFloat:
		return "[F"
	case AtypeDouble:
		return "[D"
	case AtypeByte:
		return "[B"
	case AtypeShort:
		return "[S"
	case AtypeInt:
		return "[I"
	case AtypeLong:
		return "[J"
	default:
		return "[I"
	}
}

func arrayDescriptorFor(componentName string) string {
	if len(componentName) > 0 && componentName[0] == '[' {
		return "[" + componentName
	}
	return "[L" + componentName + ";"
}

// firstNegativeDim reports the first negative entry of a multianewarray
// dimension list, checked before any allocation so the raised exception
// can transfer to a handler in the dispatch loop rather than surfacing as
// a host-level allocation error mid-build.
func firstNegativeDim(dims []int32) (int32, bool) {
	for _, d := range dims {
		if d < 0 {
			return d, true
		}
	}
	return 0, false
}

// buildMultiArray allocates a multianewarray result recursively: the
// outermost dimension is a real array of the given length whose elements
// are themselves (dims[1:])-shaped arrays, down to a 1-D leaf.
func buildMultiArray(vmi *VM, descriptor string, dims []int32) (*heap.Object, error) {
	rc, err := vmi.Loader.LoadClass(descriptor)
	if err != nil {
		return nil, err
	}
	obj, err := vmi.allocArray(rc.Array, dims[0])
	if err != nil {
		return nil, fmt.Errorf("multianewarray: %w", err)
	}
	if len(dims) == 1 || dims[0] == 0 {
		return obj, nil
	}
	childDescriptor := descriptor[1:]
	for i := int32(0); i < dims[0]; i++ {
		child, err := buildMultiArray(vmi, childDescriptor, dims[1:])
		if err != nil {
			return nil, err
		}
		obj.SetRef(int(i), child)
	}
	return obj, nil
}
