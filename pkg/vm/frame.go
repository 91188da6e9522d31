package vm

import (
	"fmt"

	"github.com/govem/govem/pkg/heap"
)

// Frame is one activation record: a preallocated local variable array and
// operand stack bounded by the method's max_locals and max_stack, a
// program counter, and a link to the caller's frame.
type Frame struct {
	Method *JMethod
	Class  *JClass // owning class, for constant-pool/runtime-pool access
	Code   []byte
	PC     int

	Locals []Value
	Stack  []Value
	SP     int

	Prev *Frame
}

// NewFrame allocates a frame for method on class, with its operand stack
// and locals sized from the Code attribute.
func NewFrame(method *JMethod, class *JClass) *Frame {
	var maxStack, maxLocals int
	var code []byte
	if method.Code != nil {
		maxStack = int(method.Code.MaxStack)
		maxLocals = int(method.Code.MaxLocals)
		code = method.Code.Code
	}
	return &Frame{
		Method: method,
		Class:  class,
		Code:   code,
		Locals: make([]Value, maxLocals),
		Stack:  make([]Value, maxStack),
	}
}

func (f *Frame) Push(v Value) {
	if f.SP >= len(f.Stack) {
		panic(fmt.Sprintf("operand stack overflow in %s.%s", f.Method.Owner.BinaryName, f.Method.Name))
	}
	f.Stack[f.SP] = v
	f.SP++
}

func (f *Frame) PushCategory2(v Value) {
	f.Push(v)
	f.Push(second())
}

func (f *Frame) Pop() Value {
	if f.SP <= 0 {
		panic(fmt.Sprintf("operand stack underflow in %s.%s", f.Method.Owner.BinaryName, f.Method.Name))
	}
	f.SP--
	return f.Stack[f.SP]
}

func (f *Frame) PopCategory2() Value {
	f.Pop() // discard companion slot
	return f.Pop()
}

// Peek returns the operand at depth n (0 = top) without popping.
func (f *Frame) Peek(n int) Value {
	return f.Stack[f.SP-1-n]
}

func (f *Frame) GetLocal(index int) Value { return f.Locals[index] }

func (f *Frame) SetLocal(index int, v Value) {
	f.Locals[index] = v
	if v.IsCategory2() {
		f.Locals[index+1] = second()
	}
}

// --- bytecode cursor helpers ---

func (f *Frame) ReadU8() uint8 {
	b := f.Code[f.PC]
	f.PC++
	return b
}

func (f *Frame) ReadI8() int8 { return int8(f.ReadU8()) }

func (f *Frame) ReadU16() uint16 {
	v := uint16(f.Code[f.PC])<<8 | uint16(f.Code[f.PC+1])
	f.PC += 2
	return v
}

func (f *Frame) ReadI16() int16 { return int16(f.ReadU16()) }

func (f *Frame) ReadU32() uint32 {
	v := uint32(f.Code[f.PC])<<24 | uint32(f.Code[f.PC+1])<<16 | uint32(f.Code[f.PC+2])<<8 | uint32(f.Code[f.PC+3])
	f.PC += 4
	return v
}

func (f *Frame) ReadI32() int32 { return int32(f.ReadU32()) }

// --- GC root walking ---

type frameSlotRef struct{ slot *Value }

func (r frameSlotRef) Get() *heap.Object  { return r.slot.Ref }
func (r frameSlotRef) Set(o *heap.Object) { r.slot.Ref = o }

// RootLocations returns a RefLocation for every reference-typed local and
// live operand-stack slot, so the collector can trace every frame on the
// call stack as a GC root.
func (f *Frame) RootLocations() []heap.RefLocation {
	var roots []heap.RefLocation
	for i := range f.Locals {
		if f.Locals[i].Kind == KindRef {
			roots = append(roots, frameSlotRef{&f.Locals[i]})
		}
	}
	for i := 0; i < f.SP; i++ {
		if f.Stack[i].Kind == KindRef {
			roots = append(roots, frameSlotRef{&f.Stack[i]})
		}
	}
	return roots
}

// LineNumber reports the source line covering the current PC, or 0 if
// unavailable.
func (f *Frame) LineNumber() uint16 {
	if f.Method.Code == nil {
		return 0
	}
	return f.Method.Code.LineForPC(f.PC)
}
