package native

import (
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf16"

	"github.com/govem/govem/pkg/heap"
	"github.com/govem/govem/pkg/vm"
)

// printStreamClass is a minimal java/io/PrintStream stand-in: it carries
// no Java-visible fields, since the backing io.Writer lives in the
// registry's streams side table keyed by object identity (heap.Object has
// no slot for an arbitrary Go value, and nothing in this core needs one
// outside of this native bridge). Its method set mirrors the overloads
// registerSystemNatives binds below, so INVOKEVIRTUAL resolves against a
// real (native, code-less) JMethod rather than falling through to
// ErrNoSuchMethod before the registry is ever consulted.
var printStreamClass = vm.NewSyntheticClass("java/io/PrintStream", nil, nil, []vm.SyntheticMethod{
	{Name: "println", Descriptor: "(Ljava/lang/String;)V"},
	{Name: "print", Descriptor: "(Ljava/lang/String;)V"},
	{Name: "println", Descriptor: "()V"},
	{Name: "println", Descriptor: "(I)V"},
	{Name: "print", Descriptor: "(I)V"},
	{Name: "println", Descriptor: "(J)V"},
	{Name: "println", Descriptor: "(Z)V"},
	{Name: "print", Descriptor: "(Z)V"},
})

// systemClass mirrors real java/lang/System just enough to carry the
// out/err static fields GETSTATIC reads, typed exactly as javac emits them
// so field resolution's exact descriptor match succeeds.
var systemClass = vm.NewSyntheticClass("java/lang/System", nil, []vm.SyntheticField{
	{Name: "out", Descriptor: "Ljava/io/PrintStream;"},
	{Name: "err", Descriptor: "Ljava/io/PrintStream;"},
}, nil)

// wireSystemStreams allocates a PrintStream instance per writer, registers
// both synthetic classes into the loader, and sets System.out/System.err:
// the native-bridge equivalent of System.initPhase1 running before main().
func (r *Registry) wireSystemStreams(v *vm.VM, stdout, stderr io.Writer) error {
	v.DefineSyntheticClass(printStreamClass)
	v.DefineSyntheticClass(systemClass)

	r.streamsMu.Lock()
	if r.streams == nil {
		r.streams = make(map[*heap.Object]io.Writer)
	}
	r.streamsMu.Unlock()

	out := v.NewPermanentInstance(printStreamClass)
	errObj := v.NewPermanentInstance(printStreamClass)
	r.streamsMu.Lock()
	r.streams[out] = stdout
	r.streams[errObj] = stderr
	r.stdoutObj, r.stderrObj = out, errObj
	r.streamsMu.Unlock()

	if err := v.SetStaticField(systemClass, "out", "Ljava/io/PrintStream;", vm.RefValue(out)); err != nil {
		return err
	}
	return v.SetStaticField(systemClass, "err", "Ljava/io/PrintStream;", vm.RefValue(errObj))
}

func registerSystemNatives(r *Registry) {
	r.Register("java/lang/System", "registerNatives", "()V", noop)

	r.Register("java/lang/System", "currentTimeMillis", "()J", func(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		return vm.LongValue(time.Now().UnixMilli()), nil, nil
	})
	r.Register("java/lang/System", "nanoTime", "()J", func(_ *vm.VM, _ *vm.Thread, _ []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		return vm.LongValue(time.Now().UnixNano()), nil, nil
	})
	r.Register("java/lang/System", "identityHashCode", "(Ljava/lang/Object;)I", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		obj := args[0].Ref
		if obj == nil {
			return vm.IntValue(0), nil, nil
		}
		return vm.IntValue(obj.IdentityHash), nil, nil
	})
	r.Register("java/lang/System", "exit", "(I)V", func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		os.Exit(int(args[0].Int32()))
		return vm.Value{}, nil, nil
	})

	// arraycopy copies length elements starting at srcPos/destPos between
	// two arrays of the same element shape (primitives copied by raw byte
	// width, references copied pointer-for-pointer).
	r.Register("java/lang/System", "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V",
		func(vmi *vm.VM, t *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
			src, srcPos, dst, dstPos, length := args[0].Ref, args[1].Int32(), args[2].Ref, args[3].Int32(), args[4].Int32()
			if src == nil || dst == nil {
				return vm.Value{}, vmi.Throw("java/lang/NullPointerException", ""), nil
			}
			if srcPos < 0 || dstPos < 0 || length < 0 ||
				srcPos+length > src.Length || dstPos+length > dst.Length {
				return vm.Value{}, vmi.Throw("java/lang/ArrayIndexOutOfBoundsException", "arraycopy"), nil
			}
			if len(src.Refs) > 0 || len(dst.Refs) > 0 {
				copy(dst.Refs[dstPos:dstPos+length], src.Refs[srcPos:srcPos+length])
				return vm.Value{}, nil, nil
			}
			width := 0
			if length > 0 {
				width = len(src.Primitives) / int(src.Length)
			}
			copy(dst.Primitives[int(dstPos)*width:int(dstPos+length)*width],
				src.Primitives[int(srcPos)*width:int(srcPos+length)*width])
			return vm.Value{}, nil, nil
		})

	r.Register("java/io/PrintStream", "println", "(Ljava/lang/String;)V", r.printlnString(true))
	r.Register("java/io/PrintStream", "print", "(Ljava/lang/String;)V", r.printlnString(false))
	r.Register("java/io/PrintStream", "println", "()V", r.printlnEmpty())
	r.Register("java/io/PrintStream", "println", "(I)V", r.printlnFormat(true, "%d"))
	r.Register("java/io/PrintStream", "print", "(I)V", r.printlnFormat(false, "%d"))
	r.Register("java/io/PrintStream", "println", "(J)V", r.printlnFormat(true, "%d"))
	r.Register("java/io/PrintStream", "println", "(Z)V", r.printlnBool(true))
	r.Register("java/io/PrintStream", "print", "(Z)V", r.printlnBool(false))
}

func (r *Registry) writerFor(recv *heap.Object) io.Writer {
	r.streamsMu.Lock()
	defer r.streamsMu.Unlock()
	if w, ok := r.streams[recv]; ok {
		return w
	}
	return io.Discard
}

// Stderr returns the writer backing System.err, for natives (like
// Throwable.printStackTrace) that write there without going through a
// PrintStream receiver.
func (r *Registry) Stderr() io.Writer {
	r.streamsMu.Lock()
	defer r.streamsMu.Unlock()
	if w, ok := r.streams[r.stderrObj]; ok {
		return w
	}
	return io.Discard
}

func (r *Registry) printlnString(newline bool) vm.NativeFunc {
	return func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		w := r.writerFor(args[0].Ref)
		s := javaStringToGo(args[1].Ref)
		if newline {
			fmt.Fprintln(w, s)
		} else {
			fmt.Fprint(w, s)
		}
		return vm.Value{}, nil, nil
	}
}

func (r *Registry) printlnEmpty() vm.NativeFunc {
	return func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		fmt.Fprintln(r.writerFor(args[0].Ref))
		return vm.Value{}, nil, nil
	}
}

func (r *Registry) printlnFormat(newline bool, format string) vm.NativeFunc {
	return func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		w := r.writerFor(args[0].Ref)
		var v interface{}
		if args[1].IsCategory2() {
			v = args[1].Int64()
		} else {
			v = args[1].Int32()
		}
		if newline {
			fmt.Fprintf(w, format+"\n", v)
		} else {
			fmt.Fprintf(w, format, v)
		}
		return vm.Value{}, nil, nil
	}
}

func (r *Registry) printlnBool(newline bool) vm.NativeFunc {
	return func(_ *vm.VM, _ *vm.Thread, args []vm.Value) (vm.Value, *vm.UnwindResult, error) {
		w := r.writerFor(args[0].Ref)
		s := "false"
		if args[1].Int32() != 0 {
			s = "true"
		}
		if newline {
			fmt.Fprintln(w, s)
		} else {
			fmt.Fprint(w, s)
		}
		return vm.Value{}, nil, nil
	}
}

// JavaStringToGo decodes a java/lang/String instance's `value` char[]
// back to a Go string, for callers outside this package (the CLI's
// uncaught-exception printer) that need the same conversion println uses.
func JavaStringToGo(s *heap.Object) string { return javaStringToGo(s) }

// javaStringToGo decodes a java/lang/String instance's `value` char[] back
// to a Go string. Returns "null" for a nil reference, matching
// String.valueOf's documented behavior for println(Object).
func javaStringToGo(s *heap.Object) string {
	if s == nil {
		return "null"
	}
	jc := vm.ClassOf(s)
	if jc == nil {
		return ""
	}
	f := jc.FindInstanceField("value", "[C")
	if f == nil {
		return ""
	}
	chars, _ := s.GetRef(f.Offset)
	if chars == nil {
		return ""
	}
	units := make([]uint16, chars.Length)
	for i := range units {
		v, _ := chars.GetInt16(i * 2)
		units[i] = uint16(v)
	}
	return string(utf16.Decode(units))
}
