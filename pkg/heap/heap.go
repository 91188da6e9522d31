package heap

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// headerBytes approximates the (class_ptr, identity_hash_i32, padding_to_8)
// header every object carries, for space accounting purposes.
const headerBytes = 16

// RefLocation is an addressable external root: a frame local/operand slot,
// a static field slot, or a pin-table entry. The collector reads and
// rewrites it in place during a cycle.
type RefLocation interface {
	Get() *Object
	Set(*Object)
}

// Heap is a two-semispace copying heap plus a permanent, never-relocated
// region for interned strings and class mirrors.
type Heap struct {
	mu sync.Mutex

	spaceCapacity int // bytes budget per semispace
	live          []*Object
	bytesUsed     int

	permanent []*Object

	pins map[*PinHandle]struct{}

	gcLock           sync.Mutex
	gcCycles         int
	diagGCEveryAlloc bool

	identitySeq uint32
}

// NewHeap creates a heap whose semispace budget is spaceCapacity bytes.
func NewHeap(spaceCapacity int) *Heap {
	return &Heap{
		spaceCapacity: spaceCapacity,
		pins:          make(map[*PinHandle]struct{}),
	}
}

// SetDiagGCEveryAlloc enables the diagnostic mode that runs a
// collection after every allocation, to shake out GC-correctness bugs.
func (h *Heap) SetDiagGCEveryAlloc(v bool) { h.diagGCEveryAlloc = v }

func (h *Heap) nextIdentityHash() int32 {
	seq := atomic.AddUint32(&h.identitySeq, 1)
	// Knuth multiplicative hash; deterministic, cheap, and varies enough
	// across consecutive allocations for identity hashCode() purposes.
	mixed := seq * 2654435761
	return int32(mixed & 0x7FFFFFFF)
}

func sizeOf(o *Object) int {
	return headerBytes + len(o.Primitives) + 8*len(o.Refs)
}

// CollectFunc runs a GC cycle against the given external roots. The vm
// package supplies this closure, since only it knows about frames/statics.
type CollectFunc func(roots []RefLocation)

// Alloc allocates a non-array instance of class. collect is invoked (at
// most once) if the space budget is exhausted; if the heap is still full
// afterwards, Alloc fails with an OutOfMemoryError-shaped error.
func (h *Heap) Alloc(class ClassLayout, collect CollectFunc, roots []RefLocation) (*Object, error) {
	h.mu.Lock()
	size := headerBytes + class.InstanceSize() + 8*class.InstanceRefCount()
	h.mu.Unlock()

	obj := &Object{
		Class:      class,
		Primitives: make([]byte, class.InstanceSize()),
		Refs:       make([]*Object, class.InstanceRefCount()),
	}
	return h.commit(obj, size, collect, roots)
}

// AllocArray allocates an array of class (an ArrayClass) with the given
// length. NegativeArraySizeException-shaped errors are the caller's
// responsibility to raise; length < 0 here is just rejected.
func (h *Heap) AllocArray(class ClassLayout, length int32, collect CollectFunc, roots []RefLocation) (*Object, error) {
	if length < 0 {
		return nil, fmt.Errorf("heap: negative array length %d", length)
	}
	obj := &Object{Class: class, IsArrayObj: true, Length: length}
	if class.ComponentIsRef() {
		obj.Refs = make([]*Object, length)
	} else {
		obj.Primitives = make([]byte, int(length)*class.ComponentWidth())
	}
	size := headerBytes + len(obj.Primitives) + 8*len(obj.Refs)
	return h.commit(obj, size, collect, roots)
}

func (h *Heap) commit(obj *Object, size int, collect CollectFunc, roots []RefLocation) (*Object, error) {
	h.mu.Lock()
	needsGC := h.diagGCEveryAlloc || h.bytesUsed+size > h.spaceCapacity
	h.mu.Unlock()

	if needsGC && collect != nil {
		h.collectLocked(collect, roots)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bytesUsed+size > h.spaceCapacity {
		return nil, fmt.Errorf("heap: OutOfMemoryError: requested %d bytes, %d/%d in use", size, h.bytesUsed, h.spaceCapacity)
	}
	obj.IdentityHash = h.nextIdentityHash()
	h.live = append(h.live, obj)
	h.bytesUsed += size
	return obj, nil
}

// AllocPermanent allocates an object in the permanent region: it is never
// relocated or swept, but objects it references are still traced and kept
// alive (and forwarded) by every subsequent collection.
func (h *Heap) AllocPermanent(class ClassLayout, refCount int) *Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj := &Object{
		Class:        class,
		Primitives:   make([]byte, class.InstanceSize()),
		Refs:         make([]*Object, refCount),
		Permanent:    true,
		IdentityHash: h.nextIdentityHash(),
	}
	h.permanent = append(h.permanent, obj)
	return obj
}

// AllocPermanentArray is the array-shaped counterpart of AllocPermanent,
// used for the byte[] backing an interned java/lang/String.
func (h *Heap) AllocPermanentArray(class ClassLayout, length int32) *Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj := &Object{
		Class:        class,
		IsArrayObj:   true,
		Length:       length,
		Permanent:    true,
		IdentityHash: h.nextIdentityHash(),
	}
	if class.ComponentIsRef() {
		obj.Refs = make([]*Object, length)
	} else {
		obj.Primitives = make([]byte, int(length)*class.ComponentWidth())
	}
	h.permanent = append(h.permanent, obj)
	return obj
}

// Collect forces an immediate collection against the given roots,
// regardless of the current space budget. Exposed for the "watch"
// diagnostic command and for tests exercising scenario 6 (GC survivor).
func (h *Heap) Collect(roots []RefLocation) {
	h.collectLocked(func(r []RefLocation) { h.runCycle(r) }, roots)
}

func (h *Heap) collectLocked(collect CollectFunc, roots []RefLocation) {
	h.gcLock.Lock()
	defer h.gcLock.Unlock()
	collect(roots)
}

// RunCycle runs one Cheney cycle directly, without acquiring gcLock. It is
// meant to be called from inside a CollectFunc passed to Alloc/AllocArray,
// which commit() already invokes under gcLock; calling the exported
// Collect method from there would deadlock on the non-reentrant gcLock.
func (h *Heap) RunCycle(roots []RefLocation) { h.runCycle(roots) }

// runCycle is the actual Cheney copy: it is what vm.VM's CollectFunc
// ultimately calls after assembling the full external root set (pinned
// handles, static reference fields, every live thread's frame slots).
func (h *Heap) runCycle(roots []RefLocation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	forwarding := make(map[*Object]*Object, len(h.live))
	var toSpace []*Object
	var bytesUsed int

	var copyObj func(old *Object) *Object
	copyObj = func(old *Object) *Object {
		if old == nil || old.Permanent {
			return old
		}
		if fwd, ok := forwarding[old]; ok {
			return fwd
		}
		dup := &Object{
			Class:        old.Class,
			IdentityHash: old.IdentityHash,
			IsArrayObj:   old.IsArrayObj,
			Length:       old.Length,
			Primitives:   append([]byte(nil), old.Primitives...),
			Refs:         append([]*Object(nil), old.Refs...),
		}
		forwarding[old] = dup
		toSpace = append(toSpace, dup)
		bytesUsed += sizeOf(dup)
		return dup
	}

	for _, r := range roots {
		r.Set(copyObj(r.Get()))
	}

	// The permanent region is never copied, but its outgoing references
	// must still be forwarded and kept alive.
	for _, obj := range h.permanent {
		for j, ref := range obj.Refs {
			obj.Refs[j] = copyObj(ref)
		}
	}

	// Scan: the growing toSpace slice doubles as Cheney's "new from"
	// region, with i as the scan pointer advancing toward the bump point.
	// Re-evaluating len(toSpace) each iteration means objects appended by
	// the scan itself (including those reached only via the permanent
	// region above) are still visited.
	for i := 0; i < len(toSpace); i++ {
		obj := toSpace[i]
		for j, ref := range obj.Refs {
			obj.Refs[j] = copyObj(ref)
		}
	}

	h.live = toSpace
	h.bytesUsed = bytesUsed
	h.gcCycles++
}

// Stats reports live bytes, capacity, the number of live objects, and the
// number of completed cycles,
// consumed by the `watch` TUI.
func (h *Heap) Stats() (bytesUsed, capacity, liveObjects, cycles int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytesUsed, h.spaceCapacity, len(h.live), h.gcCycles
}

// PinHandle keeps an object reachable across GC cycles. The pinned object
// is still relocated like any other, but the handle is itself a root, so
// its Obj field is rewritten to the new copy on every cycle; dereference
// through the handle, never through a raw pointer taken before a cycle.
type PinHandle struct {
	h   *Heap
	Obj *Object
}

func (p *PinHandle) Get() *Object  { return p.Obj }
func (p *PinHandle) Set(o *Object) { p.Obj = o }

// Pin registers obj as a GC root until Unpin is called.
func (h *Heap) Pin(obj *Object) *PinHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := &PinHandle{h: h, Obj: obj}
	h.pins[p] = struct{}{}
	return p
}

// Unpin releases a previously pinned handle.
func (h *Heap) Unpin(p *PinHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pins, p)
}

// PinRoots returns the RefLocations for every currently pinned handle, to
// be folded into the root set passed to Collect.
func (h *Heap) PinRoots() []RefLocation {
	h.mu.Lock()
	defer h.mu.Unlock()
	roots := make([]RefLocation, 0, len(h.pins))
	for p := range h.pins {
		roots = append(roots, p)
	}
	return roots
}
