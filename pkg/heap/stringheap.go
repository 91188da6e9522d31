package heap

import (
	"sync"
	"unicode/utf16"
)

// StringClass is the subset of java/lang/String's layout the interner
// needs: one reference field (`value`, pointing at the backing char
// array) plus whatever ClassLayout a concrete vm.JClass provides.
type StringClass interface {
	ClassLayout
	ValueFieldIndex() int // Refs index of the `value` field
}

// CharArrayClass describes the char[] (byte[] encoding two bytes per
// UTF-16 code unit) backing array class.
type CharArrayClass interface {
	ClassLayout
}

// StringHeap is the process-wide intern table: a
// UTF-16-string-keyed map to a permanently pinned java/lang/String
// instance. Interned strings and their backing char arrays live in the
// heap's permanent region and are never relocated or collected.
type StringHeap struct {
	mu      sync.Mutex
	h       *Heap
	strCls  StringClass
	charCls CharArrayClass
	table   map[string]*Object
}

// NewStringHeap wires the intern table to the given heap and the
// java/lang/String / char[] layouts it allocates into.
func NewStringHeap(h *Heap, strCls StringClass, charCls CharArrayClass) *StringHeap {
	return &StringHeap{h: h, strCls: strCls, charCls: charCls, table: make(map[string]*Object)}
}

// Intern returns the canonical java/lang/String instance for s, allocating
// one (and its backing char array) on first use.
func (sh *StringHeap) Intern(s string) *Object {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if obj, ok := sh.table[s]; ok {
		return obj
	}

	chars := utf16.Encode([]rune(s))
	backing := sh.h.AllocPermanentArray(sh.charCls, int32(len(chars)))
	for i, c := range chars {
		backing.SetInt16(i*2, int16(c))
	}

	strObj := sh.h.AllocPermanent(sh.strCls, 1)
	strObj.SetRef(sh.strCls.ValueFieldIndex(), backing)

	sh.table[s] = strObj
	return strObj
}

// Lookup returns the interned instance for s if one already exists,
// without creating it.
func (sh *StringHeap) Lookup(s string) (*Object, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	obj, ok := sh.table[s]
	return obj, ok
}
