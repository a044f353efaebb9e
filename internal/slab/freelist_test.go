package slab

import (
	"runtime"
	"testing"
)

// backingSlots returns a heap-allocated buffer large enough to host n
// pointer-sized slots, and the address of each slot's start, for use by
// the free-list tests below. Free-list tests never need mmap'd memory:
// the link overlay works on any addressable byte region.
func backingSlots(n int) (buf []byte, addrs []uintptr) {
	buf = make([]byte, n*PointerSize)
	addrs = make([]uintptr, n)
	for i := 0; i < n; i++ {
		addrs[i] = addrOf(buf, i*PointerSize)
	}
	return buf, addrs
}

func TestFreeListPushPopLIFO(t *testing.T) {
	buf, addrs := backingSlots(3)
	defer runtime.KeepAlive(buf)
	var f FreeList

	f.Push(addrs[0])
	f.Push(addrs[1])
	f.Push(addrs[2])

	for i := 2; i >= 0; i-- {
		got, ok := f.Pop()
		if !ok {
			t.Fatalf("Pop() ok=false, expected a value")
		}
		if got != addrs[i] {
			t.Errorf("Pop() = %v, want %v (LIFO order)", got, addrs[i])
		}
	}

	if _, ok := f.Pop(); ok {
		t.Error("Pop() on empty list returned ok=true")
	}
}

func TestFreeListHead(t *testing.T) {
	buf, addrs := backingSlots(2)
	defer runtime.KeepAlive(buf)
	var f FreeList

	if f.Head() != 0 {
		t.Errorf("Head() on empty list = %v, want 0", f.Head())
	}
	f.Push(addrs[0])
	if f.Head() != addrs[0] {
		t.Errorf("Head() = %v, want %v", f.Head(), addrs[0])
	}
	f.Push(addrs[1])
	if f.Head() != addrs[1] {
		t.Errorf("Head() = %v, want %v", f.Head(), addrs[1])
	}
}

func TestFreeListContains(t *testing.T) {
	buf, addrs := backingSlots(3)
	defer runtime.KeepAlive(buf)
	var f FreeList
	f.Push(addrs[0])
	f.Push(addrs[1])

	if !f.Contains(addrs[0]) {
		t.Error("Contains(addrs[0]) = false, want true")
	}
	if !f.Contains(addrs[1]) {
		t.Error("Contains(addrs[1]) = false, want true")
	}
	if f.Contains(addrs[2]) {
		t.Error("Contains(addrs[2]) = true, want false (never pushed)")
	}
}

func TestFreeListCount(t *testing.T) {
	buf, addrs := backingSlots(4)
	defer runtime.KeepAlive(buf)
	var f FreeList
	if f.Count() != 0 {
		t.Errorf("Count() = %d, want 0", f.Count())
	}
	for _, a := range addrs {
		f.Push(a)
	}
	if f.Count() != 4 {
		t.Errorf("Count() = %d, want 4", f.Count())
	}
	f.Pop()
	if f.Count() != 3 {
		t.Errorf("Count() after Pop = %d, want 3", f.Count())
	}
}

func TestFreeListRemoveAllPreservesOrderOfSurvivors(t *testing.T) {
	buf, addrs := backingSlots(4)
	defer runtime.KeepAlive(buf)
	var f FreeList
	// Push in order 0,1,2,3 -> head is 3,2,1,0.
	for _, a := range addrs {
		f.Push(a)
	}

	f.RemoveAll(map[uintptr]bool{addrs[2]: true})

	var popped []uintptr
	for {
		a, ok := f.Pop()
		if !ok {
			break
		}
		popped = append(popped, a)
	}

	want := []uintptr{addrs[3], addrs[1], addrs[0]}
	if len(popped) != len(want) {
		t.Fatalf("popped %v, want %v", popped, want)
	}
	for i := range want {
		if popped[i] != want[i] {
			t.Errorf("popped[%d] = %v, want %v", i, popped[i], want[i])
		}
	}
}
