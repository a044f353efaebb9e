package slab

import "testing"

func newTestValidator(t *testing.T, padBytes int) (*Validator, *PageStore, *FreeList, Layout) {
	t.Helper()
	l := NewLayout(16, HeaderNone, 0, padBytes, 0, 4)
	pages := NewPageStore(l, 0)
	free := &FreeList{}
	v := NewValidator(l, pages, free)

	p, err := pages.AddPage()
	if err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}
	PaintPageBirth(p.buf, l)
	for i := l.ObjectsPerPage - 1; i >= 0; i-- {
		addr := p.base + uintptr(l.ObjectOffset(i))
		PaintFreed(addr, l.ObjectSize)
		free.Push(addr)
	}
	return v, pages, free, l
}

func TestValidatorCheckFreeDoubleFree(t *testing.T) {
	v, _, free, l := newTestValidator(t, 0)

	// Simulate Allocate: pop the block and paint it ALLOCATED, clearing the
	// FREED fingerprint, exactly as Pool.Allocate does before any later
	// Pool.Free reaches the validator.
	addr, ok := free.Pop()
	if !ok {
		t.Fatal("free list unexpectedly empty")
	}
	PaintAllocated(addr, l.ObjectSize)

	if err := v.CheckFree(addr); err != nil {
		t.Fatalf("CheckFree on a freshly allocated block = %v, want nil", err)
	}

	// Simulate a genuine double free: a second block is popped (allocated),
	// immediately freed (as Pool.Free would: check, then paint FREED, then
	// push), and then CheckFree is asked about it again without it ever
	// having been reallocated in between.
	still, ok := free.Pop()
	if !ok {
		t.Fatal("free list unexpectedly empty")
	}
	PaintAllocated(still, l.ObjectSize)
	if err := v.CheckFree(still); err != nil {
		t.Fatalf("CheckFree on second freshly allocated block = %v, want nil", err)
	}
	PaintFreed(still, l.ObjectSize)
	free.Push(still)

	if err := v.CheckFree(still); err != ErrMultipleFree {
		t.Errorf("CheckFree on an already-freed block = %v, want %v", err, ErrMultipleFree)
	}
}

func TestValidatorCheckFreeBadAddress(t *testing.T) {
	v, _, _, _ := newTestValidator(t, 0)

	if err := v.CheckFree(0xdeadbeef); err != ErrBadAddress {
		t.Errorf("CheckFree(bad address) = %v, want %v", err, ErrBadAddress)
	}
}

func TestValidatorCheckFreeBadBoundary(t *testing.T) {
	v, pages, _, l := newTestValidator(t, 0)

	// Boundary is checked before double-free or corruption (it is the only
	// check that doesn't dereference addr itself), so a misaligned address
	// is rejected without needing the block's fingerprint byte to be in any
	// particular state.
	p := pages.Head()
	misaligned := p.base + uintptr(l.ObjectOffset(1)) + 1

	if err := v.CheckFree(misaligned); err != ErrBadBoundary {
		t.Errorf("CheckFree(misaligned address) = %v, want %v", err, ErrBadBoundary)
	}
}

func TestValidatorCheckFreeCorruption(t *testing.T) {
	v, pages, free, l := newTestValidator(t, 4)

	p := pages.Head()
	addr := p.base + uintptr(l.ObjectOffset(0))

	// addr starts on the free list (pushed in newTestValidator); pop it and
	// paint it ALLOCATED (as Pool.Allocate would) so the double-free check
	// passes and the corruption check is reached.
	popped, ok := free.Pop()
	if !ok || popped != addr {
		t.Fatalf("expected first pop to be block 0's address")
	}
	PaintAllocated(popped, l.ObjectSize)

	rightPad := l.RightPadOffset(0)
	p.buf[rightPad] = 0xFF // corrupt the right pad fence.

	if err := v.CheckFree(addr); err != ErrCorruptedBlock {
		t.Errorf("CheckFree(corrupted block) = %v, want %v", err, ErrCorruptedBlock)
	}
}

func TestValidatorValidatePagesFindsCorruption(t *testing.T) {
	v, pages, _, l := newTestValidator(t, 4)

	p := pages.Head()
	p.buf[l.LeftPadOffset(2)] = 0xFF

	var got []uintptr
	count := v.ValidatePages(func(addr uintptr, size int) {
		got = append(got, addr)
	})

	if count != 1 {
		t.Fatalf("ValidatePages() count = %d, want 1", count)
	}
	want := p.base + uintptr(l.ObjectOffset(2))
	if len(got) != 1 || got[0] != want {
		t.Errorf("ValidatePages() reported %v, want [%v]", got, want)
	}
}

func TestValidatorValidatePagesNoopWhenNoPadding(t *testing.T) {
	v, _, _, _ := newTestValidator(t, 0)
	if count := v.ValidatePages(nil); count != 0 {
		t.Errorf("ValidatePages() with padBytes=0 = %d, want 0", count)
	}
}
