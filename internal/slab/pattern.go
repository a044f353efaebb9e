package slab

import "unsafe"

// Signature bytes painted into page memory when debugging is enabled. Each
// is a distinct, recognizable constant; the exact values are otherwise
// arbitrary.
const (
	PatternUnallocated byte = 0xA5 // Fresh page bytes, never touched by a header/pad/alignment paint.
	PatternAllocated   byte = 0xC5 // Object region of a live block.
	PatternFreed       byte = 0xD5 // Object region of a free block, beyond the free-list link.
	PatternPad         byte = 0xF5 // Left/right pad fence bytes.
	PatternAlign       byte = 0xE5 // Alignment filler bytes.
)

// PaintPageBirth stamps a freshly mapped page with its initial debug
// pattern: the whole page is UNALLOCATED, then alignment fillers and pad
// regions are overwritten with their own sentinels, and header regions are
// zeroed. Object regions are left at UNALLOCATED (threading a new page
// onto the free list paints nothing; a block is painted FREED only when
// it is returned by a debug-mode Free, see PaintFreed).
//
// This is the one whole-page operation in the pattern engine; it walks buf
// by slice index because it runs once per page, not once per
// allocate/free, so it has no O(1)-per-call obligation.
func PaintPageBirth(buf []byte, l Layout) {
	for i := range buf {
		buf[i] = PatternUnallocated
	}

	fill(buf, PointerSize, l.LeftAlign, PatternAlign)

	for i := 0; i < l.ObjectsPerPage; i++ {
		if i > 0 {
			interAlignOffset := l.ObjectOffset(i) - l.PadBytes - l.HeaderSize - l.InterAlign
			fill(buf, interAlignOffset, l.InterAlign, PatternAlign)
		}
		if l.HeaderSize > 0 {
			fill(buf, l.HeaderOffset(i), l.HeaderSize, 0)
		}
		fill(buf, l.LeftPadOffset(i), l.PadBytes, PatternPad)
		fill(buf, l.RightPadOffset(i), l.PadBytes, PatternPad)
	}
}

func fill(buf []byte, offset, n int, b byte) {
	if n <= 0 {
		return
	}
	for i := offset; i < offset+n; i++ {
		buf[i] = b
	}
}

// paintAddr stamps n bytes starting at the real memory address addr. Used
// by the single-block hot-path operations below, which work directly off
// a block's own address rather than a page slice + offset, so that
// allocate/free never need to locate their page (see DESIGN.md's note on
// why page lookup is confined to the validator and whole-page scans).
func paintAddr(addr uintptr, n int, b byte) {
	for i := 0; i < n; i++ {
		*(*byte)(unsafe.Pointer(addr + uintptr(i))) = b
	}
}

// PaintAllocated stamps a block's object region (objectSize bytes at addr)
// as ALLOCATED.
func PaintAllocated(addr uintptr, objectSize int) {
	paintAddr(addr, objectSize, PatternAllocated)
}

// PaintFreed stamps a block's object region as FREED. Callers push the
// block onto the free list afterward, which overwrites the first
// PointerSize bytes with the free-list link — so the observable,
// post-free state is "FREED beyond the first pointer-sized bytes", exactly
// as required by the testable properties.
func PaintFreed(addr uintptr, objectSize int) {
	paintAddr(addr, objectSize, PatternFreed)
}

// CheckPad verifies that the padBytes fence on each side of the object
// region at addr still holds PatternPad. badAddr is the first offending
// byte's address when ok is false.
func CheckPad(addr uintptr, objectSize, padBytes int) (ok bool, badAddr uintptr) {
	if padBytes == 0 {
		return true, 0
	}
	left := addr - uintptr(padBytes)
	for i := 0; i < padBytes; i++ {
		a := left + uintptr(i)
		if *(*byte)(unsafe.Pointer(a)) != PatternPad {
			return false, a
		}
	}
	right := addr + uintptr(objectSize)
	for i := 0; i < padBytes; i++ {
		a := right + uintptr(i)
		if *(*byte)(unsafe.Pointer(a)) != PatternPad {
			return false, a
		}
	}
	return true, 0
}
