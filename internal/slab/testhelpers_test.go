package slab

import "unsafe"

// addrOf returns the real memory address of buf[offset], for tests that
// exercise the addr-based primitives (free list, header engine, pattern
// engine) against a plain heap-allocated backing buffer instead of an
// mmap'd page. Go does not move a byte slice's backing array once
// allocated, so the address stays valid for the lifetime of buf.
func addrOf(buf []byte, offset int) uintptr {
	return uintptr(unsafe.Pointer(&buf[offset]))
}
