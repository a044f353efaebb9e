package slab

import (
	"errors"
	"unsafe"
)

// Validator error taxonomy, returned by Free in debug mode.
var (
	ErrMultipleFree   = errors.New("blockpool: multiple free: block is already free")
	ErrCorruptedBlock = errors.New("blockpool: corrupted block: pad bytes altered")
	ErrBadBoundary    = errors.New("blockpool: bad boundary: address is not at a block boundary")
	ErrBadAddress     = errors.New("blockpool: bad address: address is not within any live page")
)

// Validator runs the checks free() performs in debug mode: boundary,
// double-free, then corruption. Boundary runs first because it is the
// only check that never dereferences addr itself (it only consults
// page-store metadata); running double-free or corruption ahead of it
// would mean reading a fingerprint or pad byte at a caller-supplied
// address nothing has yet confirmed is memory this pool owns. Each check
// examines everything it covers (both pad fences, every pad byte) with no
// early exit that would hide corruption, but CheckFree stops at the first
// check that fails and reports only that error.
type Validator struct {
	layout Layout
	pages  *PageStore
	free   *FreeList
}

// NewValidator constructs a validator sharing the pool's layout, page
// store, and free list.
func NewValidator(layout Layout, pages *PageStore, free *FreeList) *Validator {
	return &Validator{layout: layout, pages: pages, free: free}
}

// CheckFree runs all checks against addr, the object-region address about
// to be freed. It returns the first failing check's error, or nil.
func (v *Validator) CheckFree(addr uintptr) error {
	p, i, err := v.locate(addr)
	if err != nil {
		return err
	}
	if err := v.checkDoubleFree(addr); err != nil {
		return err
	}
	if err := v.checkCorruption(p, i); err != nil {
		return err
	}
	return nil
}

// checkDoubleFree implements the double-free fingerprint/membership check.
func (v *Validator) checkDoubleFree(addr uintptr) error {
	if v.layout.ObjectSize > PointerSize {
		b := *(*byte)(unsafe.Pointer(addr + uintptr(PointerSize)))
		if b == PatternFreed {
			return ErrMultipleFree
		}
		return nil
	}
	// Object too small to carry a reliable fingerprint byte beyond the
	// overlay pointer; fall back to an O(n) free-list membership scan.
	if v.free.Contains(addr) {
		return ErrMultipleFree
	}
	return nil
}

// locate finds the page and block index owning addr, implementing the
// boundary check; it is the prerequisite for every other check, since
// only it establishes that addr is memory this pool actually owns.
func (v *Validator) locate(addr uintptr) (*page, int, error) {
	p, ok := v.pages.Find(addr)
	if !ok {
		return nil, 0, ErrBadAddress
	}
	distance := int(addr - p.base)
	i, ok := v.layout.BlockIndex(distance)
	if !ok {
		return nil, 0, ErrBadBoundary
	}
	return p, i, nil
}

// checkCorruption implements the pad-byte corruption check.
func (v *Validator) checkCorruption(p *page, i int) error {
	addr := p.base + uintptr(v.layout.ObjectOffset(i))
	if ok, _ := CheckPad(addr, v.layout.ObjectSize, v.layout.PadBytes); !ok {
		return ErrCorruptedBlock
	}
	return nil
}

// ValidatePages scans every block of every live page, invoking fn for
// each one whose pad bytes are corrupted. It returns the number of
// corrupted blocks found. A no-op (returns 0) when padBytes is 0, since
// there are no pad bytes to check. The debug-mode gate is enforced by the
// façade, which is the only caller.
func (v *Validator) ValidatePages(fn func(addr uintptr, size int)) int {
	if v.layout.PadBytes == 0 {
		return 0
	}
	count := 0
	v.pages.Each(func(p *page) {
		for i := 0; i < v.layout.ObjectsPerPage; i++ {
			addr := p.base + uintptr(v.layout.ObjectOffset(i))
			if ok, _ := CheckPad(addr, v.layout.ObjectSize, v.layout.PadBytes); !ok {
				count++
				if fn != nil {
					fn(addr, v.layout.ObjectSize)
				}
			}
		}
	})
	return count
}
