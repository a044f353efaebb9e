// Package blockpool implements a fixed-size object pool: a chain of mmap'd
// pages carved into equal-size blocks, served and reclaimed through an
// intrusive free list in O(1), with optional debug instrumentation
// (signature patterns, pad-byte corruption checks, double-free detection,
// and boundary validation).
package blockpool

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/vindahl/blockpool/internal/slab"
)

// Address is an opaque handle to a live block's object region. It is valid
// only for the Pool that returned it, until that block is freed.
type Address uintptr

// Pool is a fixed-size object allocator. A Pool is not safe for concurrent
// use; callers needing concurrent access must serialize their own calls,
// see DESIGN.md's "Dropped / adapted teacher code" section.
type Pool struct {
	objectSize int
	config     Config
	layout     slab.Layout
	pages      *slab.PageStore
	free       slab.FreeList
	header     *slab.HeaderEngine
	validator  *slab.Validator
	logger     *slog.Logger

	debug      bool
	allocNum   uint32
	stats      Stats
	sysBlocks  map[uintptr][]byte // UseSystemAllocator bookkeeping: addr -> owning slice.
	labelCount map[uint64]*labelBucket
}

// labelBucket tallies allocations made under a given label, keyed by its
// xxhash digest so labels never touch the hot path as strings beyond the
// call that introduces them.
type labelBucket struct {
	label string
	count uint64
}

// New constructs a Pool for fixed-size objects of objectSize bytes under
// config. logger may be nil, in which case slog.Default() is used.
func New(objectSize int, config Config, logger *slog.Logger) (*Pool, error) {
	if err := config.Validate(objectSize); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		objectSize: objectSize,
		config:     config,
		logger:     logger,
		debug:      config.Debug,
		stats:      Stats{ObjectSize: objectSize},
	}

	if config.UseSystemAllocator {
		p.sysBlocks = make(map[uintptr][]byte)
		return p, nil
	}

	p.layout = slab.NewLayout(objectSize, config.HeaderKind, config.ExtraBytes, config.PadBytes, config.Alignment, config.ObjectsPerPage)
	p.pages = slab.NewPageStore(p.layout, config.MaxPages)
	p.header = slab.NewHeaderEngine(config.HeaderKind, config.ExtraBytes, config.PadBytes)
	p.validator = slab.NewValidator(p.layout, p.pages, &p.free)
	p.stats.PageSize = p.layout.PageSize

	if config.Debug {
		p.labelCount = make(map[uint64]*labelBucket)
	}

	return p, nil
}

// Allocate serves one object, carving a new page if the free list is
// empty. label is recorded only when Debug is enabled and HeaderKind is
// HeaderExternal; it is otherwise ignored, at zero cost.
func (p *Pool) Allocate(label string) (Address, error) {
	if p.config.UseSystemAllocator {
		buf := make([]byte, p.objectSize)
		addr := uintptr(unsafe.Pointer(&buf[0]))
		p.sysBlocks[addr] = buf
		p.stats.recordAllocate()
		return Address(addr), nil
	}

	addr, ok := p.free.Pop()
	if !ok {
		if _, err := p.pages.AddPage(); err != nil {
			return 0, err
		}
		if p.debug {
			slab.PaintPageBirth(p.pages.NewestBuf(), p.layout)
		}
		p.stats.recordPageAdded(p.layout.ObjectsPerPage)
		p.threadPageOntoFreeList(p.pages.NewestBase())
		addr, ok = p.free.Pop()
		if !ok {
			return 0, fmt.Errorf("blockpool: internal error: freshly mapped page yielded no free blocks")
		}
	}

	p.allocNum++
	hasLabel := p.debug && label != "" && p.config.HeaderKind == HeaderExternal
	p.header.OnAllocate(addr, p.allocNum, label, hasLabel)

	if p.debug {
		slab.PaintAllocated(addr, p.objectSize)
		if hasLabel {
			p.recordLabel(label)
		}
	}

	p.stats.recordAllocate()
	return Address(addr), nil
}

// Free returns addr to the pool. In debug mode it runs the validator
// (boundary, double-free, corruption, in that order) before releasing the
// block; a failing check is logged and returned, and the block is NOT
// pushed back onto the free list.
func (p *Pool) Free(addr Address) error {
	raw := uintptr(addr)

	if p.config.UseSystemAllocator {
		if _, ok := p.sysBlocks[raw]; !ok {
			return ErrBadAddress
		}
		delete(p.sysBlocks, raw)
		p.stats.recordFree()
		return nil
	}

	if p.debug {
		if err := p.validator.CheckFree(raw); err != nil {
			p.logger.Error("blockpool: free rejected", "error", err, "addr", raw)
			return err
		}
		slab.PaintFreed(raw, p.objectSize)
	}

	p.header.OnFree(raw)
	p.free.Push(raw)
	p.stats.recordFree()
	return nil
}

// threadPageOntoFreeList pushes every block of a freshly mapped page onto
// the free list from block 0 (lowest address) to the last block (highest
// address), so the highest-address block ends up on top and is served
// first; each subsequent Allocate call on the same page then serves the
// next-lower address.
func (p *Pool) threadPageOntoFreeList(base uintptr) {
	for i := 0; i < p.layout.ObjectsPerPage; i++ {
		addr := base + uintptr(p.layout.ObjectOffset(i))
		p.free.Push(addr)
	}
}

// recordLabel tallies an allocation under label, using xxhash to key the
// bucket map without retaining every distinct label string as a map key
// directly (mirrors the corpus's use of xxhash to key hot lookup paths).
func (p *Pool) recordLabel(label string) {
	h := xxhash.Sum64String(label)
	b, ok := p.labelCount[h]
	if !ok {
		b = &labelBucket{label: label}
		p.labelCount[h] = b
	}
	b.count++
}

// LabelCounts returns, for each distinct label seen by a debug-mode
// Allocate call, the number of allocations made under it. Returns nil
// when the Pool uses the system allocator or Debug has never been enabled
// on it; labels are tallied only for HeaderExternal, so for any other
// HeaderKind the map is empty.
func (p *Pool) LabelCounts() map[string]uint64 {
	if p.labelCount == nil {
		return nil
	}
	out := make(map[string]uint64, len(p.labelCount))
	for _, b := range p.labelCount {
		out[b.label] = b.count
	}
	return out
}

// DumpInUse invokes callback for every block currently considered in use:
// those with HeaderBasic/HeaderExtended/HeaderExternal headers report via
// the header engine's own bookkeeping; HeaderNone pools report every block
// not currently reachable from the free list. It returns the count.
func (p *Pool) DumpInUse(callback func(addr Address, size int)) int {
	if p.config.UseSystemAllocator {
		n := 0
		for raw := range p.sysBlocks {
			n++
			if callback != nil {
				callback(Address(raw), p.objectSize)
			}
		}
		return n
	}

	count := 0
	p.pages.EachBase(func(base uintptr) {
		for i := 0; i < p.layout.ObjectsPerPage; i++ {
			addr := base + uintptr(p.layout.ObjectOffset(i))
			inUse := p.header.IsInUse(addr)
			if p.config.HeaderKind == HeaderNone {
				inUse = !p.free.Contains(addr)
			}
			if inUse {
				count++
				if callback != nil {
					callback(Address(addr), p.objectSize)
				}
			}
		}
	})
	return count
}

// ValidatePages scans every live block's pad bytes for corruption,
// invoking callback for each corrupted block found. A no-op returning 0
// when Debug is false or PadBytes is 0.
func (p *Pool) ValidatePages(callback func(addr Address, size int)) int {
	if !p.debug || p.validator == nil {
		return 0
	}
	return p.validator.ValidatePages(func(addr uintptr, size int) {
		if callback != nil {
			callback(Address(addr), size)
		}
	})
}

// ReclaimEmptyPages releases every page whose blocks are all on the free
// list back to the operating system, removing those blocks from the free
// list first. It returns the number of pages released.
func (p *Pool) ReclaimEmptyPages() int {
	if p.config.UseSystemAllocator {
		return 0
	}

	released := 0

	// Collect pages whose every block is currently free, identifying
	// each by its base address (stable until dropped),
	// then drop them in a second pass so the scan above never observes
	// a page this same call has already released.
	type emptyPage struct {
		anyBlock uintptr
		blocks   []uintptr
	}
	var empties []emptyPage

	p.pages.EachBase(func(base uintptr) {
		all := true
		blocks := make([]uintptr, 0, p.layout.ObjectsPerPage)
		for i := 0; i < p.layout.ObjectsPerPage; i++ {
			addr := base + uintptr(p.layout.ObjectOffset(i))
			blocks = append(blocks, addr)
			if !p.free.Contains(addr) {
				all = false
			}
		}
		if all {
			empties = append(empties, emptyPage{anyBlock: base, blocks: blocks})
		}
	})

	for _, e := range empties {
		doomed := make(map[uintptr]bool, len(e.blocks))
		for _, addr := range e.blocks {
			doomed[addr] = true
		}
		p.free.RemoveAll(doomed)
		if err := p.pages.DropPageAt(e.anyBlock); err != nil {
			p.logger.Error("blockpool: failed to release page", "error", err)
			continue
		}
		p.stats.recordPageDropped(p.layout.ObjectsPerPage)
		released++
	}
	return released
}

// SetDebug toggles instrumentation. Turning it on does not retroactively
// paint already-live pages; it takes effect for pages mapped and blocks
// freed from that point on.
func (p *Pool) SetDebug(on bool) {
	p.debug = on
	if on && p.labelCount == nil && !p.config.UseSystemAllocator {
		p.labelCount = make(map[uint64]*labelBucket)
	}
}

// Close releases every mapped page back to the operating system and
// destroys every outstanding HeaderExternal side record, including those
// for blocks still in use. The Pool must not be used afterward.
func (p *Pool) Close() error {
	if p.config.UseSystemAllocator {
		p.sysBlocks = nil
		return nil
	}
	if p.pages == nil {
		return nil
	}
	if p.header != nil {
		p.header.DestroyAllExternalRecords()
	}
	return p.pages.CloseAll()
}

// Config returns the configuration the Pool was constructed with.
func (p *Pool) Config() Config {
	return p.config
}

// Stats returns a snapshot of the Pool's live statistics.
func (p *Pool) Stats() Stats {
	return p.stats
}

// FreeListHead returns the address currently at the head of the free
// list, or 0 if the list is empty.
func (p *Pool) FreeListHead() Address {
	return Address(p.free.Head())
}

// ExternalRecordCount returns the number of outstanding HeaderExternal
// side records. Always 0 for any other HeaderKind.
func (p *Pool) ExternalRecordCount() int {
	if p.header == nil {
		return 0
	}
	return p.header.ExternalRecordCount()
}

// PageListHead returns the base address of the most recently mapped page,
// or 0 if the Pool has no live pages.
func (p *Pool) PageListHead() Address {
	if p.pages == nil {
		return 0
	}
	return Address(p.pages.NewestBase())
}

// ImplementsExtraCredit reports whether this Pool implements any optional
// extra-credit behaviors beyond the documented feature set. It always
// returns false: none are implemented.
func (p *Pool) ImplementsExtraCredit() bool {
	return false
}
