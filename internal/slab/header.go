package slab

import "unsafe"

// Basic header layout, relative to the header region's own start: a
// 4-byte allocation number, then a single in-use flag byte.
const (
	basicAllocNumOffset = 0
	basicFlagOffset     = 4
	basicInUseFlag      = 1
)

// maxUseCounter is the saturation ceiling for the extended header's
// use-counter. The counter saturates rather than wraps, so a block that
// has been reused tens of thousands of times keeps reporting its true
// (maxed-out) age instead of rolling back over and looking freshly
// allocated.
const maxUseCounter = 0xFFFF

// ExternalRecord is the side-allocated metadata for an `external` header
// block. It is kept alive by externalRegistry, not by the header slot
// itself (which stores only a uintptr fingerprint, painted for layout
// fidelity but never dereferenced back into a Go pointer outside the
// registry).
type ExternalRecord struct {
	InUse    bool
	Label    string
	HasLabel bool
	AllocNum uint32
}

// externalRegistry roots external records so the Go garbage collector
// does not reclaim them while only a uintptr (not a real pointer) refers
// to them from inside page memory. Keyed by the owning block's object
// address.
type externalRegistry struct {
	records map[uintptr]*ExternalRecord
}

func newExternalRegistry() *externalRegistry {
	return &externalRegistry{records: make(map[uintptr]*ExternalRecord)}
}

func (r *externalRegistry) create(addr uintptr, allocNum uint32, label string, hasLabel bool) *ExternalRecord {
	rec := &ExternalRecord{InUse: true, AllocNum: allocNum, Label: label, HasLabel: hasLabel}
	r.records[addr] = rec
	return rec
}

func (r *externalRegistry) get(addr uintptr) (*ExternalRecord, bool) {
	rec, ok := r.records[addr]
	return rec, ok
}

func (r *externalRegistry) destroy(addr uintptr) {
	delete(r.records, addr)
}

func (r *externalRegistry) destroyAll() {
	for addr := range r.records {
		delete(r.records, addr)
	}
}

func (r *externalRegistry) count() int {
	return len(r.records)
}

// HeaderEngine writes and clears the per-block header variant selected by
// the pool's configuration, addressing header bytes directly via pointer
// arithmetic from a block's object address (headerAddr = addr - padBytes -
// headerSize) rather than via a page slice, so the allocate/free hot path
// never needs to locate its owning page.
type HeaderEngine struct {
	Kind       HeaderKind
	ExtraBytes int
	PadBytes   int
	size       int
	external   *externalRegistry
}

// NewHeaderEngine constructs an engine for the given header kind.
func NewHeaderEngine(kind HeaderKind, extraBytes, padBytes int) *HeaderEngine {
	e := &HeaderEngine{Kind: kind, ExtraBytes: extraBytes, PadBytes: padBytes, size: HeaderSize(kind, extraBytes)}
	if kind == HeaderExternal {
		e.external = newExternalRegistry()
	}
	return e
}

func (e *HeaderEngine) headerAddr(addr uintptr) uintptr {
	return addr - uintptr(e.PadBytes) - uintptr(e.size)
}

// OnAllocate writes the header for the block about to be served at addr
// (the block's object-region address).
func (e *HeaderEngine) OnAllocate(addr uintptr, allocNum uint32, label string, hasLabel bool) {
	if e.Kind == HeaderNone {
		return
	}
	h := e.headerAddr(addr)

	switch e.Kind {
	case HeaderBasic:
		putU32(h+basicAllocNumOffset, allocNum)
		putU8(h+basicFlagOffset, basicInUseFlag)

	case HeaderExtended:
		// Layout: [extra user bytes][2-byte use-counter][basic header].
		for i := 0; i < e.ExtraBytes; i++ {
			putU8(h+uintptr(i), 0)
		}
		counterAddr := h + uintptr(e.ExtraBytes)
		basicAddr := counterAddr + 2
		counter := getU16(counterAddr)
		if counter < maxUseCounter {
			counter++
		}
		putU16(counterAddr, counter)
		putU32(basicAddr+basicAllocNumOffset, allocNum)
		putU8(basicAddr+basicFlagOffset, basicInUseFlag)

	case HeaderExternal:
		rec := e.external.create(addr, allocNum, label, hasLabel)
		putPtr(h, uintptr(unsafe.Pointer(rec)))
	}
}

// OnFree clears the header for a block being returned to the pool.
func (e *HeaderEngine) OnFree(addr uintptr) {
	if e.Kind == HeaderNone {
		return
	}
	h := e.headerAddr(addr)

	switch e.Kind {
	case HeaderBasic:
		putU32(h+basicAllocNumOffset, 0)
		putU8(h+basicFlagOffset, 0)

	case HeaderExtended:
		basicAddr := h + uintptr(e.ExtraBytes) + 2
		for i := 0; i < e.ExtraBytes; i++ {
			putU8(h+uintptr(i), 0)
		}
		putU32(basicAddr+basicAllocNumOffset, 0)
		putU8(basicAddr+basicFlagOffset, 0)

	case HeaderExternal:
		e.external.destroy(addr)
		putPtr(h, 0)
	}
}

// IsInUse reports whether a block not found on the free list is in use,
// per the header's own bookkeeping (basic/extended flag byte, external
// record, or — for HeaderNone — always true, since that kind carries no
// independent signal and callers must fall back to free-list membership).
func (e *HeaderEngine) IsInUse(addr uintptr) bool {
	switch e.Kind {
	case HeaderNone:
		return true
	case HeaderBasic:
		h := e.headerAddr(addr)
		return getU8(h+basicFlagOffset) == basicInUseFlag
	case HeaderExtended:
		h := e.headerAddr(addr)
		basicAddr := h + uintptr(e.ExtraBytes) + 2
		return getU8(basicAddr+basicFlagOffset) == basicInUseFlag
	case HeaderExternal:
		rec, ok := e.external.get(addr)
		return ok && rec.InUse
	default:
		return true
	}
}

// ExternalRecordFor returns the side record for addr, if the engine is
// configured for external headers and one currently exists.
func (e *HeaderEngine) ExternalRecordFor(addr uintptr) (*ExternalRecord, bool) {
	if e.Kind != HeaderExternal {
		return nil, false
	}
	return e.external.get(addr)
}

// DestroyAllExternalRecords releases every outstanding external side
// record, regardless of whether its block was ever freed. Called by the
// pool on Close so a block still in use when the pool is torn down does
// not leave its record rooted forever.
func (e *HeaderEngine) DestroyAllExternalRecords() {
	if e.Kind != HeaderExternal {
		return
	}
	e.external.destroyAll()
}

// ExternalRecordCount returns the number of outstanding external side
// records. Used by tests; always 0 for non-external header kinds.
func (e *HeaderEngine) ExternalRecordCount() int {
	if e.Kind != HeaderExternal {
		return 0
	}
	return e.external.count()
}

func putU8(addr uintptr, v byte)     { *(*byte)(unsafe.Pointer(addr)) = v }
func getU8(addr uintptr) byte        { return *(*byte)(unsafe.Pointer(addr)) }
func putU16(addr uintptr, v uint16)  { *(*uint16)(unsafe.Pointer(addr)) = v }
func getU16(addr uintptr) uint16     { return *(*uint16)(unsafe.Pointer(addr)) }
func putU32(addr uintptr, v uint32)  { *(*uint32)(unsafe.Pointer(addr)) = v }
func putPtr(addr uintptr, v uintptr) { *(*uintptr)(unsafe.Pointer(addr)) = v }
