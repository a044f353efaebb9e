// Package slab implements the page/block/free-list memory layout shared by
// a fixed-size object pool: the byte layout calculator, the page store, the
// intrusive free list, the per-block header variants, the debug signature
// patterns, and the validator that checks them on free.
package slab

import "unsafe"

// PointerSize is the size, in bytes, of the free-list overlay pointer and
// the header slot's external-record fingerprint. It is a plain int rather
// than uintptr so it composes cheaply with the rest of the offset math.
const PointerSize = int(unsafe.Sizeof(uintptr(0)))

// HeaderKind selects one of the four header variants a block can carry.
// It is a closed sum type: dispatch over it is a small tagged switch, never
// an open extension point.
type HeaderKind int

const (
	HeaderNone HeaderKind = iota
	HeaderBasic
	HeaderExtended
	HeaderExternal
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderNone:
		return "none"
	case HeaderBasic:
		return "basic"
	case HeaderExtended:
		return "extended"
	case HeaderExternal:
		return "external"
	default:
		return "unknown"
	}
}

// basicHeaderSize is the byte size of a basic header: a 32-bit allocation
// number followed by a single in-use flag byte.
const basicHeaderSize = 4 + 1

// externalHeaderSize is the byte size of an external header: a single
// pointer-sized slot holding the address of a side record, or zero.
const externalHeaderSize = PointerSize

// HeaderSize returns the byte size of the header region for the given
// kind, as laid out by the header engine (header.go).
func HeaderSize(kind HeaderKind, extraBytes int) int {
	switch kind {
	case HeaderNone:
		return 0
	case HeaderBasic:
		return basicHeaderSize
	case HeaderExtended:
		// extra user bytes + 16-bit use-counter + basic header.
		return extraBytes + 2 + basicHeaderSize
	case HeaderExternal:
		return externalHeaderSize
	default:
		return 0
	}
}

// Layout is the pure, derived per-page byte layout computed from an object
// size and the pool's configuration. It rejects nothing: pathological
// combinations are a caller contract violation, documented but not
// dynamically checked here (construction-time validation lives in the
// façade's Config.Validate, one level up).
type Layout struct {
	ObjectSize      int
	HeaderSize      int
	PadBytes        int
	Alignment       int
	ObjectsPerPage  int
	LeftAlign       int // LeftAlignSize
	InterAlign      int // InterAlignSize
	LeftStride      int // distance from page base to block 0's object offset
	InterStride     int // distance between consecutive blocks' object offsets
	PageSize        int
}

// NewLayout derives the per-page layout for objectSize bytes per object
// under the given header/pad/alignment configuration.
//
// pageSize is computed as one leading stride (LeftStride, which already
// includes the page's own free-list link pointer) plus (objectsPerPage-1)
// interior strides plus the final block's object and pad bytes. No
// separate pointer-sized term is added on top of LeftStride, since that
// would count the leading page-link pointer twice.
func NewLayout(objectSize int, headerKind HeaderKind, extraBytes, padBytes, alignment, objectsPerPage int) Layout {
	headerSize := HeaderSize(headerKind, extraBytes)

	leftTotal := headerSize + padBytes + PointerSize
	interTotal := headerSize + 2*padBytes + objectSize

	leftAlign := 0
	interAlign := 0
	if alignment > 1 {
		leftAlign = leftTotal % alignment
		interAlign = interTotal % alignment
	}

	leftStride := leftTotal + leftAlign
	interStride := interTotal + interAlign

	pageSize := leftStride + (objectsPerPage-1)*interStride + objectSize + padBytes

	return Layout{
		ObjectSize:     objectSize,
		HeaderSize:     headerSize,
		PadBytes:       padBytes,
		Alignment:      alignment,
		ObjectsPerPage: objectsPerPage,
		LeftAlign:      leftAlign,
		InterAlign:     interAlign,
		LeftStride:     leftStride,
		InterStride:    interStride,
		PageSize:       pageSize,
	}
}

// ObjectOffset returns the byte offset, from the page base, of block i's
// object region (i in [0, ObjectsPerPage)).
func (l Layout) ObjectOffset(i int) int {
	return l.LeftStride + i*l.InterStride
}

// HeaderOffset returns the byte offset of block i's header region, or -1
// if the configured header kind has no header bytes.
func (l Layout) HeaderOffset(i int) int {
	if l.HeaderSize == 0 {
		return -1
	}
	return l.ObjectOffset(i) - l.PadBytes - l.HeaderSize
}

// LeftPadOffset returns the byte offset of block i's left pad region.
func (l Layout) LeftPadOffset(i int) int {
	return l.ObjectOffset(i) - l.PadBytes
}

// RightPadOffset returns the byte offset of block i's right pad region.
func (l Layout) RightPadOffset(i int) int {
	return l.ObjectOffset(i) + l.ObjectSize
}

// BlockIndex reports which block index (if any) owns the object region
// starting at the given distance from the page base. It returns ok=false
// if distance does not land exactly on a block boundary.
func (l Layout) BlockIndex(distanceFromBase int) (index int, ok bool) {
	d := distanceFromBase - l.LeftStride
	if d < 0 {
		return 0, false
	}
	if d%l.InterStride != 0 {
		return 0, false
	}
	i := d / l.InterStride
	if i < 0 || i >= l.ObjectsPerPage {
		return 0, false
	}
	return i, true
}
