package blockpool

import (
	"errors"
	"fmt"

	"github.com/vindahl/blockpool/internal/slab"
)

// HeaderKind selects which of the four per-block header variants the pool
// writes on allocate and clears on free.
type HeaderKind = slab.HeaderKind

const (
	HeaderNone     = slab.HeaderNone
	HeaderBasic    = slab.HeaderBasic
	HeaderExtended = slab.HeaderExtended
	HeaderExternal = slab.HeaderExternal
)

// Config is a pool's fixed-at-construction configuration.
type Config struct {
	// ObjectsPerPage is the number of blocks carved from each mapped page.
	ObjectsPerPage int

	// MaxPages caps the number of live pages; 0 means unlimited.
	MaxPages int

	// PadBytes is the pad-region width painted on each side of the object
	// region, checked for corruption on free when Debug is true.
	PadBytes int

	// Alignment is the power-of-two alignment boundary objects are padded
	// toward; 0 or 1 mean no alignment filler.
	Alignment int

	// HeaderKind selects the per-block header variant.
	HeaderKind HeaderKind

	// ExtraBytes is the size of the extended header's user region. Only
	// meaningful when HeaderKind is HeaderExtended.
	ExtraBytes int

	// UseSystemAllocator bypasses pooling entirely: each Allocate returns
	// fresh memory from the Go allocator and Free releases it directly;
	// pages and the free list are untouched.
	UseSystemAllocator bool

	// Debug enables signature-pattern painting and validation on Free.
	// The cost of all instrumentation is zero when this is false.
	Debug bool
}

// DefaultConfig returns a reasonable starting configuration: no headers,
// no padding, no alignment, pooled allocation, debugging off.
func DefaultConfig() Config {
	return Config{
		ObjectsPerPage: 64,
		MaxPages:       0,
		PadBytes:       0,
		Alignment:      0,
		HeaderKind:     HeaderNone,
		ExtraBytes:     0,
	}
}

// Validate reports whether c is a usable configuration for the given
// object size. The layout calculator itself rejects nothing; all
// validation happens here, once, at construction.
func (c Config) Validate(objectSize int) error {
	var errs []error
	if c.ObjectsPerPage < 1 {
		errs = append(errs, errors.New("blockpool: ObjectsPerPage must be >= 1"))
	}
	if c.MaxPages < 0 {
		errs = append(errs, errors.New("blockpool: MaxPages must be >= 0 (0 means unlimited)"))
	}
	if c.PadBytes < 0 {
		errs = append(errs, errors.New("blockpool: PadBytes must be >= 0"))
	}
	if c.Alignment < 0 || (c.Alignment > 1 && c.Alignment&(c.Alignment-1) != 0) {
		errs = append(errs, fmt.Errorf("blockpool: Alignment must be 0, 1, or a power of two, got %d", c.Alignment))
	}
	if c.HeaderKind == HeaderExtended && c.ExtraBytes < 0 {
		errs = append(errs, errors.New("blockpool: ExtraBytes must be >= 0 for HeaderExtended"))
	}
	if c.HeaderKind != HeaderExtended && c.ExtraBytes != 0 {
		errs = append(errs, errors.New("blockpool: ExtraBytes is only meaningful for HeaderExtended"))
	}
	if !c.UseSystemAllocator && c.HeaderKind == HeaderNone && objectSize < slab.PointerSize {
		errs = append(errs, fmt.Errorf(
			"blockpool: object size %d is smaller than the free-list overlay pointer (%d bytes) with no header to compensate",
			objectSize, slab.PointerSize,
		))
	}
	if objectSize <= 0 {
		errs = append(errs, errors.New("blockpool: object size must be > 0"))
	}
	return errors.Join(errs...)
}
