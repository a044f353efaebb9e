package blockpool

import "github.com/vindahl/blockpool/internal/slab"

// Error sentinels are re-exported from internal/slab so callers only need
// to import the root package.
var (
	ErrOutOfLogicalMemory  = slab.ErrOutOfLogicalMemory
	ErrOutOfPhysicalMemory = slab.ErrOutOfPhysicalMemory
	ErrMultipleFree        = slab.ErrMultipleFree
	ErrCorruptedBlock      = slab.ErrCorruptedBlock
	ErrBadBoundary         = slab.ErrBadBoundary
	ErrBadAddress          = slab.ErrBadAddress
)
