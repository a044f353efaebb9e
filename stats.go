package blockpool

// Stats reports a pool's live statistics. Every field is either a
// monotonic counter (AllocationsTotal, DeallocationsTotal) or a sampled
// instantaneous/high-water value, as named.
type Stats struct {
	ObjectSize         int
	PageSize           int
	AllocationsTotal   uint64
	DeallocationsTotal uint64
	LiveObjects        uint64
	FreeObjects        uint64
	PeakLiveObjects    uint64
	PagesInUse         int
}

func (s *Stats) recordAllocate() {
	s.AllocationsTotal++
	s.LiveObjects++
	if s.FreeObjects > 0 {
		s.FreeObjects--
	}
	if s.LiveObjects > s.PeakLiveObjects {
		s.PeakLiveObjects = s.LiveObjects
	}
}

func (s *Stats) recordFree() {
	s.DeallocationsTotal++
	if s.LiveObjects > 0 {
		s.LiveObjects--
	}
	s.FreeObjects++
}

func (s *Stats) recordPageAdded(objectsPerPage int) {
	s.PagesInUse++
	s.FreeObjects += uint64(objectsPerPage)
}

func (s *Stats) recordPageDropped(objectsPerPage int) {
	s.PagesInUse--
	if s.FreeObjects >= uint64(objectsPerPage) {
		s.FreeObjects -= uint64(objectsPerPage)
	}
}
