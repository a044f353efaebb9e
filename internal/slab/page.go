package slab

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrOutOfLogicalMemory is returned by AddPage when the configured page
// cap has been reached.
var ErrOutOfLogicalMemory = errors.New("blockpool: out of logical memory: page cap reached")

// ErrOutOfPhysicalMemory is returned by AddPage when the operating system
// refuses to satisfy the mapping request.
var ErrOutOfPhysicalMemory = errors.New("blockpool: out of physical memory: mmap failed")

// page is one mmap'd, fixed-size buffer carved into ObjectsPerPage blocks.
// It is a non-owning view plus the raw bytes; block addresses are derived
// from base + Layout offsets.
type page struct {
	buf  []byte
	base uintptr
	next *page
}

func (p *page) end() uintptr {
	return p.base + uintptr(len(p.buf))
}

// contains reports whether addr falls within this page's mapped range.
func (p *page) contains(addr uintptr) bool {
	return addr >= p.base && addr < p.end()
}

// PageStore owns a singly-linked chain of mmap'd pages. Traversal uses a
// native Go `next` pointer on each page wrapper rather than a raw pointer
// threaded through the page's own reserved page-link slot; see DESIGN.md
// Open Question 5 for why both exist.
type PageStore struct {
	layout   Layout
	maxPages int
	head     *page
	count    int
}

// NewPageStore constructs an empty store for the given layout and page cap
// (0 means unlimited).
func NewPageStore(layout Layout, maxPages int) *PageStore {
	return &PageStore{layout: layout, maxPages: maxPages}
}

// Count returns the number of live pages.
func (s *PageStore) Count() int {
	return s.count
}

// AddPage maps a new page and inserts it at the head of the chain.
func (s *PageStore) AddPage() (*page, error) {
	if s.maxPages != 0 && s.count >= s.maxPages {
		return nil, ErrOutOfLogicalMemory
	}
	buf, err := unix.Mmap(-1, 0, s.layout.PageSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfPhysicalMemory, err)
	}
	p := &page{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
		next: s.head,
	}
	s.head = p
	s.count++
	return p, nil
}

// DropPage unlinks p from the chain and releases its bytes back to the
// operating system. Preconditions (all of p's blocks are already on the
// free list) are the caller's responsibility.
func (s *PageStore) DropPage(p *page) error {
	if s.head == p {
		s.head = p.next
	} else {
		for cur := s.head; cur != nil; cur = cur.next {
			if cur.next == p {
				cur.next = p.next
				break
			}
		}
	}
	s.count--
	return unix.Munmap(p.buf)
}

// Find returns the page containing addr, if any.
func (s *PageStore) Find(addr uintptr) (*page, bool) {
	for cur := s.head; cur != nil; cur = cur.next {
		if cur.contains(addr) {
			return cur, true
		}
	}
	return nil, false
}

// Head returns the page at the head of the chain, or nil if none.
func (s *PageStore) Head() *page {
	return s.head
}

// Each calls fn for every live page, head first.
func (s *PageStore) Each(fn func(p *page)) {
	for cur := s.head; cur != nil; cur = cur.next {
		fn(cur)
	}
}

// NewestBuf returns the mapped byte slice of the most recently added
// page, for one-time debug painting right after AddPage. nil if no pages
// are live.
func (s *PageStore) NewestBuf() []byte {
	if s.head == nil {
		return nil
	}
	return s.head.buf
}

// NewestBase returns the base address of the most recently added page, or
// 0 if no pages are live.
func (s *PageStore) NewestBase() uintptr {
	if s.head == nil {
		return 0
	}
	return s.head.base
}

// EachBase invokes fn with the base address of every live page, head
// first. Exposed alongside the *page-based Each so callers outside this
// package (which cannot name the unexported page type) can still walk
// pages by address.
func (s *PageStore) EachBase(fn func(base uintptr)) {
	for cur := s.head; cur != nil; cur = cur.next {
		fn(cur.base)
	}
}

// DropPageAt releases the page containing addr back to the operating
// system. Returns ErrBadAddress if no live page contains addr.
func (s *PageStore) DropPageAt(addr uintptr) error {
	p, ok := s.Find(addr)
	if !ok {
		return ErrBadAddress
	}
	return s.DropPage(p)
}

// CloseAll releases every mapped page, for use from the façade's Close.
func (s *PageStore) CloseAll() error {
	var errs []error
	for cur := s.head; cur != nil; {
		next := cur.next
		if err := unix.Munmap(cur.buf); err != nil {
			errs = append(errs, err)
		}
		cur = next
	}
	s.head = nil
	s.count = 0
	return errors.Join(errs...)
}
