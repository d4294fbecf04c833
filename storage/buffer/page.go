package buffer

import (
	"github.com/HayatoShiba/ppbuf/storage/page"
)

// FrameID is the index of a frame (one buffer slot) within the buffer pool
type FrameID int32

const (
	// FirstFrameID is the first frame id in the pool
	FirstFrameID FrameID = 0
	// InvalidFrameID indicates no frame
	InvalidFrameID FrameID = -1
)

/*
Page is one frame of the buffer pool: the cached page content plus its metadata.

Postgres separates the metadata into `buffer descriptor` and keeps the content
in a separate shared array. ppbuf fuses them into one struct because all metadata
is protected by the single pool-wide lock anyway, so the atomic state field of
the descriptor (ref count/usage count/flags packed into uint32) is unnecessary here.

At any instant a frame is in exactly one of three states:
- free: no valid content. the frame is linked into the manager's free list.
- resident-pinned: holds a page with pin count > 0.
- resident-evictable: holds a page with pin count == 0. the frame is tracked by the replacer.
*/
type Page struct {
	// id is the identity of the cached page. InvalidPageID while the frame is free
	id page.PageID
	// data is the cached page content
	data *[page.PageSize]byte
	// pinCount is the number of outstanding holders of the page.
	// the frame must not be evicted while pinCount > 0
	pinCount uint32
	// dirty indicates the content may differ from what is on disk.
	// the flag is not cleared on write-back in this design
	dirty bool
	// frameID is the index of this frame. fixed at initialization
	frameID FrameID
	// generation is incremented every time the frame is reset for reuse.
	// Handle compares this to detect a stale reference (use-after-eviction)
	generation uint64
	// nextFreeID links the frame into the free list
	nextFreeID FrameID
}

// ID returns the identity of the cached page
// the caller must hold a pin on the page, otherwise the frame can be reused at any time
func (p *Page) ID() page.PageID {
	return p.id
}

// Data returns the cached page content
// the caller must hold a pin on the page while reading/writing the content
func (p *Page) Data() page.PagePtr {
	return page.PagePtr(p.data)
}

// PinCount returns the number of outstanding holders of the page
func (p *Page) PinCount() uint32 {
	return p.pinCount
}

// IsDirty returns whether the content may differ from what is on disk
func (p *Page) IsDirty() bool {
	return p.dirty
}

// reset returns the frame content/metadata to the no-valid-content state
// the caller must have removed the page table entry for the old tenant
func (p *Page) reset() {
	p.id = page.InvalidPageID
	*p.data = [page.PageSize]byte{}
	p.pinCount = 0
	p.dirty = false
	p.generation++
}
