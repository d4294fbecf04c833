/*
Buffer pool manager presents an in-memory window over the fixed-size pages of the database file.
Disk IO is expensive so pages should be cached on memory, and the buffer pool manager is responsible for this.
Upper layers (access methods, executor) operate on pages through this manager as if memory were unbounded.

the design is based on /src/backend/storage/buffer in postgres.
see great README: https://github.com/postgres/postgres/blob/d87251048a0f293ad20cc1fe26ce9f542de105e6/src/backend/storage/buffer/README#L1

----

access rule for pages:
- FetchPage/NewPage return the page pinned. pin prevents eviction of the frame.
- the caller reads/writes the page content directly while it holds the pin.
- the caller must call UnpinPage exactly once per successful fetch, and pass dirty=true
  if it modified the content. a fetch which is never unpinned permanently shrinks
  the effective pool capacity.
- every fetch increments the pin count, so N fetches of the same page require N unpins.
  treating a repeated fetch as free would risk premature eviction of a page
  another caller still holds.

the flow when the requested page is not resident:
- obtain a frame: free list first, then ask the replacer for a victim.
- when both are empty, every frame is pinned. this is reported as ErrNoUsableFrame
  and the caller can retry after releasing pins.
- when the victim frame holds a dirty page, the content is written out to disk before reuse.
  (postgres softens this write-back latency with the background writer. so does ppbuf,
  see bgwriter.go)

----

locking:
All mutable pool state (free list, page table, per-page pin count and dirty flag,
replacer's eligible set) is protected by one pool-wide mutex. Every public operation
holds it for its full duration, which gives linearizable semantics across operations.

Postgres partitions the mapping table and protects each buffer header with a spin lock
so that the pool does not serialize on one lock. That design needs a careful two-phase
victim selection (another backend can pin the victim between selection and reuse,
then the allocation has to be retried). ppbuf deliberately trades that throughput for
simplicity: disk IO on a miss blocks the whole pool. This is a known throughput ceiling,
not a correctness issue.
*/
package buffer

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppbuf/storage/disk"
	"github.com/HayatoShiba/ppbuf/storage/page"
)

// ErrNoUsableFrame is returned when the free list is empty and every resident page is pinned.
// the caller can retry after releasing pins.
var ErrNoUsableFrame = errors.New("all frames are pinned: no frame can be reclaimed")

const (
	// defaultBufferPoolSize is the default byte size of the buffer pool.
	// default in postgres is 32MB (see shared_buffers parameter in the link below)
	// https://www.postgresql.org/docs/9.1/runtime-config-resource.html
	// in ppbuf, 1MB is enough probably
	defaultBufferPoolSize = 1000000

	// DefaultPoolSize is the default number of frames managed by the buffer pool manager
	DefaultPoolSize = defaultBufferPoolSize / page.PageSize
)

// Manager manages the buffer pool
type Manager struct {
	// disk manager
	dm *disk.Manager
	// mu is the pool-wide lock. see the comment at the head of this file
	mu sync.Mutex
	// pages are the frames of the pool. allocated once, never resized
	pages []*Page
	// table maps page id to the frame caching the page.
	// this is the single source of truth for residency, and is injective:
	// a page is cached in at most one frame
	table map[page.PageID]FrameID
	// freeList points to the first frame with no valid content
	freeList FrameID
	// replacer tracks the unpinned resident frames and picks eviction victims
	replacer Replacer
}

// NewManager initializes the buffer pool manager with poolSize frames.
// when poolSize is not positive, DefaultPoolSize is used
func NewManager(dm *disk.Manager, poolSize int) *Manager {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	pages := make([]*Page, poolSize)
	for i := 0; i < poolSize; i++ {
		pages[i] = &Page{
			id:         page.InvalidPageID,
			data:       &[page.PageSize]byte{},
			frameID:    FrameID(i),
			nextFreeID: FrameID(i + 1),
		}
	}
	// initially, every frame is in the free list
	pages[poolSize-1].nextFreeID = InvalidFrameID
	return &Manager{
		dm:       dm,
		pages:    pages,
		table:    make(map[page.PageID]FrameID, poolSize),
		freeList: FirstFrameID,
		replacer: NewLRUReplacer(poolSize),
	}
}

// FetchPage returns the page pinned, fetching it from disk when it is not resident.
// the caller must call UnpinPage once per successful fetch after completion of using the page.
func (m *Manager) FetchPage(pageID page.PageID) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !page.IsValidPageID(pageID) {
		return nil, errors.Errorf("invalid page id: %d", pageID)
	}
	// when the page is already resident, just pin it. no disk IO, no eviction
	if frameID, ok := m.table[pageID]; ok {
		p := m.pages[frameID]
		m.pin(p)
		return p, nil
	}

	frameID, err := m.allocateFrame()
	if err != nil {
		return nil, err
	}
	p := m.pages[frameID]
	if err := m.dm.ReadPage(pageID, page.PagePtr(p.data)); err != nil {
		// the frame holds no valid content, return it to the free list
		m.pushToFreeList(frameID)
		return nil, errors.Wrap(err, "dm.ReadPage failed")
	}
	p.id = pageID
	p.pinCount = 1
	m.table[pageID] = frameID
	return p, nil
}

// NewPage allocates a fresh page on disk and returns it pinned.
// the new page starts 0-filled so no disk read happens.
// the allocated page id is obtained with the ID() method of the returned page.
// when every frame is pinned, ErrNoUsableFrame is returned and no page id is allocated.
func (m *Manager) NewPage() (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// obtain the frame before allocating the page id,
	// so an exhausted pool does not leak fresh page ids
	frameID, err := m.allocateFrame()
	if err != nil {
		return nil, err
	}
	pageID, err := m.dm.AllocatePage()
	if err != nil {
		m.pushToFreeList(frameID)
		return nil, errors.Wrap(err, "dm.AllocatePage failed")
	}
	p := m.pages[frameID]
	p.id = pageID
	p.pinCount = 1
	m.table[pageID] = frameID
	return p, nil
}

// UnpinPage releases one pin of the page, marking it dirty when the caller modified the content.
// when the pin count drops to zero, the frame becomes eligible for eviction.
// returns false when the page is not resident or the pin count is already zero
// (the latter means unpin without matching fetch, which is caller misuse).
func (m *Manager) UnpinPage(pageID page.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.table[pageID]
	if !ok {
		return false
	}
	p := m.pages[frameID]
	// the dirty flag is sticky: once on, only eviction/deletion turns it off
	if !p.dirty {
		p.dirty = dirty
	}
	if p.pinCount == 0 {
		return false
	}
	p.pinCount--
	if p.pinCount == 0 {
		m.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes the resident page out to disk, regardless of the dirty flag.
// pin count and dirty flag are left untouched.
// returns false when the page is not resident.
func (m *Manager) FlushPage(pageID page.PageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushPage(pageID)
}

// flushPage is FlushPage without acquiring the pool lock
func (m *Manager) flushPage(pageID page.PageID) (bool, error) {
	frameID, ok := m.table[pageID]
	if !ok {
		return false, nil
	}
	p := m.pages[frameID]
	if err := m.dm.WritePage(p.id, page.PagePtr(p.data), true); err != nil {
		return false, errors.Wrap(err, "dm.WritePage failed")
	}
	return true, nil
}

// FlushAllPages writes every resident page out to disk.
// this is used on shutdown. flushing continues past individual failures
// and the first error is returned.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for pageID := range m.table {
		if _, err := m.flushPage(pageID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeletePage deallocates the page on disk and reclaims its frame.
// deallocation is requested first even when the page is not resident
// (the disk manager's deallocation is idempotent).
// returns false when the page is pinned: a page in use cannot be reclaimed,
// and the pool state is left unchanged.
func (m *Manager) DeletePage(pageID page.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dm.DeallocatePage(pageID)
	frameID, ok := m.table[pageID]
	if !ok {
		return true
	}
	p := m.pages[frameID]
	if p.pinCount > 0 {
		return false
	}
	// the pin count is zero so the frame sits in the replacer's eligible set.
	// remove it from there before linking the frame into the free list:
	// a frame must never be free and evictable at the same time
	m.replacer.Pin(frameID)
	delete(m.table, pageID)
	p.reset()
	m.pushToFreeList(frameID)
	return true
}

// pin increments the pin count of the page.
// the 0 -> 1 transition removes the frame from the replacer's eligible set
func (m *Manager) pin(p *Page) {
	p.pinCount++
	if p.pinCount == 1 {
		m.replacer.Pin(p.frameID)
	}
}

// allocateFrame obtains a frame for a new tenant: free list first, then eviction.
// the returned frame is reset (no identity, 0-filled, clean) and absent from
// the page table, the free list and the replacer.
func (m *Manager) allocateFrame() (FrameID, error) {
	if frameID := m.allocateFromFreeList(); frameID != InvalidFrameID {
		return frameID, nil
	}
	frameID, ok := m.replacer.Victim()
	if !ok {
		return InvalidFrameID, ErrNoUsableFrame
	}
	p := m.pages[frameID]
	// the victim is unpinned but its content may not be on disk yet
	if p.dirty {
		if err := m.dm.WritePage(p.id, page.PagePtr(p.data), false); err != nil {
			// the old tenant stays resident and evictable
			m.replacer.Unpin(frameID)
			return InvalidFrameID, errors.Wrap(err, "dm.WritePage failed")
		}
	}
	delete(m.table, p.id)
	p.reset()
	return frameID, nil
}
