package buffer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/HayatoShiba/ppbuf/storage/disk"
	"github.com/HayatoShiba/ppbuf/storage/page"
)

// TestingNewManager initializes the buffer pool manager with poolSize frames,
// backed by on-memory disk manager. This prevents unnecessary disk I/O in test.
func TestingNewManager(poolSize int) (*Manager, error) {
	dm, err := disk.TestingNewBufferManager()
	if err != nil {
		return nil, errors.Wrap(err, "disk.TestingNewBufferManager failed")
	}
	return NewManager(dm, poolSize), nil
}

// TestingCheckInvariants checks the pool invariants:
// - every frame is in exactly one of {free list, replacer's eligible set, pinned}
// - the page table is injective and points at frames caching exactly those pages
func TestingCheckInvariants(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	free := make(map[FrameID]bool)
	for id := m.freeList; id != InvalidFrameID; id = m.pages[id].nextFreeID {
		free[id] = true
	}

	lru, ok := m.replacer.(*LRUReplacer)
	assert.True(t, ok)
	evictable := make(map[FrameID]bool)
	for frameID := range lru.index {
		evictable[frameID] = true
	}

	cached := make(map[FrameID]page.PageID)
	for pageID, frameID := range m.table {
		if old, dup := cached[frameID]; dup {
			t.Errorf("page table is not injective: pages %d and %d both map to frame %d", old, pageID, frameID)
		}
		cached[frameID] = pageID
		assert.Equal(t, pageID, m.pages[frameID].id)
	}

	for _, p := range m.pages {
		switch {
		case free[p.frameID]:
			assert.False(t, evictable[p.frameID], "frame %d is both free and evictable", p.frameID)
			assert.Equal(t, page.InvalidPageID, p.id)
			assert.Equal(t, uint32(0), p.pinCount)
		case p.pinCount > 0:
			assert.False(t, evictable[p.frameID], "frame %d is both pinned and evictable", p.frameID)
			assert.Equal(t, p.frameID, m.table[p.id])
		default:
			// resident with pin count zero: must be tracked by the replacer
			assert.True(t, evictable[p.frameID], "frame %d is unpinned resident but not evictable", p.frameID)
			assert.Equal(t, p.frameID, m.table[p.id])
		}
	}
}
