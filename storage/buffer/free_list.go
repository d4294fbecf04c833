/*
the implementation of free list

The free list links the frames with no valid content, through the nextFreeID field of each frame.
Frames are supplied from here before any eviction is attempted.
In postgres, once a buffer leaves the free list it never returns.
ppbuf does return frames here: DeletePage reclaims the frame of the deleted page.

The free list is walked/updated only under the pool-wide lock,
so no separate strategy lock is necessary unlike postgres.
*/
package buffer

// allocateFromFreeList removes and returns the first frame of the free list.
// if there is no free frame, just return InvalidFrameID
func (m *Manager) allocateFromFreeList() FrameID {
	frameID := m.freeList
	if frameID == InvalidFrameID {
		return InvalidFrameID
	}
	m.freeList = m.pages[frameID].nextFreeID
	m.pages[frameID].nextFreeID = InvalidFrameID
	return frameID
}

// pushToFreeList links the frame back at the head of the free list.
// the caller must have reset the frame and removed its page table entry
func (m *Manager) pushToFreeList(frameID FrameID) {
	m.pages[frameID].nextFreeID = m.freeList
	m.freeList = frameID
}
