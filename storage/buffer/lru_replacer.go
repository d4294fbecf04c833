/*
LRUReplacer approximates least-recently-used eviction order.

Strict LRU would reorder a frame on every access. LRUReplacer orders frames only by
the time they became evictable (pin count dropped to zero): Unpin appends to the back
of the queue and Victim pops from the front, so the frame released longest ago is
reclaimed first. Frames which have never been pinned are evicted in insertion order.

Postgres uses clock-sweep instead, which scales better because it needs no ordered
structure. The pool here serializes everything on one lock anyway, so the simpler
ordered queue costs nothing.
*/
package buffer

import (
	"container/list"
	"sync"
)

// LRUReplacer implements Replacer with a recency queue.
type LRUReplacer struct {
	// mu makes the replacer safe standalone.
	// the manager serializes calls under the pool lock, but the replacer should not rely on it
	mu sync.Mutex
	// capacity bounds the eligible set. it can never be exceeded in correct operation
	// because the pool has only `capacity` frames
	capacity int
	// order holds the eligible frame ids. front is the oldest released, back the newest
	order *list.List
	// index maps frame id to its element within order, so Pin removes in O(1)
	index map[FrameID]*list.Element
}

var _ Replacer = (*LRUReplacer)(nil)

// NewLRUReplacer initializes the replacer for a pool of capacity frames
func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[FrameID]*list.Element, capacity),
	}
}

// Pin removes the frame from the eligible set
func (r *LRUReplacer) Pin(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.index[frameID]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.index, frameID)
}

// Unpin marks the frame eligible for eviction
func (r *LRUReplacer) Unpin(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[frameID]; ok {
		return
	}
	if r.order.Len() >= r.capacity {
		// the set can only grow past the pool size through caller misuse.
		// drop the oldest entry instead of growing without bound
		front := r.order.Front()
		r.order.Remove(front)
		delete(r.index, front.Value.(FrameID))
	}
	r.index[frameID] = r.order.PushBack(frameID)
}

// Victim selects and removes the oldest-released frame
func (r *LRUReplacer) Victim() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	front := r.order.Front()
	if front == nil {
		return InvalidFrameID, false
	}
	r.order.Remove(front)
	frameID := front.Value.(FrameID)
	delete(r.index, frameID)
	return frameID, true
}

// Size returns the number of currently eligible frames
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
