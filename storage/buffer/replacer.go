package buffer

// Replacer tracks the frames eligible for eviction and decides which one to reclaim next.
// The manager calls Unpin when a page's pin count drops to zero and Pin when it rises from zero,
// so the replacer only ever sees unpinned resident frames.
type Replacer interface {
	// Pin removes the frame from the eligible set.
	// no-op when the frame is not tracked.
	Pin(frameID FrameID)
	// Unpin marks the frame eligible for eviction.
	// no-op when the frame is already tracked.
	Unpin(frameID FrameID)
	// Victim selects and removes one eligible frame per the replacement policy.
	// returns false when no frame is eligible. must not block.
	Victim() (FrameID, bool)
	// Size returns the number of currently eligible frames.
	Size() int
}
