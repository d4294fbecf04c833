package buffer

/*
Handle is a stale-checkable reference to a page.

A *Page returned by FetchPage/NewPage points directly into the pool, so it stays valid
only while the caller holds a pin. A caller which wants to remember a page beyond its pin
(e.g. an index caching its root) must not keep the bare pointer: after eviction the frame
is reused and the pointer silently aliases the frame's new tenant.

Handle captures the frame's generation at the time the page was pinned. The generation
is incremented every time the frame is reset for reuse, so the handle can tell whether
the frame still holds the same resident page.
*/
type Handle struct {
	m          *Manager
	frameID    FrameID
	generation uint64
}

// NewHandle captures a handle from the page.
// the caller must hold a pin on the page (the generation cannot move under a pin)
func (m *Manager) NewHandle(p *Page) Handle {
	return Handle{
		m:          m,
		frameID:    p.frameID,
		generation: p.generation,
	}
}

// Valid reports whether the frame still holds the page the handle was captured from
func (h Handle) Valid() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.pages[h.frameID].generation == h.generation
}

// Page returns the referenced page, or nil when the frame has been reused since.
// note that the page is not pinned by this: to use the content,
// re-fetch the page with the id and check the handle is still valid.
func (h Handle) Page() *Page {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	p := h.m.pages[h.frameID]
	if p.generation != h.generation {
		return nil
	}
	return p
}
