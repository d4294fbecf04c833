/*
Dirty pages have to be written out to disk before evicted.
If that write happens inside FetchPage/NewPage, the fetching caller pays the IO latency.
So background writing is introduced: the background writer periodically writes out
dirty pages ahead of eviction, the way the postgres bgwriter does.

The dirty flag is not cleared by the write-back (same as FlushPage), so the background
writer only smooths eviction cost and never declares any consistency point.
Checkpointing is out of scope of ppbuf.

for parameters defined in postgres, see 20.4.5 in the link below.
https://www.postgresql.org/docs/current/runtime-config-resource.html#RUNTIME-CONFIG-RESOURCE-BACKGROUND-WRITER
*/
package buffer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppbuf/storage/page"
)

const (
	// delay between active rounds. default is 200ms in postgres
	bgWriterDelay = 200 * time.Millisecond
	// in each round, this many pages are written out at most
	// see https://www.postgresql.org/docs/current/runtime-config-resource.html
	bgWriterMaxPages = 100
)

// BackgroundWriter writes out dirty pages periodically on background
type BackgroundWriter struct {
	m    *Manager
	stop chan struct{}
	done chan struct{}
}

// NewBackgroundWriter initializes the background writer for the pool
func NewBackgroundWriter(m *Manager) *BackgroundWriter {
	return &BackgroundWriter{
		m:    m,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run writes out dirty pages in rounds until Stop is called.
// a failed round stops the writer and reports the error
func (bw *BackgroundWriter) Run() error {
	defer close(bw.done)
	ticker := time.NewTicker(bgWriterDelay)
	defer ticker.Stop()
	for {
		select {
		case <-bw.stop:
			return nil
		case <-ticker.C:
			if _, err := bw.m.SyncDirtyPages(bgWriterMaxPages); err != nil {
				return errors.Wrap(err, "SyncDirtyPages failed")
			}
		}
	}
}

// Stop stops the writer and waits until the current round is completed
func (bw *BackgroundWriter) Stop() {
	close(bw.stop)
	<-bw.done
}

// SyncDirtyPages writes out at most maxPages dirty resident pages to disk.
// pin counts and dirty flags are left untouched, like FlushPage.
// returns how many pages were written
func (m *Manager) SyncDirtyPages(maxPages int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	for _, p := range m.pages {
		if p.id == page.InvalidPageID || !p.dirty {
			continue
		}
		// no fsync per page. the round is about smoothing eviction cost, not durability
		if err := m.dm.WritePage(p.id, page.PagePtr(p.data), false); err != nil {
			return written, errors.Wrap(err, "dm.WritePage failed")
		}
		written++
		if written >= maxPages {
			break
		}
	}
	return written, nil
}
