/*
Disk manager deals with the database file: the file is organized as a collection of fixed-size pages
and disk manager reads/writes one page at a time.

The implementation is based on src/backend/storage/smgr directory in postgres,
although ppbuf manages just one flat file while postgres manages relation fork files.
See smgr README https://github.com/postgres/postgres/blob/b0a55e43299c4ea2a9a8c757f9c26352407d0ccc/src/backend/storage/smgr/README#L1

Disk manager is also responsible for the page id space:
- AllocatePage() issues a fresh page id which has never been issued before.
- DeallocatePage() marks the page id reclaimable. This is idempotent and never complains
  about unknown page id. The space itself is not reclaimed (like postgres, the reclamation
  would be the job of vacuum-ish process, which ppbuf does not implement).

Only one process can use the database file at one time.
Disk manager takes an exclusive flock on the lock file placed next to the database file,
so the second process fails to open the same file with ErrDatabaseLocked.
*/
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppbuf/storage/page"
)

// ErrDatabaseLocked is returned when the database file is already locked by another process
var ErrDatabaseLocked = errors.New("database file is locked by another process")

// Manager manages disk
type Manager struct {
	// mu protects all the fields below
	// one page read/write is atomic against other page read/write
	mu sync.Mutex
	// st is the database file (or on-memory byte slice in test)
	st storage
	// lockFile is the file flock is taken on. nil when the storage is not file-backed.
	lockFile *os.File
	// nextPageID is the page id issued by the next AllocatePage()
	// this is derived from the file size on start
	nextPageID page.PageID
	// deallocated is the set of page ids marked reclaimable
	deallocated map[page.PageID]struct{}
}

// NewManager initializes disk manager with the database file at path
func NewManager(path string) (*Manager, error) {
	lf, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	if err := lockFile(lf); err != nil {
		lf.Close()
		return nil, err
	}

	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0700)
	if err != nil {
		unlockFile(lf)
		lf.Close()
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	m, err := newManagerWithStorage(fileStorage{fd})
	if err != nil {
		fd.Close()
		unlockFile(lf)
		lf.Close()
		return nil, err
	}
	m.lockFile = lf
	return m, nil
}

// newManagerWithStorage initializes disk manager on the storage
func newManagerWithStorage(st storage) (*Manager, error) {
	size, err := st.Size()
	if err != nil {
		return nil, errors.Wrap(err, "st.Size failed")
	}
	return &Manager{
		st:          st,
		nextPageID:  page.PageID(size / page.PageSize),
		deallocated: make(map[page.PageID]struct{}),
	}, nil
}

// ReadPage reads the page content from disk into p
// the page allocated with AllocatePage() but never written yet is read as 0-filled page
// (the file has not been extended for the page yet, so read hits EOF and the tail is left 0-filled)
func (m *Manager) ReadPage(pageID page.PageID, p page.PagePtr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !page.IsValidPageID(pageID) || pageID >= m.nextPageID {
		return errors.Errorf("page id is not allocated: %d", pageID)
	}
	if _, err := m.st.Seek(page.CalculateFileOffset(pageID), io.SeekStart); err != nil {
		return errors.Wrap(err, "Seek failed")
	}
	*p = [page.PageSize]byte{}
	if _, err := m.st.Read(p[:]); err != nil && err != io.EOF {
		return errors.Wrap(err, "Read failed")
	}
	return nil
}

// WritePage writes the page content p to disk
// when sync is true, the file is synced after write. fsync is not necessary every time
// if wal is implemented, but ppbuf does not have wal so the caller decides.
func (m *Manager) WritePage(pageID page.PageID, p page.PagePtr, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !page.IsValidPageID(pageID) || pageID >= m.nextPageID {
		return errors.Errorf("page id is not allocated: %d", pageID)
	}
	if _, err := m.st.Seek(page.CalculateFileOffset(pageID), io.SeekStart); err != nil {
		return errors.Wrap(err, "Seek failed")
	}
	if _, err := m.st.Write(p[:]); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	if sync {
		if err := m.st.Sync(); err != nil {
			return errors.Wrap(err, "Sync failed")
		}
	}
	return nil
}

// AllocatePage issues a fresh page id which has never been issued before
func (m *Manager) AllocatePage() (page.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !page.IsValidPageID(m.nextPageID) {
		return page.InvalidPageID, errors.New("page id space is exhausted")
	}
	pageID := m.nextPageID
	m.nextPageID++
	return pageID, nil
}

// DeallocatePage marks the page id reclaimable
// this is idempotent: unknown or already-deallocated page id is just ignored
func (m *Manager) DeallocatePage(pageID page.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !page.IsValidPageID(pageID) || pageID >= m.nextPageID {
		return
	}
	m.deallocated[pageID] = struct{}{}
}

// Close syncs and closes the database file and releases the file lock
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.st.Sync(); err != nil {
		return errors.Wrap(err, "Sync failed")
	}
	if f, ok := m.st.(fileStorage); ok {
		if err := f.File.Close(); err != nil {
			return errors.Wrap(err, "Close failed")
		}
	}
	if m.lockFile != nil {
		if err := unlockFile(m.lockFile); err != nil {
			return errors.Wrap(err, "unlockFile failed")
		}
		if err := m.lockFile.Close(); err != nil {
			return errors.Wrap(err, "Close failed")
		}
		m.lockFile = nil
	}
	return nil
}
