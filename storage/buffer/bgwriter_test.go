package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HayatoShiba/ppbuf/storage/page"
)

func TestSyncDirtyPages(t *testing.T) {
	m, err := TestingNewManager(3)
	require.Nil(t, err)

	// two dirty pages and one clean page
	contents := make(map[page.PageID]page.PagePtr)
	for i := 0; i < 2; i++ {
		p, err := m.NewPage()
		assert.Nil(t, err)
		content, err := page.TestingNewRandomPage()
		require.Nil(t, err)
		copy(p.Data()[:], content[:])
		contents[p.ID()] = content
		assert.True(t, m.UnpinPage(p.ID(), true))
	}
	clean, err := m.NewPage()
	assert.Nil(t, err)
	assert.True(t, m.UnpinPage(clean.ID(), false))

	written, err := m.SyncDirtyPages(bgWriterMaxPages)
	assert.Nil(t, err)
	assert.Equal(t, 2, written)

	for pageID, content := range contents {
		got := page.NewPagePtr()
		err = m.dm.ReadPage(pageID, got)
		assert.Nil(t, err)
		assert.True(t, bytes.Equal(got[:], content[:]))
	}

	// the dirty flag is not cleared by the background write
	written, err = m.SyncDirtyPages(bgWriterMaxPages)
	assert.Nil(t, err)
	assert.Equal(t, 2, written)
}

func TestSyncDirtyPages_MaxPages(t *testing.T) {
	m, err := TestingNewManager(3)
	require.Nil(t, err)
	for i := 0; i < 3; i++ {
		p, err := m.NewPage()
		assert.Nil(t, err)
		assert.True(t, m.UnpinPage(p.ID(), true))
	}

	written, err := m.SyncDirtyPages(2)
	assert.Nil(t, err)
	assert.Equal(t, 2, written)
}

func TestBackgroundWriterStop(t *testing.T) {
	m, err := TestingNewManager(2)
	require.Nil(t, err)

	bw := NewBackgroundWriter(m)
	errCh := make(chan error, 1)
	go func() {
		errCh <- bw.Run()
	}()
	bw.Stop()
	assert.Nil(t, <-errCh)
}
