// Package page implements the CST Page Manager: allocation of
// regions appended back to back inside a table file, with no alignment
// padding between them (or an in-memory buffer for
// tests/schema-less arenas) and the page index that maps logical
// columnar regions to their on-disk byte ranges.
package page

import (
	"sync"

	"github.com/nainya/evqlite/pkg/cstable"
)

// Manager allocates pages monotonically and accumulates the page index
// handed to the arena at commit time. The only observable contract is
// that a page allocated at time t is readable at its returned (offset,
// size) once its containing transaction is committed; Manager itself
// does not synchronize concurrent callers (the caller is the single
// committer thread).
type Manager struct {
	backing Backing
	nextID  uint64
	index   cstable.PageIndex

	// mu guards index/nextID so GetPageIndex can be called safely from
	// a metrics-reporting goroutine while the committer is allocating.
	mu sync.Mutex
}

// NewFileBackedManager constructs a Manager whose pages live in fd,
// starting at startOffset (immediately after the file header and
// meta-block slots), seeded with an existing page index (e.g. from a
// reopened file).
func NewFileBackedManager(fd int, startOffset uint64, existing cstable.PageIndex) (*Manager, error) {
	b, err := NewFileBacked(fd, startOffset)
	if err != nil {
		return nil, err
	}
	return newManager(b, existing), nil
}

// NewMemoryBackedManager constructs a Manager backed entirely by
// process memory (used when fd == -1, or in tests).
func NewMemoryBackedManager(existing cstable.PageIndex) *Manager {
	return newManager(NewMemoryBacked(), existing)
}

func newManager(b Backing, existing cstable.PageIndex) *Manager {
	var nextID uint64
	idx := append(cstable.PageIndex(nil), existing...)
	for _, e := range idx {
		if e.PageID >= nextID {
			nextID = e.PageID + 1
		}
	}
	return &Manager{backing: b, nextID: nextID, index: idx}
}

// AllocatePage appends data as a new page belonging to columnID, with
// rowCount logical rows, and returns the assigned page id. Offsets
// handed out by the backing are strictly increasing; the page index
// entry recording (columnID, pageID, offset, on-disk size, rowCount)
// is appended so GetPageIndex can snapshot it at commit time.
func (m *Manager) AllocatePage(columnID uint32, rowCount uint64, data []byte) (uint64, error) {
	offset, err := m.backing.Append(data)
	if err != nil {
		return 0, err
	}
	size := uint64(len(data))
	if fb, ok := m.backing.(*FileBacked); ok {
		size = fb.Tail() - offset // compressed pages are shorter on disk
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pageID := m.nextID
	m.nextID++
	m.index = append(m.index, cstable.PageIndexEntry{
		ColumnID: columnID,
		PageID:   pageID,
		Offset:   offset,
		Size:     size,
		RowCount: rowCount,
	})
	return pageID, nil
}

// ReadPage returns the raw bytes for pageID as recorded in the index.
func (m *Manager) ReadPage(pageID uint64) ([]byte, error) {
	m.mu.Lock()
	var entry *cstable.PageIndexEntry
	for i := range m.index {
		if m.index[i].PageID == pageID {
			entry = &m.index[i]
			break
		}
	}
	m.mu.Unlock()
	if entry == nil {
		return nil, errPageNotFound(pageID)
	}
	return m.backing.ReadAt(entry.Offset, entry.Size)
}

// GetPageIndex returns an immutable snapshot of the current page index,
// suitable for serializing to disk at commit.
func (m *Manager) GetPageIndex() cstable.PageIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(cstable.PageIndex, len(m.index))
	copy(snap, m.index)
	return snap
}

// Sync flushes the backing store to durable storage. A no-op for
// memory-backed managers.
func (m *Manager) Sync() error {
	return m.backing.Sync()
}
