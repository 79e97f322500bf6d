package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nainya/evqlite/pkg/cstable"
)

func TestManagerAllocatePageOffsetsIncrease(t *testing.T) {
	m := NewMemoryBackedManager(nil)

	id0, err := m.AllocatePage(1, 10, []byte("aaaa"))
	require.NoError(t, err)
	id1, err := m.AllocatePage(1, 20, []byte("bbbbbbbb"))
	require.NoError(t, err)

	require.NotEqual(t, id0, id1)

	idx := m.GetPageIndex()
	require.Len(t, idx, 2)
	require.Less(t, idx[0].Offset, idx[1].Offset)
	require.Equal(t, uint64(4), idx[0].Size)
	require.Equal(t, uint64(8), idx[1].Size)
}

func TestManagerReadPageRoundtrips(t *testing.T) {
	m := NewMemoryBackedManager(nil)
	id, err := m.AllocatePage(0, 1, []byte("hello"))
	require.NoError(t, err)

	data, err := m.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestManagerReadPageNotFound(t *testing.T) {
	m := NewMemoryBackedManager(nil)
	_, err := m.ReadPage(42)
	require.Error(t, err)
}

func TestManagerSeedsNextIDFromExistingIndex(t *testing.T) {
	existing := cstable.PageIndex{{ColumnID: 0, PageID: 4, Offset: 0, Size: 1, RowCount: 0}}
	m := NewMemoryBackedManager(existing)
	id, err := m.AllocatePage(0, 0, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), id)
	idx := m.GetPageIndex()
	require.Len(t, idx, 2)
	require.Equal(t, uint64(5), idx[1].PageID)
}

func TestManagerSyncIsNoOpForMemoryBacked(t *testing.T) {
	m := NewMemoryBackedManager(nil)
	require.NoError(t, m.Sync())
}
