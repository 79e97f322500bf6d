package arena

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nainya/evqlite/pkg/cstable"
	"github.com/nainya/evqlite/pkg/evqerr"
)

func testSchema() cstable.Schema {
	return cstable.Schema{Columns: []cstable.Column{
		{Name: "x", Type: cstable.ColumnInt64, Nullable: false},
	}}
}

func tempFile(t *testing.T) (*os.File, func()) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "cstable-*.evq")
	require.NoError(t, err)
	return f, func() { f.Close() }
}

// TestArenaRejectsV0_1_0 covers Testable Property 1.
func TestArenaRejectsV0_1_0(t *testing.T) {
	_, err := New(cstable.VersionV0_1_0, testSchema(), -1, zerolog.Nop())
	require.Error(t, err)
	require.True(t, evqerr.Is(err, evqerr.KindInvalidArgument))
}

func TestArenaAcceptsV0_2_0WithNonEmptyHeader(t *testing.T) {
	a, err := New(cstable.VersionV0_2_0, testSchema(), -1, zerolog.Nop())
	require.NoError(t, err)
	require.Greater(t, a.HeaderSize(), 0)
}

// TestArenaSingleTransactionRoundtrip covers scenario S1.
func TestArenaSingleTransactionRoundtrip(t *testing.T) {
	f, closeFile := tempFile(t)
	defer closeFile()

	a, err := New(cstable.VersionV0_2_0, testSchema(), int(f.Fd()), zerolog.Nop())
	require.NoError(t, err)

	_, err = a.WriteHeader(int(f.Fd()))
	require.NoError(t, err)
	headerBytes := readExact(t, f, 0, a.HeaderSize())

	_, err = a.PageManager().AllocatePage(0, 100, []byte("some column page bytes"))
	require.NoError(t, err)

	a.Commit(1, 100)

	idxOffset, idxSize, err := a.WriteIndex(int(f.Fd()))
	require.NoError(t, err)

	err = a.WriteTransaction(int(f.Fd()), idxOffset, uint64(idxSize))
	require.NoError(t, err)
	require.NoError(t, a.Fsync(int(f.Fd())))

	// Reopen and verify.
	r, err := OpenReader(int(f.Fd()))
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.MetaBlock.TransactionID)
	require.Equal(t, uint64(100), r.MetaBlock.NumRows)
	require.Equal(t, idxOffset, r.MetaBlock.IndexOffset)
	require.Equal(t, uint64(idxSize), r.MetaBlock.IndexSize)

	// Header bytes are unchanged (Testable Property 3).
	require.Equal(t, headerBytes, readExact(t, f, 0, a.HeaderSize()))
}

// TestArenaMetaBlockSlotting covers Testable Property 2: committing
// transaction t lands in slot t mod 2, and the other slot is untouched.
func TestArenaMetaBlockSlotting(t *testing.T) {
	f, closeFile := tempFile(t)
	defer closeFile()
	fd := int(f.Fd())

	a, err := New(cstable.VersionV0_2_0, testSchema(), fd, zerolog.Nop())
	require.NoError(t, err)
	_, err = a.WriteHeader(fd)
	require.NoError(t, err)

	// Commit transaction 1 -> slot 1.
	a.Commit(1, 10)
	off1, sz1, err := a.WriteIndex(fd)
	require.NoError(t, err)
	require.NoError(t, a.WriteTransaction(fd, off1, uint64(sz1)))
	require.NoError(t, a.Fsync(fd))

	slot1Bytes := readExact(t, f, int64(cstable.KMetaBlockPosition+1*cstable.KMetaBlockSize), int(cstable.KMetaBlockSize))

	// Commit transaction 2 -> slot 0; slot 1 must be unchanged.
	a.Commit(2, 20)
	off2, sz2, err := a.WriteIndex(fd)
	require.NoError(t, err)
	require.NoError(t, a.WriteTransaction(fd, off2, uint64(sz2)))
	require.NoError(t, a.Fsync(fd))

	slot0, err := cstable.ReadMetaBlock(readExact(t, f, int64(cstable.KMetaBlockPosition), int(cstable.KMetaBlockSize)))
	require.NoError(t, err)
	require.Equal(t, uint64(2), slot0.TransactionID)

	slot1BytesAfter := readExact(t, f, int64(cstable.KMetaBlockPosition+1*cstable.KMetaBlockSize), int(cstable.KMetaBlockSize))
	require.Equal(t, slot1Bytes, slot1BytesAfter)
}

// TestArenaCrashBetweenSlots covers scenario S2: a torn write to the
// slot being written leaves the reader falling back to the other,
// still-valid slot.
func TestArenaCrashBetweenSlots(t *testing.T) {
	f, closeFile := tempFile(t)
	defer closeFile()
	fd := int(f.Fd())

	a, err := New(cstable.VersionV0_2_0, testSchema(), fd, zerolog.Nop())
	require.NoError(t, err)
	_, err = a.WriteHeader(fd)
	require.NoError(t, err)

	a.Commit(1, 100)
	off1, sz1, err := a.WriteIndex(fd)
	require.NoError(t, err)
	require.NoError(t, a.WriteTransaction(fd, off1, uint64(sz1)))
	require.NoError(t, a.Fsync(fd))

	// Simulate a crash mid-write of transaction 2's slot (slot 0): write
	// a few garbage bytes into slot 0 without a valid trailing checksum.
	garbage := make([]byte, 10)
	_, err = f.WriteAt(garbage, int64(cstable.KMetaBlockPosition))
	require.NoError(t, err)

	r, err := OpenReader(fd)
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.MetaBlock.TransactionID)
	require.Equal(t, uint64(100), r.MetaBlock.NumRows)

	// Now complete transaction 2 properly.
	a.Commit(2, 250)
	off2, sz2, err := a.WriteIndex(fd)
	require.NoError(t, err)
	require.NoError(t, a.WriteTransaction(fd, off2, uint64(sz2)))
	require.NoError(t, a.Fsync(fd))

	r2, err := OpenReader(fd)
	require.NoError(t, err)
	require.Equal(t, uint64(2), r2.MetaBlock.TransactionID)
	require.Equal(t, uint64(250), r2.MetaBlock.NumRows)
}

// TestArenaCommitMonotonicity covers Testable Property 4.
func TestArenaCommitMonotonicity(t *testing.T) {
	a, err := New(cstable.VersionV0_2_0, testSchema(), -1, zerolog.Nop())
	require.NoError(t, err)

	a.Commit(1, 10)
	tid, rows := a.Snapshot()
	require.Equal(t, uint64(1), tid)
	require.Equal(t, uint64(10), rows)

	a.Commit(2, 20)
	tid, rows = a.Snapshot()
	require.Equal(t, uint64(2), tid)
	require.Equal(t, uint64(20), rows)
}

func readExact(t *testing.T, f *os.File, offset int64, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := f.ReadAt(buf, offset)
	require.NoError(t, err)
	return buf
}
