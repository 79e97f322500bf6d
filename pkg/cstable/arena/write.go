package arena

import (
	"syscall"

	"github.com/nainya/evqlite/pkg/cstable"
	"github.com/nainya/evqlite/pkg/evqerr"
)

// WriteHeader writes the serialized header at offset 0 using positional
// I/O. Header bytes [0, header_size) are written once per file lifetime
// and never mutated afterward.
func (a *Arena) WriteHeader(fd int) (int, error) {
	n, err := syscall.Pwrite(fd, a.header, 0)
	if err != nil {
		return 0, evqerr.Wrap(evqerr.KindIOError, "write() failed", err)
	}
	if n != len(a.header) {
		return 0, evqerr.New(evqerr.KindIOError, "write() failed: short write of header")
	}
	return n, nil
}

// WriteIndex appends the page manager's current page index at the
// current file tail and returns the number of bytes written along with
// the offset it was written at, which the caller passes to
// WriteTransaction.
func (a *Arena) WriteIndex(fd int) (offset uint64, size int, err error) {
	idx := a.pageMgr.GetPageIndex()
	data := cstable.WriteIndex(idx)

	var stat syscall.Stat_t
	if err := syscall.Fstat(fd, &stat); err != nil {
		return 0, 0, evqerr.Wrap(evqerr.KindIOError, "fstat before writing index", err)
	}
	tail := uint64(stat.Size)

	n, err := syscall.Pwrite(fd, data, int64(tail))
	if err != nil {
		return 0, 0, evqerr.Wrap(evqerr.KindIOError, "write() failed", err)
	}
	if n != len(data) {
		return 0, 0, evqerr.New(evqerr.KindIOError, "write() failed: short write of index")
	}
	return tail, n, nil
}

// WriteTransaction serializes the arena's current MetaBlock and writes
// it to slot transactionID mod 2 at
// kMetaBlockPosition + slot*kMetaBlockSize. The caller is responsible
// for calling Commit first so the in-memory (transactionID, numRows)
// reflects what's being persisted, and for fsyncing the file afterward.
func (a *Arena) WriteTransaction(fd int, indexOffset, indexSize uint64) error {
	transactionID, numRows := a.Snapshot()

	mb := cstable.MetaBlock{
		TransactionID: transactionID,
		NumRows:       numRows,
		IndexOffset:   indexOffset,
		IndexSize:     indexSize,
	}
	buf := cstable.WriteMetaBlock(mb)
	if uint64(len(buf)) != cstable.KMetaBlockSize {
		panic("arena: invalid meta block size")
	}

	offset := cstable.MetaBlockSlotOffset(transactionID)
	n, err := syscall.Pwrite(fd, buf, int64(offset))
	if err != nil {
		return evqerr.Wrap(evqerr.KindIOError, "write() failed", err)
	}
	if uint64(n) != cstable.KMetaBlockSize {
		return evqerr.New(evqerr.KindIOError, "write() failed: short write of meta block")
	}
	return nil
}

// Fsync flushes the file to durable storage, completing step 4 of the
// canonical commit protocol (write_index, write_transaction, fsync).
func (a *Arena) Fsync(fd int) error {
	if err := syscall.Fsync(fd); err != nil {
		return evqerr.Wrap(evqerr.KindIOError, "fsync", err)
	}
	return nil
}
