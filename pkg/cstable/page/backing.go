package page

import (
	"syscall"

	"github.com/klauspost/compress/zstd"

	"github.com/nainya/evqlite/pkg/evqerr"
)

// compressThreshold is the page size at or above which FileBacked
// pages are zstd-compressed before being appended. Small pages aren't
// worth the frame overhead.
const compressThreshold = 4096

// Backing is the polymorphic storage behind a Manager: an append-only
// file region or an in-process buffer. Only FileBacked participates in
// durable commits; MemoryBacked exists for schemas with no durable fd
// (fd == -1) and for tests.
type Backing interface {
	// Append writes data at the backing's current tail and returns the
	// offset it was written at.
	Append(data []byte) (offset uint64, err error)
	// ReadAt reads size bytes starting at offset, exactly as stored.
	// It does not undo compression applied by Append; see
	// FileBacked.Decompress.
	ReadAt(offset, size uint64) ([]byte, error)
	// Sync durably persists everything appended so far. A no-op for
	// MemoryBacked.
	Sync() error
}

// FileBacked appends pages to a real file via positional writes,
// starting at a fixed offset (after the file header and meta-block
// slots). Pages of compressThreshold bytes or more are stored zstd-compressed
// with their on-disk size tracked in the page index entry's Size field.
type FileBacked struct {
	fd     int
	tail   uint64
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// NewFileBacked constructs a FileBacked region starting at startOffset.
func NewFileBacked(fd int, startOffset uint64) (*FileBacked, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, evqerr.Wrap(evqerr.KindIOError, "constructing zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, evqerr.Wrap(evqerr.KindIOError, "constructing zstd decoder", err)
	}
	return &FileBacked{fd: fd, tail: startOffset, enc: enc, dec: dec}, nil
}

func (b *FileBacked) Append(data []byte) (uint64, error) {
	payload := data
	if len(data) >= compressThreshold {
		payload = b.enc.EncodeAll(data, nil)
	}

	offset := b.tail
	n, err := syscall.Pwrite(b.fd, payload, int64(offset))
	if err != nil {
		return 0, evqerr.Wrap(evqerr.KindIOError, "pwrite page", err)
	}
	if n != len(payload) {
		return 0, evqerr.New(evqerr.KindIOError, "short write appending page")
	}
	b.tail += uint64(n)
	return offset, nil
}

func (b *FileBacked) ReadAt(offset, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := syscall.Pread(b.fd, buf, int64(offset))
	if err != nil {
		return nil, evqerr.Wrap(evqerr.KindIOError, "pread page", err)
	}
	if uint64(n) != size {
		return nil, evqerr.New(evqerr.KindIOError, "short read of page")
	}
	return buf, nil
}

func (b *FileBacked) Sync() error {
	if err := syscall.Fsync(b.fd); err != nil {
		return evqerr.Wrap(evqerr.KindIOError, "fsync", err)
	}
	return nil
}

// Tail returns the current append offset (the file's logical length as
// far as page storage is concerned).
func (b *FileBacked) Tail() uint64 { return b.tail }

// Decompress reverses zstd compression applied by Append, for a caller
// that knows a page was compressed. FileBacked.ReadAt and
// Manager.ReadPage return the raw on-disk bytes and do not call it.
func (b *FileBacked) Decompress(data []byte) ([]byte, error) {
	out, err := b.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, evqerr.Wrap(evqerr.KindCorrupt, "decompressing page", err)
	}
	return out, nil
}

// MemoryBacked appends pages to an in-process buffer. It never
// participates in durable commits: Sync is a no-op.
type MemoryBacked struct {
	tail  uint64
	chunk []byte
}

// NewMemoryBacked constructs an empty in-memory backing.
func NewMemoryBacked() *MemoryBacked {
	return &MemoryBacked{}
}

func (b *MemoryBacked) Append(data []byte) (uint64, error) {
	offset := b.tail
	b.chunk = append(b.chunk, data...)
	b.tail += uint64(len(data))
	return offset, nil
}

func (b *MemoryBacked) ReadAt(offset, size uint64) ([]byte, error) {
	if offset+size > uint64(len(b.chunk)) {
		return nil, evqerr.New(evqerr.KindIOError, "read out of range of memory-backed region")
	}
	out := make([]byte, size)
	copy(out, b.chunk[offset:offset+size])
	return out, nil
}

func (b *MemoryBacked) Sync() error { return nil }
