package arena

import (
	"syscall"

	"github.com/nainya/evqlite/pkg/cstable"
	"github.com/nainya/evqlite/pkg/evqerr"
)

// Reader opens an already-committed CST file for read access: it
// decodes the header and selects the durable meta-block slot.
//
// Slot selection is decided by checksum rather than transaction_id
// alone: a slot is a candidate only if its CRC32C validates; among
// valid candidates, the one with the higher TransactionID wins. This
// tolerates a torn write to the other slot.
type Reader struct {
	Header     cstable.FileHeader
	HeaderSize int
	MetaBlock  cstable.MetaBlock
	PageIndex  cstable.PageIndex
}

// OpenReader reads and validates fd's header and meta-block slots.
func OpenReader(fd int) (*Reader, error) {
	var stat syscall.Stat_t
	if err := syscall.Fstat(fd, &stat); err != nil {
		return nil, evqerr.Wrap(evqerr.KindIOError, "fstat", err)
	}

	// The header's serialized length isn't known up front; read a
	// generous prefix and let ReadHeader tell us how much it consumed.
	prefix := make([]byte, cstable.KMetaBlockPosition)
	if uint64(stat.Size) < cstable.KMetaBlockPosition {
		prefix = prefix[:stat.Size]
	}
	if _, err := syscall.Pread(fd, prefix, 0); err != nil {
		return nil, evqerr.Wrap(evqerr.KindIOError, "reading header prefix", err)
	}

	header, headerSize, err := cstable.ReadHeader(prefix)
	if err != nil {
		return nil, err
	}

	mb, err := selectMetaBlockSlot(fd)
	if err != nil {
		return nil, err
	}

	var idx cstable.PageIndex
	if mb.IndexSize > 0 {
		idxBuf := make([]byte, mb.IndexSize)
		if _, err := syscall.Pread(fd, idxBuf, int64(mb.IndexOffset)); err != nil {
			return nil, evqerr.Wrap(evqerr.KindIOError, "reading page index", err)
		}
		idx, err = cstable.ReadIndex(idxBuf)
		if err != nil {
			return nil, err
		}
	}

	return &Reader{Header: header, HeaderSize: headerSize, MetaBlock: mb, PageIndex: idx}, nil
}

// selectMetaBlockSlot reads both meta-block slots and returns whichever
// validates with the higher TransactionID. It returns an evqerr
// KindCorrupt error only if neither slot validates.
func selectMetaBlockSlot(fd int) (cstable.MetaBlock, error) {
	var candidates []cstable.MetaBlock

	for slot := uint64(0); slot < 2; slot++ {
		offset := cstable.KMetaBlockPosition + slot*cstable.KMetaBlockSize
		buf := make([]byte, cstable.KMetaBlockSize)
		if _, err := syscall.Pread(fd, buf, int64(offset)); err != nil {
			continue // slot not yet written (e.g. brand-new file)
		}
		mb, err := cstable.ReadMetaBlock(buf)
		if err != nil {
			continue // checksum mismatch: torn write or never written
		}
		candidates = append(candidates, mb)
	}

	if len(candidates) == 0 {
		return cstable.MetaBlock{}, evqerr.New(evqerr.KindCorrupt, "no valid meta block slot found")
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.TransactionID > best.TransactionID {
			best = c
		}
	}
	return best, nil
}
