package cstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/nainya/evqlite/internal/varint"
	"github.com/nainya/evqlite/pkg/evqerr"
)

// Format constants for the v0_2_0 on-disk layout. These are bit-for-bit
// compatible across any writer/reader pair and must never change
// without a new BinaryFormatVersion.
const (
	// kMetaBlockPosition is the byte offset of meta-block slot 0,
	// immediately following the fixed-size reserved region after a
	// typical small header; callers writing unusually large headers
	// are responsible for choosing a header_size that fits before it.
	KMetaBlockPosition uint64 = 4096
	// KMetaBlockSize is the fixed size of each meta-block slot. The
	// serialized MetaBlock (36 bytes: 4 uint64 fields + a uint32
	// checksum) is padded up to this size.
	KMetaBlockSize uint64 = 64
	// kNumMetaBlockSlots is fixed at two: the active slot and the
	// previous durable slot, selected by transaction_id mod 2.
	kNumMetaBlockSlots = 2
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// WriteHeader serializes a FileHeader in v0_2_0 format and returns the
// serialized bytes; their length is the header_size.
func WriteHeader(h FileHeader) ([]byte, error) {
	if h.Version == VersionV0_1_0 {
		return nil, evqerr.New(evqerr.KindInvalidArgument, "can't serialize cstable headers for v0.1.0 files")
	}
	if h.Version != VersionV0_2_0 {
		return nil, evqerr.New(evqerr.KindInvalidArgument, "unknown binary format version")
	}
	if err := h.Schema.Validate(); err != nil {
		return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "invalid schema", err)
	}

	var buf []byte
	buf = append(buf, byte(h.Version))
	cols := h.Schema.FlatColumns()
	buf = varint.PutUvarint(buf, uint64(len(cols)))
	for _, c := range cols {
		buf = varint.PutLenencString(buf, c.Name)
		buf = varint.PutLenencString(buf, string(c.Type))
		buf = varint.PutUvarint(buf, uint64(c.TypeSize))
		if c.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf, nil
}

// ReadHeader parses a serialized v0_2_0 FileHeader.
func ReadHeader(data []byte) (FileHeader, int, error) {
	if len(data) < 1 {
		return FileHeader{}, 0, evqerr.New(evqerr.KindInvalidArgument, "header too short")
	}
	version := BinaryFormatVersion(data[0])
	if version != VersionV0_2_0 {
		return FileHeader{}, 0, evqerr.New(evqerr.KindInvalidArgument, "unsupported header version")
	}

	r := bufio.NewReader(bytes.NewReader(data[1:]))
	numCols, err := varint.ReadUvarint(r)
	if err != nil {
		return FileHeader{}, 0, evqerr.Wrap(evqerr.KindInvalidArgument, "reading column count", err)
	}

	cols := make([]Column, 0, numCols)
	for i := uint64(0); i < numCols; i++ {
		name, err := varint.ReadLenencString(r)
		if err != nil {
			return FileHeader{}, 0, evqerr.Wrap(evqerr.KindInvalidArgument, "reading column name", err)
		}
		typ, err := varint.ReadLenencString(r)
		if err != nil {
			return FileHeader{}, 0, evqerr.Wrap(evqerr.KindInvalidArgument, "reading column type", err)
		}
		size, err := varint.ReadUvarint(r)
		if err != nil {
			return FileHeader{}, 0, evqerr.Wrap(evqerr.KindInvalidArgument, "reading column size", err)
		}
		nullableByte, err := r.ReadByte()
		if err != nil {
			return FileHeader{}, 0, evqerr.Wrap(evqerr.KindInvalidArgument, "reading column nullability", err)
		}
		cols = append(cols, Column{
			Name:     name,
			Type:     ColumnType(typ),
			TypeSize: uint32(size),
			Nullable: nullableByte != 0,
		})
	}

	consumed := len(data) - r.Buffered()
	schema := Schema{Columns: cols}
	return FileHeader{Version: version, Schema: schema, Columns: schema.FlatColumns()}, consumed, nil
}

// WriteMetaBlock serializes mb with a trailing CRC32C checksum, padded
// to KMetaBlockSize. Slot validity at read time is decided by this
// checksum, not solely by TransactionID, so a torn write to one slot
// never shadows the other slot's still-valid data.
func WriteMetaBlock(mb MetaBlock) []byte {
	buf := make([]byte, 0, KMetaBlockSize)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], mb.TransactionID)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], mb.NumRows)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], mb.IndexOffset)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], mb.IndexSize)
	buf = append(buf, tmp[:]...)

	checksum := crc32.Checksum(buf, castagnoli)
	var csum [4]byte
	binary.LittleEndian.PutUint32(csum[:], checksum)
	buf = append(buf, csum[:]...)

	if uint64(len(buf)) > KMetaBlockSize {
		panic("cstable: serialized meta block size exceeds KMetaBlockSize")
	}
	padded := make([]byte, KMetaBlockSize)
	copy(padded, buf)
	return padded
}

// ReadMetaBlock decodes a meta-block slot and validates its checksum.
func ReadMetaBlock(slot []byte) (MetaBlock, error) {
	if uint64(len(slot)) < KMetaBlockSize {
		return MetaBlock{}, evqerr.New(evqerr.KindCorrupt, "meta block slot too short")
	}
	body := slot[:32]
	wantChecksum := binary.LittleEndian.Uint32(slot[32:36])
	gotChecksum := crc32.Checksum(body, castagnoli)
	if wantChecksum != gotChecksum {
		return MetaBlock{}, evqerr.New(evqerr.KindCorrupt, "meta block checksum mismatch")
	}

	return MetaBlock{
		TransactionID: binary.LittleEndian.Uint64(slot[0:8]),
		NumRows:       binary.LittleEndian.Uint64(slot[8:16]),
		IndexOffset:   binary.LittleEndian.Uint64(slot[16:24]),
		IndexSize:     binary.LittleEndian.Uint64(slot[24:32]),
	}, nil
}

// MetaBlockSlotOffset returns the on-disk offset of the slot that holds
// transactionID mod 2.
func MetaBlockSlotOffset(transactionID uint64) uint64 {
	slot := transactionID % kNumMetaBlockSlots
	return KMetaBlockPosition + slot*KMetaBlockSize
}

// WriteIndex serializes a PageIndex.
func WriteIndex(idx PageIndex) []byte {
	var buf []byte
	buf = varint.PutUvarint(buf, uint64(len(idx)))
	for _, e := range idx {
		buf = varint.PutUvarint(buf, uint64(e.ColumnID))
		buf = varint.PutUvarint(buf, e.PageID)
		buf = varint.PutUvarint(buf, e.Offset)
		buf = varint.PutUvarint(buf, e.Size)
		buf = varint.PutUvarint(buf, e.RowCount)
	}
	return buf
}

// ReadIndex parses a serialized PageIndex.
func ReadIndex(data []byte) (PageIndex, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "reading page index length", err)
	}
	idx := make(PageIndex, 0, n)
	for i := uint64(0); i < n; i++ {
		colID, err := varint.ReadUvarint(r)
		if err != nil {
			return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "reading column id", err)
		}
		pageID, err := varint.ReadUvarint(r)
		if err != nil {
			return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "reading page id", err)
		}
		offset, err := varint.ReadUvarint(r)
		if err != nil {
			return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "reading page offset", err)
		}
		size, err := varint.ReadUvarint(r)
		if err != nil {
			return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "reading page size", err)
		}
		rowCount, err := varint.ReadUvarint(r)
		if err != nil {
			return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "reading page row count", err)
		}
		idx = append(idx, PageIndexEntry{
			ColumnID: uint32(colID),
			PageID:   pageID,
			Offset:   offset,
			Size:     size,
			RowCount: rowCount,
		})
	}
	return idx, nil
}
