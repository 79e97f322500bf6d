package cstable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundtrip(t *testing.T) {
	schema := Schema{Columns: []Column{
		{Name: "ts", Type: ColumnTimestamp, Nullable: false},
		{Name: "value", Type: ColumnFloat64, TypeSize: 8, Nullable: true},
	}}

	buf, err := WriteHeader(FileHeader{Version: VersionV0_2_0, Schema: schema})
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	got, n, err := ReadHeader(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, VersionV0_2_0, got.Version)
	require.Equal(t, schema.Columns, got.Schema.Columns)
}

func TestWriteHeaderRejectsV0_1_0(t *testing.T) {
	_, err := WriteHeader(FileHeader{Version: VersionV0_1_0})
	require.Error(t, err)
}

func TestWriteHeaderRejectsDuplicateColumns(t *testing.T) {
	schema := Schema{Columns: []Column{
		{Name: "x", Type: ColumnInt64},
		{Name: "x", Type: ColumnInt64},
	}}
	_, err := WriteHeader(FileHeader{Version: VersionV0_2_0, Schema: schema})
	require.Error(t, err)
}

func TestMetaBlockRoundtrip(t *testing.T) {
	mb := MetaBlock{TransactionID: 7, NumRows: 1000, IndexOffset: 4096, IndexSize: 128}
	buf := WriteMetaBlock(mb)
	require.Equal(t, int(KMetaBlockSize), len(buf))

	got, err := ReadMetaBlock(buf)
	require.NoError(t, err)
	require.Equal(t, mb, got)
}

func TestReadMetaBlockDetectsCorruption(t *testing.T) {
	mb := MetaBlock{TransactionID: 1, NumRows: 1}
	buf := WriteMetaBlock(mb)
	buf[0] ^= 0xFF // flip a bit in the transaction id field

	_, err := ReadMetaBlock(buf)
	require.Error(t, err)
}

func TestMetaBlockSlotOffsetAlternates(t *testing.T) {
	require.Equal(t, KMetaBlockPosition, MetaBlockSlotOffset(0))
	require.Equal(t, KMetaBlockPosition+KMetaBlockSize, MetaBlockSlotOffset(1))
	require.Equal(t, KMetaBlockPosition, MetaBlockSlotOffset(2))
}

func TestPageIndexRoundtrip(t *testing.T) {
	idx := PageIndex{
		{ColumnID: 0, PageID: 0, Offset: 4096, Size: 64, RowCount: 10},
		{ColumnID: 1, PageID: 1, Offset: 4160, Size: 128, RowCount: 10},
	}
	buf := WriteIndex(idx)
	got, err := ReadIndex(buf)
	require.NoError(t, err)
	require.Equal(t, idx, got)
}
