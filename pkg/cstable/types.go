// Package cstable defines the on-disk columnar storage table format:
// the binary format versions, table schema, file header, meta-block,
// and page-index shapes shared by the page manager and the arena.
package cstable

import "fmt"

// BinaryFormatVersion enumerates the on-disk format revisions this
// package understands. v0_1_0 is parsed here only so the arena can
// reject it by name; its layout is not implemented.
type BinaryFormatVersion int

const (
	VersionV0_1_0 BinaryFormatVersion = iota
	VersionV0_2_0
)

func (v BinaryFormatVersion) String() string {
	switch v {
	case VersionV0_1_0:
		return "v0.1.0"
	case VersionV0_2_0:
		return "v0.2.0"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// ColumnType is the logical type tag carried by a Column. evqlite does
// not interpret these values beyond storing and round-tripping them;
// the SQL layer that would give them meaning is out of scope.
type ColumnType string

const (
	ColumnBool      ColumnType = "bool"
	ColumnUint64    ColumnType = "uint64"
	ColumnInt64     ColumnType = "int64"
	ColumnFloat64   ColumnType = "float64"
	ColumnString    ColumnType = "string"
	ColumnTimestamp ColumnType = "timestamp64"
)

// Column describes one column of a table schema.
type Column struct {
	Name     string
	Type     ColumnType
	TypeSize uint32 // 0 = unspecified
	Nullable bool
}

// Schema is an ordered, immutable sequence of columns. Once built, a
// Schema is never mutated; the arena holds one for its lifetime.
type Schema struct {
	Columns []Column
}

// Validate checks that column names are non-empty and unique.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("cstable: column with empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("cstable: duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// FlatColumns returns the schema's columns in on-disk order. Schemas in
// this package are already flat (no nested/repeated groups), so this is
// the identity of s.Columns; it exists to mirror the original format's
// flattenColumns() step and to give the header writer a single,
// clearly-named source of the column list.
func (s Schema) FlatColumns() []Column {
	return s.Columns
}

// FileHeader is the in-memory representation of the serialized header
// written once at offset 0 of a v0_2_0 file.
type FileHeader struct {
	Version BinaryFormatVersion
	Schema  Schema
	Columns []Column
}

// MetaBlock is the fixed-size record describing one committed
// transaction. Two slots of MetaBlock exist on disk (see Format
// constants); the reader picks whichever is valid with the higher
// TransactionID.
type MetaBlock struct {
	TransactionID uint64
	NumRows       uint64
	IndexOffset   uint64
	IndexSize     uint64
}

// PageIndexEntry maps one columnar page to its byte range in the file.
type PageIndexEntry struct {
	ColumnID uint32
	PageID   uint64
	Offset   uint64
	Size     uint64
	RowCount uint64
}

// PageIndex is the ordered sequence of page locations written to disk
// at commit time.
type PageIndex []PageIndexEntry
