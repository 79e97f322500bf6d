// Package arena implements the CST Arena: the in-memory write buffer
// bound to one schema and one file descriptor that stages a table's
// header, tracks committed transaction state, and writes the header,
// page index, and meta-block to disk.
package arena

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/nainya/evqlite/pkg/cstable"
	"github.com/nainya/evqlite/pkg/cstable/page"
	"github.com/nainya/evqlite/pkg/evqerr"
)

// Arena is the write-side handle for one CST file. It is safe for
// concurrent Commit/Snapshot calls; the file-writing methods
// (WriteHeader, WriteIndex, WriteTransaction) are expected to be called
// by a single coordinator thread and are not internally synchronized
// against each other.
type Arena struct {
	version BinaryFormatVersion
	schema  cstable.Schema
	header  []byte // serialized FileHeader, written once at offset 0

	pageMgr *page.Manager

	mu            sync.Mutex
	transactionID uint64
	numRows       uint64

	log zerolog.Logger
}

// BinaryFormatVersion re-exports cstable.BinaryFormatVersion so callers
// need only import this package to construct an Arena.
type BinaryFormatVersion = cstable.BinaryFormatVersion

const (
	VersionV0_1_0 = cstable.VersionV0_1_0
	VersionV0_2_0 = cstable.VersionV0_2_0
)

// New constructs an Arena for schema, serializing its FileHeader into an
// internal buffer and creating a Page Manager whose pages start right
// after the two meta-block slots. fd == -1 selects an in-memory-backed page manager (no durable
// commits); any other fd selects a file-backed one.
//
// New fails with InvalidArgument if version is v0_1_0: the legacy
// format is out of scope and is rejected here, not merely
// unimplemented.
func New(version BinaryFormatVersion, schema cstable.Schema, fd int, log zerolog.Logger) (*Arena, error) {
	if version == cstable.VersionV0_1_0 {
		return nil, evqerr.New(evqerr.KindInvalidArgument, "can't use cstable arenas for v0.1.0 files")
	}

	header, err := cstable.WriteHeader(cstable.FileHeader{
		Version: version,
		Schema:  schema,
		Columns: schema.FlatColumns(),
	})
	if err != nil {
		return nil, err
	}

	var pageMgr *page.Manager
	if fd < 0 {
		pageMgr = page.NewMemoryBackedManager(nil)
	} else {
		pagesStart := cstable.KMetaBlockPosition + 2*cstable.KMetaBlockSize
		pageMgr, err = page.NewFileBackedManager(fd, pagesStart, nil)
		if err != nil {
			return nil, err
		}
	}

	return &Arena{
		version: version,
		schema:  schema,
		header:  header,
		pageMgr: pageMgr,
		log:     log.With().Str("component", "arena").Logger(),
	}, nil
}

// Version returns the arena's binary format version.
func (a *Arena) Version() BinaryFormatVersion { return a.version }

// Schema returns the schema this arena was constructed with.
func (a *Arena) Schema() cstable.Schema { return a.schema }

// PageManager returns the arena's Page Manager, used by callers to
// allocate pages before calling WriteIndex.
func (a *Arena) PageManager() *page.Manager { return a.pageMgr }

// HeaderSize returns the size in bytes of the serialized header.
func (a *Arena) HeaderSize() int { return len(a.header) }

// Commit updates the arena's in-memory (transactionID, numRows) state
// under its mutex. This does not touch disk; callers must still call
// WriteIndex and WriteTransaction to make the commit durable.
func (a *Arena) Commit(transactionID, numRows uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transactionID = transactionID
	a.numRows = numRows
}

// Snapshot reads the current committed (transactionID, numRows) under
// the same mutex Commit uses, so concurrent readers never observe a
// torn pair.
func (a *Arena) Snapshot() (transactionID, numRows uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transactionID, a.numRows
}
