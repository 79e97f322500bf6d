package query

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/nainya/evqlite/internal/varint"
)

// Request is the decoded payload of a QUERY frame. SwitchDB/Progress/
// MultiStmt live in the frame's flags, not here.
type Request struct {
	QueryText string
	MaxRows   uint64
	Database  string
}

// EncodeRequest serializes a Request as lenenc(query_text) |
// varuint(max_rows) | lenenc(database).
func EncodeRequest(r Request) []byte {
	buf := varint.PutLenencString(nil, r.QueryText)
	buf = varint.PutUvarint(buf, r.MaxRows)
	buf = varint.PutLenencString(buf, r.Database)
	return buf
}

// DecodeRequest parses a QUERY frame payload.
func DecodeRequest(payload []byte) (Request, error) {
	r := bufio.NewReader(bytes.NewReader(payload))

	queryText, err := varint.ReadLenencString(r)
	if err != nil {
		return Request{}, fmt.Errorf("query_text: %w", err)
	}
	maxRows, err := varint.ReadUvarint(r)
	if err != nil {
		return Request{}, fmt.Errorf("max_rows: %w", err)
	}
	database, err := varint.ReadLenencString(r)
	if err != nil {
		return Request{}, fmt.Errorf("database: %w", err)
	}

	return Request{QueryText: queryText, MaxRows: maxRows, Database: database}, nil
}

// ResultFrame is the decoded payload of a QUERY_RESULT frame.
type ResultFrame struct {
	Rows                [][]Value
	IsLast              bool
	HasPendingStatement bool
}

// EncodeResult serializes a ResultFrame as varuint(num_rows) |
// (varuint(num_cols) | lenenc(value)*num_cols)*num_rows | flags byte.
func EncodeResult(rf ResultFrame) []byte {
	buf := varint.PutUvarint(nil, uint64(len(rf.Rows)))
	for _, row := range rf.Rows {
		buf = varint.PutUvarint(buf, uint64(len(row)))
		for _, v := range row {
			buf = varint.PutLenencString(buf, fmt.Sprint(v))
		}
	}

	var flags byte
	if rf.IsLast {
		flags |= 0x01
	}
	if rf.HasPendingStatement {
		flags |= 0x02
	}
	return append(buf, flags)
}

// DecodeResult parses a QUERY_RESULT frame payload. Values decode as
// strings; callers that need the original type use ResultColumns from
// the Plan used to produce them.
func DecodeResult(payload []byte) (ResultFrame, error) {
	if len(payload) == 0 {
		return ResultFrame{}, fmt.Errorf("empty result frame")
	}
	body, flags := payload[:len(payload)-1], payload[len(payload)-1]

	r := bufio.NewReader(bytes.NewReader(body))
	numRows, err := varint.ReadUvarint(r)
	if err != nil {
		return ResultFrame{}, fmt.Errorf("num_rows: %w", err)
	}

	rows := make([][]Value, 0, numRows)
	for i := uint64(0); i < numRows; i++ {
		numCols, err := varint.ReadUvarint(r)
		if err != nil {
			return ResultFrame{}, fmt.Errorf("num_cols: %w", err)
		}
		row := make([]Value, numCols)
		for c := range row {
			s, err := varint.ReadLenencString(r)
			if err != nil {
				return ResultFrame{}, fmt.Errorf("value: %w", err)
			}
			row[c] = s
		}
		rows = append(rows, row)
	}

	return ResultFrame{
		Rows:                rows,
		IsLast:              flags&0x01 != 0,
		HasPendingStatement: flags&0x02 != 0,
	}, nil
}
