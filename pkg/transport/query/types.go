// Package query implements the per-connection query operation handler:
// it speaks the QUERY/QUERY_RESULT/QUERY_CONTINUE/QUERY_NEXT/
// QUERY_DISCARD frame sequence against an external SQL subsystem
// reached only through the StatementPlanner/Plan/RowCursor interfaces
// below.
package query

import "context"

// Value is one cell of a result row. Wire encoding renders it as text;
// SQL-level typing is the planner's concern, not this package's.
type Value any

// ColumnInfo describes one result column of a statement.
type ColumnInfo struct {
	Name string
	Type string
}

// RowCursor iterates the rows produced by one statement.
type RowCursor interface {
	// Next populates row with the next row's values and reports
	// whether a row was available. row must have len ==
	// len(Plan.ResultColumns(stmt)).
	Next(row []Value) bool
	Err() error
	Close() error
}

// Plan is an executable, possibly multi-statement query.
type Plan interface {
	NumStatements() int
	Execute(ctx context.Context, stmt int) (RowCursor, error)
	ResultColumns(stmt int) []ColumnInfo
	SetProgressCallback(func(frac float64))
	Progress() float64
}

// StatementPlanner turns query text into an executable Plan. Callers
// supply an implementation backed by whatever SQL engine they use;
// this package has no SQL semantics of its own.
type StatementPlanner interface {
	Plan(ctx context.Context, queryText, database string) (Plan, error)
}
