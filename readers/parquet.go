//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoIngest.
//
// GoIngest is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoIngest is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoIngest. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/goingest"
)

// ParquetReaderError wraps Parquet-specific read errors with context about the operation.
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "open", "schema", "read_batch")
	Err error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReaderStats holds statistics about the Parquet reader.
type ParquetReaderStats struct {
	RecordsRead  int64
	BatchesRead  int64
	TotalRows    int64 // Row count from the file footer
	ReadDuration time.Duration
	EmptyCells   map[string]int64
}

// ParquetReaderOptions configures the Parquet reader.
type ParquetReaderOptions struct {
	BatchSize int64 // Rows decoded per column batch (default: 1024)
}

// ReaderOptionParquet allows functional customization of ParquetReader.
type ReaderOptionParquet func(*ParquetReaderOptions)

func WithParquetBatchSize(size int64) ReaderOptionParquet {
	return func(o *ParquetReaderOptions) { o.BatchSize = size }
}

// ParquetReader implements DataSource for Parquet files. Integer columns read as int,
// floating point as float64, timestamps and dates as time.Time and nulls as nil.
type ParquetReader struct {
	file    *file.Reader
	records pqarrow.RecordReader
	schema  *arrow.Schema
	batch   arrow.Record // Owned by records; valid until the next call to Next
	row     int
	stats   ParquetReaderStats
}

// NewParquetReader opens src, which must support random access. Closing the reader
// closes src when it is an io.Closer. A file without rows behaves like a header-only
// CSV file: it has headers and reads io.EOF at once.
func NewParquetReader(ctx context.Context, src parquet.ReaderAtSeeker, options ...ReaderOptionParquet) (*ParquetReader, error) {
	opts := ParquetReaderOptions{BatchSize: 1024}
	for _, option := range options {
		option(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1024
	}

	pf, err := file.NewParquetReader(src)
	if err != nil {
		closeSource(src)
		return nil, &ParquetReaderError{Op: "open", Err: err}
	}
	fail := func(op string, err error) (*ParquetReader, error) {
		pf.Close()
		return nil, &ParquetReaderError{Op: op, Err: err}
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		return fail("arrow_reader", err)
	}
	schema, err := fr.Schema()
	if err != nil {
		return fail("schema", err)
	}
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return fail("record_reader", err)
	}

	return &ParquetReader{
		file:    pf,
		records: rr,
		schema:  schema,
		stats: ParquetReaderStats{
			TotalRows:  pf.NumRows(),
			EmptyCells: make(map[string]int64),
		},
	}, nil
}

// Headers returns the column names in file order.
func (p *ParquetReader) Headers() []string {
	names := make([]string, len(p.schema.Fields()))
	for i, f := range p.schema.Fields() {
		names[i] = f.Name
	}
	return names
}

// Read implements the DataSource interface.
func (p *ParquetReader) Read(ctx context.Context) (goingest.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ParquetReaderError{Op: "read", Err: err}
	}
	start := time.Now()
	defer func() { p.stats.ReadDuration += time.Since(start) }()

	for p.batch == nil || p.row >= int(p.batch.NumRows()) {
		if !p.records.Next() {
			p.batch = nil
			if err := p.records.Err(); err != nil && err != io.EOF {
				return nil, &ParquetReaderError{Op: "read_batch", Err: err}
			}
			return nil, io.EOF
		}
		p.batch = p.records.Record()
		p.row = 0
		p.stats.BatchesRead++
	}

	rec := make(goingest.Record, p.batch.NumCols())
	for i, col := range p.batch.Columns() {
		name := p.batch.ColumnName(i)
		v := cellValue(col, p.row)
		if v == nil {
			p.stats.EmptyCells[name]++
		}
		rec[name] = v
	}
	p.row++
	p.stats.RecordsRead++
	return rec, nil
}

// Close implements the DataSource interface.
func (p *ParquetReader) Close() error {
	if p.records != nil {
		p.records.Release()
		p.records = nil
		p.batch = nil
	}
	return p.file.Close()
}

// Stats returns a copy of the reader statistics.
func (p *ParquetReader) Stats() ParquetReaderStats {
	out := p.stats
	out.EmptyCells = make(map[string]int64, len(p.stats.EmptyCells))
	for k, v := range p.stats.EmptyCells {
		out.EmptyCells[k] = v
	}
	return out
}

// cellValue converts one Arrow cell to the value types the CSV and JSON readers produce.
func cellValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int8:
		return int(a.Value(i))
	case *array.Int16:
		return int(a.Value(i))
	case *array.Int32:
		return int(a.Value(i))
	case *array.Int64:
		return int(a.Value(i))
	case *array.Uint8:
		return int(a.Value(i))
	case *array.Uint16:
		return int(a.Value(i))
	case *array.Uint32:
		return int(a.Value(i))
	case *array.Uint64:
		return int(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.Timestamp:
		return a.Value(i).ToTime(a.DataType().(*arrow.TimestampType).Unit)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	default:
		return col.ValueStr(i)
	}
}

func closeSource(src parquet.ReaderAtSeeker) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}
