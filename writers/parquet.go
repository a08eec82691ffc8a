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

// Package writers provides implementations of goingest.DataSink for writing records
// to files, object stores and databases.
package writers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/transform"
)

// The Parquet sink fixes its Arrow schema on the first flush. Columns come from
// WithFieldOrder or the sorted keys of that batch, and each column takes the type of
// its values there: integers are int64, integers mixed with floats are float64 and
// any other mix is string. A later value that does not fit its column is stored as
// null and counted in EmptyCells.

const (
	defaultParquetBatch    = 1000
	defaultParquetRowGroup = 10000
)

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "write_batch", "close_writer")
	Err error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet writer. Zero values take defaults.
type ParquetWriterOptions struct {
	BatchSize    int64                // Records per Arrow record batch
	Compression  compress.Compression // Snappy unless set
	FieldOrder   []string             // Column order; defaults to the first batch's sorted keys
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // Stored in the Arrow schema
}

// ParquetWriterStats holds Parquet write statistics.
type ParquetWriterStats struct {
	RowsWritten   int64
	Batches       int64
	FlushDuration time.Duration
	LastFlushTime time.Time
	EmptyCells    map[string]int64 // Nil, absent or mistyped values per column
}

// WriterOption is a functional option for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

func WithBatchSize(size int64) WriterOption {
	return func(o *ParquetWriterOptions) { o.BatchSize = size }
}

func WithCompression(compression compress.Compression) WriterOption {
	return func(o *ParquetWriterOptions) { o.Compression = compression }
}

// WithFieldOrder fixes the columns and their order. A writer with a field order
// produces a valid file even when no record arrives.
func WithFieldOrder(fields []string) WriterOption {
	return func(o *ParquetWriterOptions) { o.FieldOrder = append([]string(nil), fields...) }
}

func WithRowGroupSize(size int64) WriterOption {
	return func(o *ParquetWriterOptions) { o.RowGroupSize = size }
}

// WithMetadata adds key/value pairs to the file's Arrow schema metadata.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(o *ParquetWriterOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			o.Metadata[k] = v
		}
	}
}

// ParseCompression resolves a codec name: snappy, gzip, zstd or brotli.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	default:
		return 0, fmt.Errorf("unknown parquet compression %q", name)
	}
}

func (o ParquetWriterOptions) withDefaults() ParquetWriterOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultParquetBatch
	}
	if o.RowGroupSize <= 0 {
		o.RowGroupSize = defaultParquetRowGroup
	}
	if o.Compression == compress.Codecs.Uncompressed {
		o.Compression = compress.Codecs.Snappy
	}
	return o
}

// ParquetWriter implements goingest.DataSink for Parquet output.
type ParquetWriter struct {
	mu      sync.Mutex
	out     *onceCloser
	mem     memory.Allocator
	opts    ParquetWriterOptions
	file    *pqarrow.FileWriter // Nil until the schema is fixed
	schema  *arrow.Schema
	columns []string
	pending []goingest.Record
	stats   ParquetWriterStats
	err     error // First failure; every later call returns it
	closed  bool
}

// NewParquetWriter creates a Parquet writer on w. Closing the writer closes w when it
// is an io.Closer.
func NewParquetWriter(w io.Writer, opts ...WriterOption) (*ParquetWriter, error) {
	if w == nil {
		return nil, &ParquetWriterError{Op: "open", Err: errors.New("nil output")}
	}
	var o ParquetWriterOptions
	for _, opt := range opts {
		opt(&o)
	}
	o = o.withDefaults()

	return &ParquetWriter{
		out:     &onceCloser{w: w},
		mem:     memory.NewGoAllocator(),
		opts:    o,
		columns: o.FieldOrder,
		pending: make([]goingest.Record, 0, o.BatchSize),
		stats:   ParquetWriterStats{EmptyCells: make(map[string]int64)},
	}, nil
}

// Write implements the DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record goingest.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: errors.New("writer is closed")}
	}
	if p.err != nil {
		return p.err
	}

	p.pending = append(p.pending, record)
	if int64(len(p.pending)) >= p.opts.BatchSize {
		return p.flushUnsafe()
	}
	return nil
}

// Flush implements the DataSink interface.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	return p.flushUnsafe()
}

// Close writes the pending batch and the file footer, then closes the output.
// Repeated calls are no-ops.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	err := p.flushUnsafe()
	if err == nil && p.file == nil && len(p.columns) > 0 {
		err = p.fail(p.openUnsafe(nil))
	}
	if p.file != nil {
		if cerr := p.file.Close(); cerr != nil && err == nil {
			err = &ParquetWriterError{Op: "close_writer", Err: cerr}
		}
	}
	if cerr := p.out.Close(); cerr != nil && err == nil {
		err = &ParquetWriterError{Op: "close_output", Err: cerr}
	}
	return err
}

// Stats returns a copy of the write statistics.
func (p *ParquetWriter) Stats() ParquetWriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.stats
	out.EmptyCells = make(map[string]int64, len(p.stats.EmptyCells))
	for k, v := range p.stats.EmptyCells {
		out.EmptyCells[k] = v
	}
	return out
}

// flushUnsafe encodes the pending records as one Arrow record and hands it to the
// file writer, which splits row groups at RowGroupSize (must hold mutex).
func (p *ParquetWriter) flushUnsafe() error {
	if p.err != nil {
		return p.err
	}
	if len(p.pending) == 0 {
		return nil
	}
	start := time.Now()

	if p.file == nil {
		if err := p.openUnsafe(p.pending); err != nil {
			return p.fail(err)
		}
	}
	rec, err := p.encodeUnsafe(p.pending)
	if err != nil {
		return p.fail(err)
	}
	defer rec.Release()

	if err := p.file.Write(rec); err != nil {
		return p.fail(&ParquetWriterError{Op: "write_batch", Err: err})
	}

	p.stats.RowsWritten += int64(len(p.pending))
	p.stats.Batches++
	p.stats.LastFlushTime = time.Now()
	p.stats.FlushDuration += time.Since(start)
	p.pending = p.pending[:0]
	return nil
}

func (p *ParquetWriter) fail(err error) error {
	if err != nil {
		p.err = err
	}
	return err
}

// openUnsafe fixes the schema from batch and starts the file. An empty batch gives
// every column the string type.
func (p *ParquetWriter) openUnsafe(batch []goingest.Record) error {
	if len(p.columns) == 0 {
		seen := make(map[string]bool)
		for _, record := range batch {
			for k := range record {
				if !seen[k] {
					seen[k] = true
					p.columns = append(p.columns, k)
				}
			}
		}
		sort.Strings(p.columns)
	}

	fields := make([]arrow.Field, len(p.columns))
	for i, name := range p.columns {
		t, err := columnType(batch, name)
		if err != nil {
			return &ParquetWriterError{Op: "schema", Err: fmt.Errorf("field %s: %w", name, err)}
		}
		fields[i] = arrow.Field{Name: name, Type: t, Nullable: true}
	}
	var md *arrow.Metadata
	if len(p.opts.Metadata) > 0 {
		m := arrow.MetadataFrom(p.opts.Metadata)
		md = &m
	}
	p.schema = arrow.NewSchema(fields, md)

	props := parquet.NewWriterProperties(
		parquet.WithAllocator(p.mem),
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	file, err := pqarrow.NewFileWriter(p.schema, p.out, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: err}
	}
	p.file = file
	return nil
}

// encodeUnsafe builds one Arrow record from batch. Builder panics on values the
// column cannot hold are returned as errors.
func (p *ParquetWriter) encodeUnsafe(batch []goingest.Record) (rec arrow.Record, err error) {
	b := array.NewRecordBuilder(p.mem, p.schema)
	defer b.Release()
	defer func() {
		if r := recover(); r != nil {
			err = &ParquetWriterError{Op: "write_batch", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	for _, record := range batch {
		for i, name := range p.columns {
			col := b.Field(i)
			if !appendCell(col, record[name]) {
				col.AppendNull()
				p.stats.EmptyCells[name]++
			}
		}
	}
	return b.NewRecord(), nil
}

// appendCell appends v to col and reports whether it fit. Nil never fits.
func appendCell(col array.Builder, v interface{}) bool {
	if v == nil {
		return false
	}
	switch col := col.(type) {
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if ok {
			col.Append(x)
		}
		return ok
	case *array.Int64Builder:
		if !transform.IsInteger(v) {
			return false
		}
		n, err := transform.ToInt(v)
		if err != nil {
			return false
		}
		col.Append(n)
	case *array.Float64Builder:
		if !transform.IsNumber(v) {
			return false
		}
		f, err := transform.ToFloat(v)
		if err != nil {
			return false
		}
		col.Append(f)
	case *array.StringBuilder:
		col.Append(transform.Stringify(v))
	case *array.BinaryBuilder:
		x, ok := v.([]byte)
		if ok {
			col.Append(x)
		}
		return ok
	case *array.TimestampBuilder:
		x, ok := v.(time.Time)
		if ok {
			col.Append(arrow.Timestamp(x.UnixMicro()))
		}
		return ok
	default:
		return false
	}
	return true
}

// columnType settles one Arrow type for the non-null values of a column.
func columnType(batch []goingest.Record, name string) (arrow.DataType, error) {
	var t arrow.DataType
	for _, record := range batch {
		v := record[name]
		if v == nil {
			continue
		}
		next, err := cellType(v)
		if err != nil {
			return nil, err
		}
		switch {
		case t == nil || arrow.TypeEqual(t, next):
			t = next
		case isNumeric(t) && isNumeric(next):
			t = arrow.PrimitiveTypes.Float64
		default:
			return arrow.BinaryTypes.String, nil
		}
	}
	if t == nil {
		return arrow.BinaryTypes.String, nil
	}
	return t, nil
}

func cellType(v interface{}) (arrow.DataType, error) {
	switch v.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case string:
		return arrow.BinaryTypes.String, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case []byte:
		return arrow.BinaryTypes.Binary, nil
	}
	switch {
	case transform.IsInteger(v):
		return arrow.PrimitiveTypes.Int64, nil
	case transform.IsFloat(v):
		return arrow.PrimitiveTypes.Float64, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func isNumeric(t arrow.DataType) bool {
	return t.ID() == arrow.INT64 || t.ID() == arrow.FLOAT64
}

// onceCloser lets the file writer and ParquetWriter.Close both close the output.
type onceCloser struct {
	w    io.Writer
	once sync.Once
	err  error
}

func (o *onceCloser) Write(b []byte) (int, error) {
	return o.w.Write(b)
}

func (o *onceCloser) Close() error {
	o.once.Do(func() {
		if c, ok := o.w.(io.Closer); ok {
			o.err = c.Close()
		}
	})
	return o.err
}
