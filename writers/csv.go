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

package writers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aaronlmathis/goingest"
)

// This file implements the delimited-text sink. It serves both the retained rows of
// a run and the CSV audit logs, so the column set is usually fixed up front and
// records that lack a column get an empty cell.

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds CSV write statistics.
type CSVWriterStats struct {
	RowsWritten   int64
	Flushes       int64
	FlushDuration time.Duration
	LastFlushTime time.Time
	EmptyCells    map[string]int64 // Absent or nil values per column
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma     rune
	UseCRLF   bool
	Headers   []string // Column order; defaults to the first record's sorted keys
	BatchSize int      // Rows rendered before they are handed to the encoder
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

// WithHeaders fixes the columns and their order. The header line is written even
// when no record follows.
func WithHeaders(headers []string) WriterOptionCSV {
	return func(o *CSVWriterOptions) { o.Headers = append([]string(nil), headers...) }
}

func WithComma(delim rune) WriterOptionCSV {
	return func(o *CSVWriterOptions) { o.Comma = delim }
}

func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(o *CSVWriterOptions) { o.BatchSize = size }
}

// WithUseCRLF ends lines with \r\n.
func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(o *CSVWriterOptions) { o.UseCRLF = useCRLF }
}

// CSVWriter implements DataSink for CSV output.
type CSVWriter struct {
	mu      sync.Mutex
	enc     *csv.Writer
	dst     io.Closer
	batch   int
	columns []string
	rows    [][]string
	header  bool // Header line written
	stats   CSVWriterStats
	err     error // First encoder failure; every later call returns it
	closed  bool
}

// NewCSVWriter creates a CSV writer on w. Closing the writer closes w.
func NewCSVWriter(w io.WriteCloser, opts ...WriterOptionCSV) (*CSVWriter, error) {
	o := CSVWriterOptions{Comma: ','}
	for _, opt := range opts {
		opt(&o)
	}

	if o.Comma == '"' || o.Comma == '\r' || o.Comma == '\n' {
		return nil, &CSVWriterError{Op: "open", Err: fmt.Errorf("invalid delimiter %q", o.Comma)}
	}
	enc := csv.NewWriter(w)
	enc.Comma = o.Comma
	enc.UseCRLF = o.UseCRLF

	return &CSVWriter{
		enc:     enc,
		dst:     w,
		batch:   max(o.BatchSize, 1),
		columns: o.Headers,
		stats:   CSVWriterStats{EmptyCells: make(map[string]int64)},
	}, nil
}

// Write implements the DataSink interface.
func (c *CSVWriter) Write(ctx context.Context, record goingest.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &CSVWriterError{Op: "write", Err: errors.New("writer is closed")}
	}
	if c.err != nil {
		return c.err
	}

	if len(c.columns) == 0 {
		for k := range record {
			c.columns = append(c.columns, k)
		}
		sort.Strings(c.columns)
	}

	row := make([]string, len(c.columns))
	for i, col := range c.columns {
		v := record[col]
		if v == nil {
			c.stats.EmptyCells[col]++
		}
		row[i] = csvCell(v)
	}
	c.rows = append(c.rows, row)

	if len(c.rows) >= c.batch {
		return c.drainUnsafe("flush_batch")
	}
	return nil
}

// Flush implements the DataSink interface.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	return c.drainUnsafe("flush")
}

// Close flushes and closes the destination. Repeated calls are no-ops.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	err := c.drainUnsafe("flush")
	if cerr := c.dst.Close(); cerr != nil && err == nil {
		err = &CSVWriterError{Op: "close", Err: cerr}
	}
	return err
}

// Stats returns a copy of the write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.EmptyCells = make(map[string]int64, len(c.stats.EmptyCells))
	for k, v := range c.stats.EmptyCells {
		out.EmptyCells[k] = v
	}
	return out
}

// drainUnsafe writes the header if it is still due, then the rendered rows, and
// flushes the encoder (must hold mutex).
func (c *CSVWriter) drainUnsafe(op string) error {
	if c.err != nil {
		return c.err
	}
	start := time.Now()

	if !c.header && len(c.columns) > 0 {
		if err := c.enc.Write(c.columns); err != nil {
			return c.fail("write_header", err)
		}
		c.header = true
	}
	if err := c.enc.WriteAll(c.rows); err != nil {
		return c.fail(op, err)
	}

	c.stats.RowsWritten += int64(len(c.rows))
	c.stats.Flushes++
	c.stats.LastFlushTime = time.Now()
	c.stats.FlushDuration += time.Since(start)
	c.rows = c.rows[:0]
	return nil
}

func (c *CSVWriter) fail(op string, err error) error {
	c.err = &CSVWriterError{Op: op, Err: err}
	return c.err
}

// csvCell renders one value. Floats never use exponent notation and nil is empty.
func csvCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
