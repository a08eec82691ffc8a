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

// Package readers provides goingest.DataSource implementations for tabular input:
// delimited text, JSON lines, Parquet files and objects stored in S3.
package readers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/goingest"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats counts what the reader produced.
type CSVReaderStats struct {
	RecordsRead  int64
	ReadDuration time.Duration
	LastReadTime time.Time
	EmptyCells   map[string]int64 // Cells read as nil, per column
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma      rune
	Comment    rune
	LazyQuotes bool
	TrimSpace  bool
	HasHeaders bool     // The first line names the columns (default: true)
	Columns    []string // Positional names for input without a header line
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVComment(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comment = r }
}

// WithCSVHasHeaders controls whether the first line is a header. Without one the
// columns are named by WithCSVColumns, then column_1, column_2 and so on.
func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

// WithCSVColumns names the fields of headerless input by position.
func WithCSVColumns(columns []string) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Columns = append([]string(nil), columns...) }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimSpace = trim }
}

func WithCSVLazyQuotes(lazy bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.LazyQuotes = lazy }
}

// CSVReader implements DataSource for delimited text. Empty cells read as nil;
// other cells are inferred as int, float64, bool or string in that order.
type CSVReader struct {
	src     *csv.Reader
	body    io.Closer
	columns []string
	first   []string // First data line of headerless input, held back by the constructor
	stats   CSVReaderStats
}

// NewCSVReader creates a CSVReader and reads the first line, which is either the
// header or, for headerless input, held for the first Read. Input without any line
// fails with an error wrapping goingest.ErrNoData.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:      ',',
		TrimSpace:  true,
		HasHeaders: true,
	}
	for _, option := range options {
		option(&opts)
	}

	src := csv.NewReader(r)
	src.Comma = opts.Comma
	src.Comment = opts.Comment
	src.LazyQuotes = opts.LazyQuotes
	src.TrimLeadingSpace = opts.TrimSpace

	op := "read_headers"
	if !opts.HasHeaders {
		op = "read_first_line"
	}
	line, err := src.Read()
	if errors.Is(err, io.EOF) {
		err = goingest.ErrNoData
	}
	if err != nil {
		return nil, &CSVReaderError{Op: op, Err: err}
	}

	c := &CSVReader{
		src:   src,
		body:  r,
		stats: CSVReaderStats{EmptyCells: make(map[string]int64)},
	}
	if opts.HasHeaders {
		c.columns = make([]string, len(line))
		for i, name := range line {
			c.columns[i] = strings.TrimSpace(name)
		}
	} else {
		c.columns = positionalColumns(opts.Columns, len(line))
		c.first = line
	}
	return c, nil
}

// Headers returns the column names, from the header line or assigned by position.
func (c *CSVReader) Headers() []string {
	return append([]string(nil), c.columns...)
}

// Read implements the DataSource interface.
func (c *CSVReader) Read(ctx context.Context) (goingest.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CSVReaderError{Op: "read", Err: err}
	}
	start := time.Now()

	line := c.first
	c.first = nil
	if line == nil {
		var err error
		if line, err = c.src.Read(); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, &CSVReaderError{Op: "read_record", Err: err}
		}
	}

	rec := make(goingest.Record, len(line))
	for i, cell := range line {
		name := c.columns[i]
		v := inferCell(cell)
		if v == nil {
			c.stats.EmptyCells[name]++
		}
		rec[name] = v
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)
	return rec, nil
}

// Close implements the DataSource interface.
func (c *CSVReader) Close() error {
	if c.body == nil {
		return nil
	}
	return c.body.Close()
}

// Stats returns a copy of the reader statistics.
func (c *CSVReader) Stats() CSVReaderStats {
	out := c.stats
	out.EmptyCells = make(map[string]int64, len(c.stats.EmptyCells))
	for k, v := range c.stats.EmptyCells {
		out.EmptyCells[k] = v
	}
	return out
}

// positionalColumns extends names to width with column_N placeholders.
func positionalColumns(names []string, width int) []string {
	out := make([]string, width)
	for i := range out {
		if i < len(names) {
			out[i] = names[i]
		} else {
			out[i] = "column_" + strconv.Itoa(i+1)
		}
	}
	return out
}

// inferCell types one raw cell. Blank cells are nil; infinities and NaN stay text.
func inferCell(raw string) interface{} {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	if b, ok := boolWords[s]; ok {
		return b
	}
	return s
}

var boolWords = map[string]bool{
	"true": true, "True": true, "TRUE": true,
	"false": false, "False": false, "FALSE": false,
}
