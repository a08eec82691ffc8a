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

// Package goingest defines the record, row and table types shared by the validation
// engine, its readers and its writers.
//
// GoIngest validates tabular records against a declarative schema, forwards the
// surviving records to a sink and keeps an append-only audit trail of every decision.
//
// This file contains the primary interfaces for data sources and sinks.
package goingest

import (
	"context"
	"fmt"
)

// Record represents a single data record.
// Each record is a map from column names to values, supporting heterogeneous data.
type Record map[string]interface{}

// SourceIndexField is the column carrying a row's load-time ordinal in every output.
const SourceIndexField = "source_index"

// Row is a loaded record together with its immutable source index.
// The index is assigned once by Load and identifies the row in every log entry.
type Row struct {
	SourceIndex int
	Values      Record
}

// Get returns the value stored for column and whether the column is present.
func (r Row) Get(column string) (interface{}, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Record flattens the row into a record that includes SourceIndexField.
func (r Row) Record() Record {
	out := make(Record, len(r.Values)+1)
	for k, v := range r.Values {
		out[k] = v
	}
	out[SourceIndexField] = r.SourceIndex
	return out
}

// Table is a column-uniform set of rows. Columns holds the original column order.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Header returns the table columns followed by SourceIndexField.
func (t *Table) Header() []string {
	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, t.Columns...)
	return append(header, SourceIndexField)
}

// DataSource defines the interface for record extraction.
// Implementations stream records from a source (e.g., CSV, JSON lines, S3).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// HeaderSource is implemented by sources that know their column names up front.
type HeaderSource interface {
	Headers() []string
}

// DataSink defines the interface for record loading.
// Implementations write records to a destination (e.g., CSV, Parquet, PostgreSQL).
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// WriteTable hands every row of table to sink as one batch and flushes it.
// The sink is not closed.
func WriteTable(ctx context.Context, sink DataSink, table *Table) error {
	for _, row := range table.Rows {
		if err := sink.Write(ctx, row.Record()); err != nil {
			return fmt.Errorf("write row %d: %w", row.SourceIndex, err)
		}
	}
	if err := sink.Flush(); err != nil {
		return fmt.Errorf("flush sink: %w", err)
	}
	return nil
}
