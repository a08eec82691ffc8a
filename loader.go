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

package goingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ErrNoData signals that a source produced neither a header nor a single record.
// A run treats it as a clean abort, not as a failure.
var ErrNoData = errors.New("no data loaded")

// MissingColumnsError reports schema columns that the source does not provide.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("source is missing schema columns: %s", strings.Join(e.Columns, ", "))
}

// LoadError wraps structured error information for Load.
type LoadError struct {
	Op  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadStats describes what Load read and what it discarded.
type LoadStats struct {
	RecordsRead int
	// Dropped lists source columns that are not part of the schema.
	Dropped  []string
	Duration time.Duration
}

// Load drains src into a Table restricted to the given columns.
//
// Rows receive dense source indices in read order. The table keeps the source's own
// column order when the source exposes headers and the requested order otherwise.
// Columns the source provides beyond the requested set are dropped and reported in
// LoadStats. A requested column the source does not provide yields a
// *MissingColumnsError. A source with no header and no records yields ErrNoData.
func Load(ctx context.Context, src DataSource, columns []string) (*Table, LoadStats, error) {
	start := time.Now()
	var stats LoadStats

	var header []string
	if hs, ok := src.(HeaderSource); ok {
		header = hs.Headers()
	}
	headed := len(header) > 0

	var records []Record
	for {
		select {
		case <-ctx.Done():
			return nil, stats, &LoadError{Op: "read", Err: ctx.Err()}
		default:
		}

		record, err := src.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, &LoadError{Op: "read", Err: err}
		}
		records = append(records, record)
	}
	stats.RecordsRead = len(records)

	if len(header) == 0 {
		if len(records) == 0 {
			return nil, stats, ErrNoData
		}
		header = observedColumns(records)
	}

	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}
	present := make(map[string]bool, len(header))
	var ordered []string
	for _, h := range header {
		present[h] = true
		if wanted[h] {
			ordered = append(ordered, h)
		} else if h != SourceIndexField {
			stats.Dropped = append(stats.Dropped, h)
		}
	}

	var missing []string
	for _, c := range columns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, stats, &MissingColumnsError{Columns: missing}
	}
	if !headed {
		ordered = append([]string(nil), columns...)
	}

	table := &Table{Columns: ordered, Rows: make([]Row, 0, len(records))}
	for i, record := range records {
		values := make(Record, len(ordered))
		for _, c := range ordered {
			values[c] = record[c]
		}
		table.Rows = append(table.Rows, Row{SourceIndex: i, Values: values})
	}

	stats.Duration = time.Since(start)
	return table, stats, nil
}

// observedColumns returns the union of record keys in first-seen order, sorting the
// keys each record introduces.
func observedColumns(records []Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		var fresh []string
		for k := range r {
			if !seen[k] {
				seen[k] = true
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		out = append(out, fresh...)
	}
	return out
}
