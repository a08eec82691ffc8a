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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aaronlmathis/goingest"
)

// JSONWriterError wraps JSON-lines write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriterStats holds JSON write performance statistics.
type JSONWriterStats struct {
	RecordsWritten  int64
	FlushCount      int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// JSONWriterOptions configures JSON-lines output.
type JSONWriterOptions struct {
	BatchSize    int
	FlushOnWrite bool
	// Fields fixes the key order of every object. Keys not listed follow in sorted order.
	Fields []string
}

// WriterOptionJSON is a functional option.
type WriterOptionJSON func(*JSONWriterOptions)

func WithJSONBatchSize(size int) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.BatchSize = size
	}
}

func WithFlushOnWrite(flush bool) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.FlushOnWrite = flush
	}
}

// WithFields sets the key order used for every object.
func WithFields(fields []string) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.Fields = append([]string(nil), fields...)
	}
}

// JSONWriter implements DataSink for line-delimited JSON output.
type JSONWriter struct {
	writer     *bufio.Writer
	closer     io.Closer
	options    JSONWriterOptions
	pending    int
	stats      JSONWriterStats
	errorState bool
	closed     bool
	mu         sync.Mutex
}

// NewJSONWriter creates a new JSON writer. By default every record is flushed as it
// is written.
func NewJSONWriter(w io.WriteCloser, opts ...WriterOptionJSON) *JSONWriter {
	options := JSONWriterOptions{
		FlushOnWrite: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &JSONWriter{
		writer:  bufio.NewWriter(w),
		closer:  w,
		options: options,
		stats:   JSONWriterStats{NullValueCounts: make(map[string]int64)},
	}
}

// Write implements the DataSink interface.
func (j *JSONWriter) Write(ctx context.Context, record goingest.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.errorState {
		return &JSONWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	data, err := j.marshal(record)
	if err != nil {
		return &JSONWriterError{Op: "marshal", Err: err}
	}

	for k, v := range record {
		if v == nil {
			j.stats.NullValueCounts[k]++
		}
	}

	if _, err := j.writer.Write(data); err != nil {
		j.errorState = true
		return &JSONWriterError{Op: "write", Err: err}
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		j.errorState = true
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.pending++
	j.stats.RecordsWritten++

	if j.options.FlushOnWrite || (j.options.BatchSize > 0 && j.pending >= j.options.BatchSize) {
		if err := j.flushUnsafe(); err != nil {
			j.errorState = true
			return &JSONWriterError{Op: "flush", Err: err}
		}
	}
	return nil
}

// Flush implements the DataSink interface.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flushUnsafe(); err != nil {
		return &JSONWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the DataSink interface. Repeated calls are no-ops.
func (j *JSONWriter) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.closer != nil {
		if err := j.closer.Close(); err != nil {
			return &JSONWriterError{Op: "close", Err: err}
		}
	}
	return nil
}

// Stats returns write statistics.
func (j *JSONWriter) Stats() JSONWriterStats {
	j.mu.Lock()
	defer j.mu.Unlock()

	statsCopy := j.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(j.stats.NullValueCounts))
	for k, v := range j.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// flushUnsafe pushes buffered lines to the underlying writer (must hold mutex).
func (j *JSONWriter) flushUnsafe() error {
	if j.pending == 0 && j.writer.Buffered() == 0 {
		return nil
	}
	start := time.Now()
	if err := j.writer.Flush(); err != nil {
		return err
	}
	j.pending = 0
	j.stats.FlushCount++
	j.stats.LastFlushTime = time.Now()
	j.stats.FlushDuration += time.Since(start)
	return nil
}

// marshal encodes a record, honoring the configured key order.
func (j *JSONWriter) marshal(record goingest.Record) ([]byte, error) {
	if len(j.options.Fields) == 0 {
		return json.Marshal(record)
	}

	listed := make(map[string]bool, len(j.options.Fields))
	keys := make([]string, 0, len(record))
	for _, f := range j.options.Fields {
		listed[f] = true
		if _, ok := record[f]; ok {
			keys = append(keys, f)
		}
	}
	var rest []string
	for k := range record {
		if !listed[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(record[k])
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
