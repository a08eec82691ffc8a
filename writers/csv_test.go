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
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goingest"
)

// failingDst records output until writeErr is set.
type failingDst struct {
	bytes.Buffer
	writeErr error
	closed   bool
}

func (f *failingDst) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.Buffer.Write(p)
}

func (f *failingDst) Close() error {
	f.closed = true
	return nil
}

func TestCSVWriter_RetainedTable(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst, WithHeaders([]string{"id", "age", goingest.SourceIndexField}))
	require.NoError(t, err)

	table := &goingest.Table{
		Columns: []string{"id", "age"},
		Rows: []goingest.Row{
			{SourceIndex: 0, Values: goingest.Record{"id": 1, "age": 30}},
			{SourceIndex: 2, Values: goingest.Record{"id": 3, "age": nil}},
		},
	}
	require.NoError(t, goingest.WriteTable(context.Background(), w, table))
	require.NoError(t, w.Close())

	assert.Equal(t, "id,age,source_index\n1,30,0\n3,,2\n", dst.String())
	assert.True(t, dst.closed)
	assert.Equal(t, int64(1), w.Stats().EmptyCells["age"])
}

func TestCSVWriter_AuditUnionHeader(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst, WithHeaders([]string{"timestamp", "message", "log_type", "column_name", "source_index"}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, goingest.Record{
		"timestamp": "2025-06-01 10:00:00.000", "message": "run started", "log_type": "EVENT",
	}))
	require.NoError(t, w.Write(ctx, goingest.Record{
		"timestamp": "2025-06-01 10:00:00.001", "message": "age: 300 above max 120, row rejected",
		"log_type": "INGEST", "column_name": "age", "source_index": 4,
	}))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSuffix(dst.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,message,log_type,column_name,source_index", lines[0])
	assert.Equal(t, "2025-06-01 10:00:00.000,run started,EVENT,,", lines[1])
	assert.Equal(t, `2025-06-01 10:00:00.001,"age: 300 above max 120, row rejected",INGEST,age,4`, lines[2])

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.RowsWritten)
	assert.Equal(t, int64(1), stats.EmptyCells["column_name"])
	assert.Equal(t, int64(1), stats.EmptyCells["source_index"])
}

func TestCSVWriter_HeaderOnly(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst, WithHeaders([]string{"id", "age"}))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "id,age\n", dst.String())
}

func TestCSVWriter_ColumnsFromFirstRecord(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, goingest.Record{"name": "Alice", "id": 1}))
	require.NoError(t, w.Write(ctx, goingest.Record{"id": 2, "extra": true}))
	require.NoError(t, w.Close())

	assert.Equal(t, "id,name\n1,Alice\n2,\n", dst.String(), "keys outside the first record are not written")
}

func TestCSVWriter_NoRecordsNoColumns(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Empty(t, dst.String())
}

func TestCSVWriter_Dialect(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst, WithHeaders([]string{"a", "b"}), WithComma(';'), WithUseCRLF(true))
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), goingest.Record{"a": 1, "b": "x;y"}))
	require.NoError(t, w.Close())
	assert.Equal(t, "a;b\r\n1;\"x;y\"\r\n", dst.String())
}

func TestCSVWriter_InvalidDelimiter(t *testing.T) {
	_, err := NewCSVWriter(&failingDst{}, WithComma('"'))
	var csvErr *CSVWriterError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "open", csvErr.Op)
}

func TestCSVWriter_Batching(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst, WithHeaders([]string{"id"}), WithCSVBatchSize(2))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, goingest.Record{"id": 1}))
	assert.Empty(t, dst.String(), "first row is held")

	require.NoError(t, w.Write(ctx, goingest.Record{"id": 2}))
	assert.Equal(t, "id\n1\n2\n", dst.String())
	assert.Equal(t, int64(1), w.Stats().Flushes)

	require.NoError(t, w.Write(ctx, goingest.Record{"id": 3}))
	require.NoError(t, w.Flush())
	assert.Equal(t, "id\n1\n2\n3\n", dst.String())

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.RowsWritten)
	assert.Equal(t, int64(2), stats.Flushes)
	assert.False(t, stats.LastFlushTime.IsZero())
}

func TestCSVWriter_FailureIsSticky(t *testing.T) {
	diskFull := errors.New("no space left on device")
	dst := &failingDst{writeErr: diskFull}
	w, err := NewCSVWriter(dst, WithHeaders([]string{"id"}))
	require.NoError(t, err)

	ctx := context.Background()
	err = w.Write(ctx, goingest.Record{"id": 1})
	var csvErr *CSVWriterError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "flush_batch", csvErr.Op)
	assert.ErrorIs(t, err, diskFull)

	dst.writeErr = nil
	assert.ErrorIs(t, w.Write(ctx, goingest.Record{"id": 2}), diskFull)
	assert.ErrorIs(t, w.Close(), diskFull)
	assert.True(t, dst.closed, "the destination is closed even after a failure")
}

func TestCSVWriter_AfterClose(t *testing.T) {
	w, err := NewCSVWriter(&failingDst{}, WithHeaders([]string{"id"}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, w.Close())
	require.NoError(t, w.Flush())

	err = w.Write(context.Background(), goingest.Record{"id": 1})
	var csvErr *CSVWriterError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "write", csvErr.Op)
}

func TestCSVWriter_ConcurrentWrites(t *testing.T) {
	dst := &failingDst{}
	w, err := NewCSVWriter(dst, WithHeaders([]string{"worker", "n"}), WithCSVBatchSize(7))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for n := 0; n < 25; n++ {
				assert.NoError(t, w.Write(context.Background(), goingest.Record{"worker": worker, "n": n}))
			}
		}(worker)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	assert.Equal(t, 101, strings.Count(dst.String(), "\n"))
	assert.Equal(t, int64(100), w.Stats().RowsWritten)
}

func TestCSVCell(t *testing.T) {
	when := time.Date(2025, 6, 1, 10, 0, 0, 500, time.UTC)
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"CA", "CA"},
		{42, "42"},
		{int64(-7), "-7"},
		{true, "true"},
		{95.5, "95.5"},
		{1e21, "1000000000000000000000"},
		{float32(0.1), "0.1"},
		{when, "2025-06-01T10:00:00.0000005Z"},
		{[]int{1, 2}, "[1 2]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, csvCell(tt.in), "%#v", tt.in)
	}
}
