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
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/goingest"
)

func TestInsertStatement(t *testing.T) {
	tests := []struct {
		name     string
		opts     PostgresWriterOptions
		rows     int
		expected string
	}{
		{
			name:     "single row",
			opts:     PostgresWriterOptions{Table: "people"},
			rows:     1,
			expected: `INSERT INTO "people" ("id", "age") VALUES ($1, $2)`,
		},
		{
			name:     "batch numbers parameters across rows",
			opts:     PostgresWriterOptions{Table: "people"},
			rows:     3,
			expected: `INSERT INTO "people" ("id", "age") VALUES ($1, $2), ($3, $4), ($5, $6)`,
		},
		{
			name: "ignore conflicts",
			opts: PostgresWriterOptions{
				Table:           "public.people",
				Conflict:        ConflictIgnore,
				ConflictColumns: []string{"id"},
			},
			rows:     1,
			expected: `INSERT INTO "public"."people" ("id", "age") VALUES ($1, $2) ON CONFLICT ("id") DO NOTHING`,
		},
		{
			name: "update on conflict",
			opts: PostgresWriterOptions{
				Table:           "people",
				Conflict:        ConflictUpdate,
				ConflictColumns: []string{"id"},
				UpdateColumns:   []string{"age"},
			},
			rows:     2,
			expected: `INSERT INTO "people" ("id", "age") VALUES ($1, $2), ($3, $4) ON CONFLICT ("id") DO UPDATE SET "age" = EXCLUDED."age"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, insertStatement(&tt.opts, []string{"id", "age"}, tt.rows))
		})
	}
}

func TestVerifyStatement(t *testing.T) {
	assert.Equal(t, `SELECT * FROM "people" LIMIT 0`, verifyStatement("people", nil))
	assert.Equal(t, `SELECT "id", "source index" FROM "audit"."runs" LIMIT 0`,
		verifyStatement("audit.runs", []string{"id", "source index"}))
}

func TestRowsPerStatement(t *testing.T) {
	assert.Equal(t, 1000, rowsPerStatement(1000, 4))
	assert.Equal(t, 65535/100, rowsPerStatement(5000, 100), "capped by the bind parameter limit")
	assert.Equal(t, 1, rowsPerStatement(10, 70000))
	assert.Equal(t, 1, rowsPerStatement(0, 0))
}

func TestPostgresWriter_ValidateOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []PostgresWriterOption
		want string
	}{
		{"missing dsn", []PostgresWriterOption{WithTableName("people")}, "dsn is required"},
		{"missing table", []PostgresWriterOption{WithPostgresDSN("postgres://localhost/db")}, "table name is required"},
		{
			"ignore without conflict columns",
			[]PostgresWriterOption{
				WithPostgresDSN("postgres://localhost/db"), WithTableName("people"),
				WithConflictResolution(ConflictIgnore, nil, nil),
			},
			"conflict columns required",
		},
		{
			"update without update columns",
			[]PostgresWriterOption{
				WithPostgresDSN("postgres://localhost/db"), WithTableName("people"),
				WithConflictResolution(ConflictUpdate, []string{"id"}, nil),
			},
			"update columns required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPostgresWriter(context.Background(), tt.opts...)
			var pgErr *PostgresWriterError
			require.ErrorAs(t, err, &pgErr)
			assert.Equal(t, "validate", pgErr.Op)
			assert.Contains(t, pgErr.Error(), tt.want)
		})
	}
}

func TestPostgresWriterOptions(t *testing.T) {
	o := &PostgresWriterOptions{}
	for _, opt := range []PostgresWriterOption{
		WithTransactionMode(true),
		WithVerify(true),
		WithPostgresQueryTimeout(5 * time.Second),
		WithPostgresConnectionPool(4, 2, time.Hour, 0),
	} {
		opt(o)
	}
	o.withDefaults()

	assert.True(t, o.Transaction)
	assert.True(t, o.Verify)
	assert.Equal(t, 5*time.Second, o.QueryTimeout)
	assert.Equal(t, PostgresPool{MaxOpen: 4, MaxIdle: 2, MaxLifetime: time.Hour, MaxIdleTime: time.Minute}, o.Pool)
	assert.Equal(t, 1000, o.BatchSize)
}

func TestPostgresWriter_Defaults(t *testing.T) {
	o := (&PostgresWriterOptions{}).withDefaults()
	assert.Equal(t, 1000, o.BatchSize)
	assert.Equal(t, 30*time.Second, o.QueryTimeout)
	assert.Equal(t, PostgresPool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 5 * time.Minute, MaxIdleTime: time.Minute}, o.Pool)
	assert.False(t, o.Transaction)
}

func TestParseConflictResolution(t *testing.T) {
	for name, want := range map[string]ConflictResolution{
		"":       ConflictError,
		"error":  ConflictError,
		"Ignore": ConflictIgnore,
		"update": ConflictUpdate,
	} {
		got, err := ParseConflictResolution(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseConflictResolution("merge")
	assert.Error(t, err)
}

func TestRowValues(t *testing.T) {
	when := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	record := goingest.Record{
		"id": int32(7), "score": float32(1.5), "name": "x", "source_index": 3,
		"seen": when, "flags": []string{"a"},
	}
	values := rowValues(record, []string{"id", "score", "name", "missing", "source_index", "seen", "flags"})
	assert.Equal(t, []interface{}{int64(7), float64(1.5), "x", nil, int64(3), when, "[a]"}, values)
}

func TestDescribeInsertError(t *testing.T) {
	err := describeInsertError(&pq.Error{Code: "23505", Constraint: "people_pkey", Message: "duplicate key"})
	assert.Contains(t, err.Error(), "unique_violation (constraint people_pkey)")
	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)

	err = describeInsertError(&pq.Error{Code: "42703", Message: "column does not exist"})
	assert.Contains(t, err.Error(), "undefined_column: ")

	plain := fmt.Errorf("connection reset")
	assert.Same(t, plain, describeInsertError(plain))
}
