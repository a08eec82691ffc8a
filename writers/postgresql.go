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
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/goingest"
)

// This file implements the PostgreSQL sink. Buffered rows are sent as one multi-row
// INSERT per batch. In transaction mode every batch of a writer shares a single
// transaction that Close commits, so a failed run leaves the table untouched. The
// destination table must already exist.

// maxBindParams is the PostgreSQL limit on parameters in one statement.
const maxBindParams = 65535

// PostgresWriterError wraps PostgreSQL-specific write errors with context about the operation.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "insert", "connect", "verify")
	Err error
}

func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write statistics.
type PostgresWriterStats struct {
	RowsSent      int64            // Rows included in INSERT statements
	RowsSkipped   int64            // Rows dropped by ON CONFLICT DO NOTHING
	Statements    int64            // INSERT statements executed
	Committed     bool             // The shared transaction was committed
	ConnectTime   time.Duration    // Time to open and ping the pool
	WriteDuration time.Duration    // Time spent executing inserts
	LastWriteTime time.Time        // Completion of the last insert
	NullCells     map[string]int64 // NULL parameters per column
}

// ConflictResolution defines how to handle INSERT conflicts in PostgreSQL.
type ConflictResolution int

const (
	// ConflictError returns an error on conflict (default PostgreSQL behavior).
	ConflictError ConflictResolution = iota
	// ConflictIgnore skips conflicting rows (ON CONFLICT DO NOTHING).
	ConflictIgnore
	// ConflictUpdate overwrites conflicting rows (ON CONFLICT DO UPDATE).
	ConflictUpdate
)

// ParseConflictResolution maps a configuration name (error, ignore, update) to a
// ConflictResolution. The empty string means ConflictError.
func ParseConflictResolution(name string) (ConflictResolution, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "error":
		return ConflictError, nil
	case "ignore":
		return ConflictIgnore, nil
	case "update":
		return ConflictUpdate, nil
	}
	return ConflictError, fmt.Errorf("unknown conflict resolution %q", name)
}

// PostgresPool bounds the database/sql connection pool. Zero fields take defaults.
type PostgresPool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DSN             string
	Table           string   // Optionally schema-qualified
	Columns         []string // Insert order; defaults to the first record's sorted keys
	BatchSize       int      // Rows per INSERT, capped by the bind parameter limit
	Verify          bool     // Check the table and columns before returning from NewPostgresWriter
	Conflict        ConflictResolution
	ConflictColumns []string
	UpdateColumns   []string // Columns overwritten by ConflictUpdate
	Transaction     bool     // Hold every batch in one transaction until Close
	Pool            PostgresPool
	QueryTimeout    time.Duration // Per statement, including the connect ping
}

// PostgresWriterOption represents a configuration function for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(o *PostgresWriterOptions) { o.DSN = dsn }
}

func WithTableName(table string) PostgresWriterOption {
	return func(o *PostgresWriterOptions) { o.Table = table }
}

func WithColumns(columns []string) PostgresWriterOption {
	return func(o *PostgresWriterOptions) { o.Columns = append([]string(nil), columns...) }
}

func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(o *PostgresWriterOptions) { o.BatchSize = size }
}

// WithVerify makes NewPostgresWriter select the configured columns from the table,
// so a missing table or column fails before any row is buffered.
func WithVerify(verify bool) PostgresWriterOption {
	return func(o *PostgresWriterOptions) { o.Verify = verify }
}

// WithConflictResolution sets the conflict strategy. updateCols is used by ConflictUpdate.
func WithConflictResolution(resolution ConflictResolution, conflictCols, updateCols []string) PostgresWriterOption {
	return func(o *PostgresWriterOptions) {
		o.Conflict = resolution
		o.ConflictColumns = append([]string(nil), conflictCols...)
		o.UpdateColumns = append([]string(nil), updateCols...)
	}
}

// WithTransactionMode holds all batches in one transaction committed by Close.
func WithTransactionMode(enabled bool) PostgresWriterOption {
	return func(o *PostgresWriterOptions) { o.Transaction = enabled }
}

func WithPostgresConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) PostgresWriterOption {
	return func(o *PostgresWriterOptions) {
		o.Pool = PostgresPool{MaxOpen: maxOpen, MaxIdle: maxIdle, MaxLifetime: maxLifetime, MaxIdleTime: maxIdleTime}
	}
}

func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(o *PostgresWriterOptions) { o.QueryTimeout = timeout }
}

func (o *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
	if o.Pool.MaxOpen <= 0 {
		o.Pool.MaxOpen = 10
	}
	if o.Pool.MaxIdle <= 0 {
		o.Pool.MaxIdle = 5
	}
	if o.Pool.MaxLifetime <= 0 {
		o.Pool.MaxLifetime = 5 * time.Minute
	}
	if o.Pool.MaxIdleTime <= 0 {
		o.Pool.MaxIdleTime = time.Minute
	}
	return o
}

func (o *PostgresWriterOptions) validate() error {
	switch {
	case o.DSN == "":
		return errors.New("dsn is required")
	case o.Table == "":
		return errors.New("table name is required")
	case o.Conflict != ConflictError && len(o.ConflictColumns) == 0:
		return errors.New("conflict columns required for conflict resolution")
	case o.Conflict == ConflictUpdate && len(o.UpdateColumns) == 0:
		return errors.New("update columns required for conflict update resolution")
	}
	return nil
}

// PostgresWriter implements goingest.DataSink for a PostgreSQL table.
type PostgresWriter struct {
	mu      sync.Mutex
	db      *sql.DB
	tx      *sql.Tx
	opts    PostgresWriterOptions
	columns []string
	pending [][]interface{}
	stats   PostgresWriterStats
	failed  bool
	closed  bool
}

// NewPostgresWriter opens the connection pool and pings the server.
func NewPostgresWriter(ctx context.Context, opts ...PostgresWriterOption) (*PostgresWriter, error) {
	o := &PostgresWriterOptions{}
	for _, opt := range opts {
		opt(o)
	}
	o.withDefaults()
	if err := o.validate(); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	start := time.Now()
	db, err := sql.Open("postgres", o.DSN)
	if err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(o.Pool.MaxOpen)
	db.SetMaxIdleConns(o.Pool.MaxIdle)
	db.SetConnMaxLifetime(o.Pool.MaxLifetime)
	db.SetConnMaxIdleTime(o.Pool.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, o.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}

	if o.Verify {
		rows, err := db.QueryContext(pingCtx, verifyStatement(o.Table, o.Columns))
		if err == nil {
			err = rows.Close()
		}
		if err != nil {
			db.Close()
			return nil, &PostgresWriterError{Op: "verify", Err: fmt.Errorf("table %s: %w", o.Table, err)}
		}
	}

	return &PostgresWriter{
		db:      db,
		opts:    *o,
		columns: append([]string(nil), o.Columns...),
		pending: make([][]interface{}, 0, o.BatchSize),
		stats: PostgresWriterStats{
			ConnectTime: time.Since(start),
			NullCells:   make(map[string]int64),
		},
	}, nil
}

// Write implements the goingest.DataSink interface.
func (w *PostgresWriter) Write(ctx context.Context, record goingest.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &PostgresWriterError{Op: "write", Err: errors.New("writer is closed")}
	}
	if w.failed {
		return &PostgresWriterError{Op: "write", Err: errors.New("writer is in error state")}
	}

	if len(w.columns) == 0 {
		for k := range record {
			w.columns = append(w.columns, k)
		}
		sort.Strings(w.columns)
	}

	row := rowValues(record, w.columns)
	for i, v := range row {
		if v == nil {
			w.stats.NullCells[w.columns[i]]++
		}
	}
	w.pending = append(w.pending, row)

	if len(w.pending) >= w.opts.BatchSize {
		if err := w.insertPendingUnsafe(ctx); err != nil {
			w.failed = true
			return err
		}
	}
	return nil
}

// Flush implements the goingest.DataSink interface. In transaction mode the rows
// are sent but stay uncommitted until Close.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.insertPendingUnsafe(context.Background()); err != nil {
		w.failed = true
		return err
	}
	return nil
}

// Close sends pending rows, settles the transaction and closes the pool. A writer
// that failed earlier rolls its transaction back and reports it.
func (w *PostgresWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if !w.failed {
		if err = w.insertPendingUnsafe(context.Background()); err != nil {
			w.failed = true
		}
	}

	if w.tx != nil {
		if w.failed {
			w.tx.Rollback()
			if err == nil {
				err = &PostgresWriterError{Op: "commit", Err: errors.New("transaction rolled back after a failed insert")}
			}
		} else if cerr := w.tx.Commit(); cerr != nil {
			err = &PostgresWriterError{Op: "commit", Err: cerr}
		} else {
			w.stats.Committed = true
		}
		w.tx = nil
	}

	if cerr := w.db.Close(); cerr != nil && err == nil {
		err = &PostgresWriterError{Op: "close", Err: cerr}
	}
	return err
}

// Stats returns a copy of the current write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := w.stats
	out.NullCells = make(map[string]int64, len(w.stats.NullCells))
	for k, v := range w.stats.NullCells {
		out.NullCells[k] = v
	}
	return out
}

// insertPendingUnsafe sends the buffered rows in as few statements as the bind
// parameter limit allows (must hold mutex).
func (w *PostgresWriter) insertPendingUnsafe(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	start := time.Now()

	var exec interface {
		ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	} = w.db
	if w.opts.Transaction {
		if w.tx == nil {
			// The transaction outlives this call, so it must not inherit its deadline.
			tx, err := w.db.BeginTx(context.WithoutCancel(ctx), nil)
			if err != nil {
				return &PostgresWriterError{Op: "begin", Err: err}
			}
			w.tx = tx
		}
		exec = w.tx
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.QueryTimeout)
	defer cancel()

	chunk := rowsPerStatement(w.opts.BatchSize, len(w.columns))
	for lo := 0; lo < len(w.pending); lo += chunk {
		hi := min(lo+chunk, len(w.pending))
		rows := w.pending[lo:hi]

		args := make([]interface{}, 0, len(rows)*len(w.columns))
		for _, row := range rows {
			args = append(args, row...)
		}
		res, err := exec.ExecContext(ctx, insertStatement(&w.opts, w.columns, len(rows)), args...)
		if err != nil {
			return &PostgresWriterError{Op: "insert", Err: describeInsertError(err)}
		}
		if affected, aerr := res.RowsAffected(); aerr == nil && w.opts.Conflict == ConflictIgnore {
			w.stats.RowsSkipped += int64(len(rows)) - affected
		}
		w.stats.RowsSent += int64(len(rows))
		w.stats.Statements++
	}

	w.stats.WriteDuration += time.Since(start)
	w.stats.LastWriteTime = time.Now()
	w.pending = w.pending[:0]
	return nil
}

// describeInsertError adds the server's constraint and detail to driver errors.
func describeInsertError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if pqErr.Constraint != "" {
		return fmt.Errorf("%s (constraint %s): %w", pqErr.Code.Name(), pqErr.Constraint, err)
	}
	return fmt.Errorf("%s: %w", pqErr.Code.Name(), err)
}

func rowsPerStatement(batch, columns int) int {
	if columns == 0 {
		return max(batch, 1)
	}
	return max(min(batch, maxBindParams/columns), 1)
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func quotedList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// verifyStatement selects the columns without reading a row. No columns selects *.
func verifyStatement(table string, columns []string) string {
	cols := "*"
	if len(columns) > 0 {
		cols = quotedList(columns)
	}
	return fmt.Sprintf("SELECT %s FROM %s LIMIT 0", cols, quoteTable(table))
}

// insertStatement renders a multi-row INSERT for rows tuples with the conflict clause.
func insertStatement(o *PostgresWriterOptions, columns []string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", quoteTable(o.Table), quotedList(columns))

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
	}

	switch o.Conflict {
	case ConflictIgnore:
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", quotedList(o.ConflictColumns))
	case ConflictUpdate:
		sets := make([]string, len(o.UpdateColumns))
		for i, c := range o.UpdateColumns {
			q := pq.QuoteIdentifier(c)
			sets[i] = q + " = EXCLUDED." + q
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", quotedList(o.ConflictColumns), strings.Join(sets, ", "))
	}
	return b.String()
}

func rowValues(record goingest.Record, columns []string) []interface{} {
	values := make([]interface{}, len(columns))
	for i, col := range columns {
		values[i] = driverValue(record[col])
	}
	return values
}

// driverValue narrows a cell to the types lib/pq encodes. Anything else is sent as text.
func driverValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, []byte, time.Time:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return fmt.Sprint(x)
	}
}
