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
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/goingest"
)

// This file implements a batching MongoDB writer. Records become documents whose
// field order follows the table's column order.

// MongoWriterError provides structured error information for MongoDB writer operations.
type MongoWriterError struct {
	Op         string // Operation that failed (e.g., "connect", "insert")
	Collection string // Collection being written when the error occurred
	Err        error  // Underlying error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoWriterStats holds statistics about the MongoDB writer's performance.
type MongoWriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	WriteDuration   time.Duration
	LastWriteTime   time.Time
	NullValueCounts map[string]int64
}

// MongoWriterOptions configures the MongoDB writer.
type MongoWriterOptions struct {
	URI        string        // MongoDB connection URI
	Database   string        // Database name
	Collection string        // Collection name
	Fields     []string      // Document field order; defaults to the first record's sorted keys
	BatchSize  int           // Documents per InsertMany call
	Timeout    time.Duration // Connect and insert timeout
	Ordered    bool          // Stop a batch at the first failed document
}

// WriterOptionMongo is a functional option for MongoWriterOptions.
type WriterOptionMongo func(*MongoWriterOptions)

func WithMongoURI(uri string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.URI = uri
	}
}

func WithMongoDatabase(database string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Collection = collection
	}
}

func WithMongoFields(fields []string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Fields = append([]string(nil), fields...)
	}
}

func WithMongoBatchSize(size int) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.BatchSize = size
	}
}

func WithMongoTimeout(timeout time.Duration) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Timeout = timeout
	}
}

func WithMongoOrdered(ordered bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Ordered = ordered
	}
}

// InsertManyAPI is the part of *mongo.Collection the writer uses.
type InsertManyAPI interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// MongoWriter implements goingest.DataSink for a MongoDB collection.
type MongoWriter struct {
	client     *mongo.Client
	collection InsertManyAPI
	opts       *MongoWriterOptions
	fields     []string
	docBuf     []interface{}
	stats      MongoWriterStats
	errorState bool
	closed     bool
	mu         sync.Mutex
}

func defaultMongoOptions() *MongoWriterOptions {
	return &MongoWriterOptions{
		URI:       "mongodb://localhost:27017",
		BatchSize: 1000,
		Timeout:   30 * time.Second,
		Ordered:   true,
	}
}

// NewMongoWriter connects to MongoDB and verifies the connection with a ping.
func NewMongoWriter(ctx context.Context, opts ...WriterOptionMongo) (*MongoWriter, error) {
	o := defaultMongoOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if err := validateMongoOptions(o); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(o.URI).SetConnectTimeout(o.Timeout)
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, &MongoWriterError{Op: "connect", Collection: o.Collection, Err: err}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, &MongoWriterError{Op: "ping", Collection: o.Collection, Err: err}
	}

	w := newMongoWriter(client.Database(o.Database).Collection(o.Collection), o)
	w.client = client
	return w, nil
}

func validateMongoOptions(o *MongoWriterOptions) error {
	if o.Database == "" {
		return &MongoWriterError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if o.Collection == "" {
		return &MongoWriterError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}
	return nil
}

func newMongoWriter(coll InsertManyAPI, o *MongoWriterOptions) *MongoWriter {
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return &MongoWriter{
		collection: coll,
		opts:       o,
		fields:     append([]string(nil), o.Fields...),
		docBuf:     make([]interface{}, 0, o.BatchSize),
		stats:      MongoWriterStats{NullValueCounts: make(map[string]int64)},
	}
}

// Write implements the goingest.DataSink interface.
func (m *MongoWriter) Write(ctx context.Context, record goingest.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &MongoWriterError{Op: "write", Collection: m.opts.Collection, Err: fmt.Errorf("writer is closed")}
	}
	if m.errorState {
		return &MongoWriterError{Op: "write", Collection: m.opts.Collection, Err: fmt.Errorf("writer is in error state")}
	}

	if len(m.fields) == 0 {
		for k := range record {
			m.fields = append(m.fields, k)
		}
		sort.Strings(m.fields)
	}

	for k, v := range record {
		if v == nil {
			m.stats.NullValueCounts[k]++
		}
	}

	m.docBuf = append(m.docBuf, toDocument(record, m.fields))
	m.stats.RecordsWritten++

	if len(m.docBuf) >= m.opts.BatchSize {
		if err := m.flushUnsafe(ctx); err != nil {
			m.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the goingest.DataSink interface.
func (m *MongoWriter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()
	if err := m.flushUnsafe(ctx); err != nil {
		m.errorState = true
		return err
	}
	return nil
}

// Close flushes pending documents and disconnects the client.
func (m *MongoWriter) Close() error {
	flushErr := m.Flush()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return flushErr
	}
	m.closed = true

	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
		defer cancel()
		if err := m.client.Disconnect(ctx); err != nil && flushErr == nil {
			return &MongoWriterError{Op: "disconnect", Collection: m.opts.Collection, Err: err}
		}
	}
	return flushErr
}

// Stats returns a copy of the current write statistics.
func (m *MongoWriter) Stats() MongoWriterStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	statsCopy := m.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(m.stats.NullValueCounts))
	for k, v := range m.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// flushUnsafe inserts the buffered documents (must hold mutex).
func (m *MongoWriter) flushUnsafe(ctx context.Context) error {
	if len(m.docBuf) == 0 {
		return nil
	}
	start := time.Now()

	insertOpts := options.InsertMany().SetOrdered(m.opts.Ordered)
	if _, err := m.collection.InsertMany(ctx, m.docBuf, insertOpts); err != nil {
		return &MongoWriterError{Op: "insert", Collection: m.opts.Collection, Err: err}
	}

	m.stats.BatchesWritten++
	m.stats.LastWriteTime = time.Now()
	m.stats.WriteDuration += time.Since(start)
	m.docBuf = m.docBuf[:0]
	return nil
}

// toDocument renders a record as an ordered BSON document. Keys missing from fields
// are appended in sorted order.
func toDocument(record goingest.Record, fields []string) bson.D {
	doc := make(bson.D, 0, len(record))
	listed := make(map[string]bool, len(fields))
	for _, f := range fields {
		listed[f] = true
		if v, ok := record[f]; ok {
			doc = append(doc, bson.E{Key: f, Value: v})
		}
	}
	var rest []string
	for k := range record {
		if !listed[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		doc = append(doc, bson.E{Key: k, Value: record[k]})
	}
	return doc
}
