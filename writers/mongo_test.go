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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/goingest"
)

type fakeCollection struct {
	batches [][]interface{}
	ordered []bool
	err     error
}

func (f *fakeCollection) InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, o := range opts {
		if o.Ordered != nil {
			f.ordered = append(f.ordered, *o.Ordered)
		}
	}
	f.batches = append(f.batches, append([]interface{}(nil), documents...))
	return &mongo.InsertManyResult{}, nil
}

func TestMongoWriter_Batches(t *testing.T) {
	coll := &fakeCollection{}
	w := newMongoWriter(coll, &MongoWriterOptions{
		Collection: "people",
		BatchSize:  2,
		Fields:     []string{"id", "age", "source_index"},
	})

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, goingest.Record{"id": 1, "age": 30, "source_index": 0}))
	require.NoError(t, w.Write(ctx, goingest.Record{"id": 2, "age": nil, "source_index": 1}))
	require.NoError(t, w.Write(ctx, goingest.Record{"id": 3, "age": 41, "source_index": 2}))
	require.Len(t, coll.batches, 1)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Len(t, coll.batches, 2)

	first := coll.batches[0][0].(bson.D)
	assert.Equal(t, bson.D{{Key: "id", Value: 1}, {Key: "age", Value: 30}, {Key: "source_index", Value: 0}}, first)

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.BatchesWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["age"])

	err := w.Write(ctx, goingest.Record{"id": 4})
	assert.Error(t, err)
}

func TestMongoWriter_InsertError(t *testing.T) {
	coll := &fakeCollection{err: errors.New("duplicate key")}
	w := newMongoWriter(coll, &MongoWriterOptions{Collection: "people", BatchSize: 1})

	err := w.Write(context.Background(), goingest.Record{"id": 1})
	var mErr *MongoWriterError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "insert", mErr.Op)
	assert.Equal(t, "mongo writer insert [people]: duplicate key", mErr.Error())

	assert.Error(t, w.Write(context.Background(), goingest.Record{"id": 2}), "writer stays in error state")
}

func TestMongoWriter_Validate(t *testing.T) {
	_, err := NewMongoWriter(context.Background(), WithMongoCollection("people"))
	var mErr *MongoWriterError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "validate", mErr.Op)
}

func TestToDocument_UnlistedKeysSorted(t *testing.T) {
	doc := toDocument(goingest.Record{"z": 1, "id": 2, "a": 3}, []string{"id"})
	assert.Equal(t, bson.D{{Key: "id", Value: 2}, {Key: "a", Value: 3}, {Key: "z", Value: 1}}, doc)
}

func TestMongoWriter_Options(t *testing.T) {
	o := defaultMongoOptions()
	for _, opt := range []WriterOptionMongo{WithMongoTimeout(5 * time.Second), WithMongoOrdered(false)} {
		opt(o)
	}
	assert.Equal(t, 5*time.Second, o.Timeout)
	assert.False(t, o.Ordered)

	coll := &fakeCollection{}
	w := newMongoWriter(coll, o)
	require.NoError(t, w.Write(context.Background(), goingest.Record{"id": 1}))
	require.NoError(t, w.Close())
	assert.Equal(t, []bool{false}, coll.ordered, "unordered inserts continue past a failed document")
}
