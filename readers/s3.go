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

package readers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/location"
)

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "get_object", "read")
	Key string // Object key being read
	Err error  // Underlying error
}

func (e *S3ReaderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 reader %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderStats holds statistics about the S3 reader's performance
type S3ReaderStats struct {
	RecordsRead   int64         // Total records read from the object
	ContentLength int64         // Object size reported by S3
	LastModified  time.Time     // Object modification time
	ReadDuration  time.Duration // Total time spent reading
}

// GetObjectAPI is the part of *s3.Client the reader uses.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ReaderOptions configures the S3 reader behavior
type S3ReaderOptions struct {
	Bucket string              // S3 bucket name
	Key    string              // Object key; the extension selects the format
	AWS    location.AWSOptions // Client configuration when Client is nil
	Client GetObjectAPI        // Optional preconfigured client
	CSV    []ReaderOptionCSV   // Options for .csv objects
}

// ReaderOptionS3 represents a configuration function for S3Reader
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Object(bucket, key string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Bucket = bucket
		opts.Key = key
	}
}

func WithS3AWS(awsOpts location.AWSOptions) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.AWS = awsOpts
	}
}

func WithS3Client(client GetObjectAPI) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Client = client
	}
}

func WithS3CSVOptions(csvOpts ...ReaderOptionCSV) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.CSV = append(opts.CSV, csvOpts...)
	}
}

// S3Reader implements goingest.DataSource for a single CSV, JSON-lines or Parquet object in S3.
type S3Reader struct {
	inner goingest.DataSource
	key   string
	stats S3ReaderStats
	mu    sync.Mutex
}

// NewS3Reader fetches the object and opens a reader for its format.
func NewS3Reader(ctx context.Context, options ...ReaderOptionS3) (*S3Reader, error) {
	var opts S3ReaderOptions
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" || opts.Key == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket and key are required")}
	}
	format, err := formatForKey(opts.Key)
	if err != nil {
		return nil, &S3ReaderError{Op: "validate_options", Key: opts.Key, Err: err}
	}

	client := opts.Client
	if client == nil {
		c, err := location.NewS3Client(ctx, opts.AWS)
		if err != nil {
			return nil, &S3ReaderError{Op: "create_client", Err: err}
		}
		client = c
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(opts.Bucket),
		Key:    aws.String(opts.Key),
	})
	if err != nil {
		return nil, &S3ReaderError{Op: "get_object", Key: opts.Key, Err: err}
	}

	reader := &S3Reader{key: opts.Key}
	if out.ContentLength != nil {
		reader.stats.ContentLength = *out.ContentLength
	}
	if out.LastModified != nil {
		reader.stats.LastModified = *out.LastModified
	}

	switch format {
	case formatCSV:
		inner, err := NewCSVReader(out.Body, opts.CSV...)
		if err != nil {
			out.Body.Close()
			return nil, &S3ReaderError{Op: "open", Key: opts.Key, Err: err}
		}
		reader.inner = inner
	case formatParquet:
		// Parquet needs random access to the footer, so the object is buffered.
		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return nil, &S3ReaderError{Op: "read_body", Key: opts.Key, Err: err}
		}
		inner, err := NewParquetReader(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, &S3ReaderError{Op: "open", Key: opts.Key, Err: err}
		}
		reader.inner = inner
	default:
		reader.inner = NewJSONReader(out.Body)
	}
	return reader, nil
}

// Headers returns the header of CSV and Parquet objects; JSON-lines objects have none.
func (s *S3Reader) Headers() []string {
	if h, ok := s.inner.(goingest.HeaderSource); ok {
		return h.Headers()
	}
	return nil
}

// Read implements the goingest.DataSource interface
func (s *S3Reader) Read(ctx context.Context) (goingest.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { s.stats.ReadDuration += time.Since(start) }()

	record, err := s.inner.Read(ctx)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &S3ReaderError{Op: "read_record", Key: s.key, Err: err}
	}
	s.stats.RecordsRead++
	return record, nil
}

// Close implements the goingest.DataSource interface
func (s *S3Reader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}

// Stats returns S3 reader performance statistics
func (s *S3Reader) Stats() S3ReaderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

type inputFormat int

const (
	formatCSV inputFormat = iota
	formatJSONLines
	formatParquet
)

// formatForKey picks the input format from a file name or object key.
func formatForKey(key string) (inputFormat, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return formatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return formatJSONLines, nil
	case ".parquet":
		return formatParquet, nil
	}
	return 0, fmt.Errorf("unsupported input format %q", path.Ext(key))
}
