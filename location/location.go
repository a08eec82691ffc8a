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

// Package location resolves where run outputs go: a local directory or an S3 prefix.
// Audit log files, crash dumps and file-based sinks are all created through a Location.
package location

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LocationError wraps structured error information for output locations.
type LocationError struct {
	Op  string
	Err error
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("location %s: %v", e.Op, e.Err)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// Location creates named outputs.
type Location interface {
	// Create opens a new output. The content is durable once Close returns nil.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	// Path returns a human-readable address for name.
	Path(name string) string
}

// FileLocation writes outputs into a local directory, creating it on demand.
type FileLocation struct {
	Dir string
}

// Create implements Location.
func (f FileLocation) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if f.Dir != "" {
		if err := os.MkdirAll(f.Dir, 0o755); err != nil {
			return nil, &LocationError{Op: "mkdir", Err: err}
		}
	}
	file, err := os.Create(f.Path(name))
	if err != nil {
		return nil, &LocationError{Op: "create", Err: err}
	}
	return file, nil
}

// Path implements Location.
func (f FileLocation) Path(name string) string {
	return filepath.Join(f.Dir, name)
}

// PutObjectAPI is the subset of the S3 client used to store objects.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Location writes outputs as objects under a bucket prefix.
// Objects are buffered in memory and uploaded on Close.
type S3Location struct {
	Bucket string
	Prefix string
	Client PutObjectAPI
}

func (s S3Location) key(name string) string {
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

// Create implements Location.
func (s S3Location) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if s.Client == nil {
		return nil, &LocationError{Op: "create", Err: fmt.Errorf("no S3 client for bucket %s", s.Bucket)}
	}
	return &s3WriteCloser{
		ctx:    ctx,
		client: s.Client,
		bucket: s.Bucket,
		key:    s.key(name),
	}, nil
}

// Path implements Location.
func (s S3Location) Path(name string) string {
	return "s3://" + s.Bucket + "/" + s.key(name)
}

type s3WriteCloser struct {
	ctx    context.Context
	client PutObjectAPI
	bucket string
	key    string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *s3WriteCloser) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, &LocationError{Op: "write", Err: os.ErrClosed}
	}
	return w.buf.Write(p)
}

// Close uploads the buffered object. Repeated calls are no-ops.
func (w *s3WriteCloser) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
	})
	if err != nil {
		return &LocationError{Op: "put_object", Err: err}
	}
	return nil
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.TrimSuffix(key, "/"), true
}

// Parse resolves a directory target: a local path or s3://bucket/prefix.
func Parse(ctx context.Context, target string, opts AWSOptions) (Location, error) {
	if !strings.HasPrefix(target, "s3://") {
		return FileLocation{Dir: target}, nil
	}
	bucket, prefix, ok := ParseS3URI(target)
	if !ok {
		return nil, &LocationError{Op: "parse", Err: fmt.Errorf("invalid S3 URI %q", target)}
	}
	client, err := NewS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return S3Location{Bucket: bucket, Prefix: prefix, Client: client}, nil
}

// ParseTarget resolves a file target into its enclosing location and file name.
func ParseTarget(ctx context.Context, target string, opts AWSOptions) (Location, string, error) {
	if strings.HasPrefix(target, "s3://") {
		bucket, key, ok := ParseS3URI(target)
		if !ok || key == "" {
			return nil, "", &LocationError{Op: "parse", Err: fmt.Errorf("invalid S3 object URI %q", target)}
		}
		dir, name := path.Split(key)
		loc, err := Parse(ctx, "s3://"+bucket+"/"+strings.TrimSuffix(dir, "/"), opts)
		if err != nil {
			return nil, "", err
		}
		return loc, name, nil
	}
	if target == "" {
		return nil, "", &LocationError{Op: "parse", Err: fmt.Errorf("empty output path")}
	}
	return FileLocation{Dir: filepath.Dir(target)}, filepath.Base(target), nil
}
