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

package location

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	objects map[string][]byte
	calls   int
	fail    bool
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*in.Bucket+"/"+*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

// TestFileLocation_Create tests that outputs land in a created directory.
func TestFileLocation_Create(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	loc := FileLocation{Dir: dir}

	w, err := loc.Create(context.Background(), "out.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("a,b\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
	assert.Equal(t, filepath.Join(dir, "out.csv"), loc.Path("out.csv"))
}

// TestS3Location_UploadOnClose tests buffered upload and idempotent close.
func TestS3Location_UploadOnClose(t *testing.T) {
	putter := &fakePutter{}
	loc := S3Location{Bucket: "audit", Prefix: "runs/2025", Client: putter}

	w, err := loc.Create(context.Background(), "s1_INGEST.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, putter.calls, "nothing is uploaded before close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, putter.calls)
	assert.Equal(t, "hello", string(putter.objects["audit/runs/2025/s1_INGEST.csv"]))
	assert.Equal(t, "s3://audit/runs/2025/s1_INGEST.csv", loc.Path("s1_INGEST.csv"))

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

// TestS3Location_UploadError tests that upload failures surface on close.
func TestS3Location_UploadError(t *testing.T) {
	loc := S3Location{Bucket: "audit", Client: &fakePutter{fail: true}}
	w, err := loc.Create(context.Background(), "x.csv")
	require.NoError(t, err)

	err = w.Close()
	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
	assert.Equal(t, "put_object", locErr.Op)
}

// TestS3Location_NoClient tests that a location without a client refuses to create.
func TestS3Location_NoClient(t *testing.T) {
	_, err := S3Location{Bucket: "b"}.Create(context.Background(), "x")
	assert.Error(t, err)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, ok := ParseS3URI("s3://data/in/people.csv")
	require.True(t, ok)
	assert.Equal(t, "data", bucket)
	assert.Equal(t, "in/people.csv", key)

	bucket, key, ok = ParseS3URI("s3://data/")
	require.True(t, ok)
	assert.Equal(t, "data", bucket)
	assert.Empty(t, key)

	_, _, ok = ParseS3URI("s3:///x")
	assert.False(t, ok)
	_, _, ok = ParseS3URI("/tmp/x")
	assert.False(t, ok)
}

// TestParseTarget_Local tests splitting a local file target.
func TestParseTarget_Local(t *testing.T) {
	loc, name, err := ParseTarget(context.Background(), "out/clean.csv", AWSOptions{})
	require.NoError(t, err)
	assert.Equal(t, FileLocation{Dir: "out"}, loc)
	assert.Equal(t, "clean.csv", name)

	_, _, err = ParseTarget(context.Background(), "", AWSOptions{})
	assert.Error(t, err)

	_, _, err = ParseTarget(context.Background(), "s3://bucket", AWSOptions{})
	assert.Error(t, err)
}

// TestNewS3Client_Options tests that explicit settings override the default chain.
func TestNewS3Client_Options(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	assert.Empty(t, AWSOptions{}.loadOptions())

	opts := AWSOptions{
		Region:         "eu-west-1",
		Credentials:    aws.Credentials{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret"},
		EndpointURL:    "http://localhost:9000",
		ForcePathStyle: true,
	}
	assert.Len(t, opts.loadOptions(), 2)

	client, err := NewS3Client(context.Background(), opts)
	require.NoError(t, err)
	o := client.Options()
	assert.Equal(t, "eu-west-1", o.Region)
	assert.True(t, o.UsePathStyle)
	assert.Equal(t, "http://localhost:9000", aws.ToString(o.BaseEndpoint))

	creds, err := o.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
}
