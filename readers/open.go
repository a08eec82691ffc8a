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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/location"
)

// OpenOptions configures Open.
type OpenOptions struct {
	CSV      []ReaderOptionCSV
	AWS      location.AWSOptions
	S3Client GetObjectAPI
}

// Open returns a DataSource for a local path or an s3://bucket/key URI. The format is
// chosen by extension: .csv for delimited text; .json, .jsonl and .ndjson for JSON
// lines; .parquet for Parquet files.
func Open(ctx context.Context, input string, opts OpenOptions) (goingest.DataSource, error) {
	if bucket, key, ok := location.ParseS3URI(input); ok {
		s3opts := []ReaderOptionS3{
			WithS3Object(bucket, key),
			WithS3AWS(opts.AWS),
			WithS3CSVOptions(opts.CSV...),
		}
		if opts.S3Client != nil {
			s3opts = append(s3opts, WithS3Client(opts.S3Client))
		}
		r, err := NewS3Reader(ctx, s3opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	format, err := formatForKey(filepath.Base(input))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", input, err)
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", input, err)
	}

	switch format {
	case formatCSV:
		r, err := NewCSVReader(f, opts.CSV...)
		if err != nil {
			f.Close()
			return nil, err
		}
		return r, nil
	case formatParquet:
		r, err := NewParquetReader(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", input, err)
		}
		return r, nil
	default:
		return NewJSONReader(f), nil
	}
}
