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

// Package config provides the run configuration of an ingest: where the schema and
// input live, the cascade policy, audit logging options, the source dialect, the
// sink and the AWS settings shared by S3 inputs and outputs.
package config

import "time"

// Config holds all run configuration.
// Values of the form ${NAME} are expanded from the environment when loading.
type Config struct {
	// UserID stamps every audit entry of the run
	UserID string `yaml:"user_id"`

	// SchemaPath is the YAML or JSON schema document (required)
	SchemaPath string `yaml:"schema_path"`

	// Input is a local .csv/.json/.jsonl path or s3://bucket/key; the CLI may override it
	Input string `yaml:"input"`

	// CascadeReject stops evaluation at the first failure (default: false)
	CascadeReject bool `yaml:"cascade_reject"`

	Logging LoggingConfig `yaml:"logging"`
	Source  SourceConfig  `yaml:"source"`
	Sink    SinkConfig    `yaml:"sink"`
	AWS     AWSConfig     `yaml:"aws"`
}

// LoggingConfig holds operational logging and audit output settings.
type LoggingConfig struct {
	// Level is the minimum console log level: debug, info, warn, error (default: info)
	Level string `yaml:"level"`

	// Format is the console log format: text or json (default: text)
	Format string `yaml:"format"`

	// LogToConsole echoes every audit entry through the console logger
	LogToConsole bool `yaml:"log_to_console"`

	// MergeLogs writes one MERGED audit file instead of one file per log type
	MergeLogs bool `yaml:"merge_logs"`

	// Output is the audit directory or s3://bucket/prefix (default: logs)
	Output string `yaml:"output"`

	// FileFormat is the audit file format: csv or jsonl (default: csv)
	FileFormat string `yaml:"file_format"`

	// Profile maps log classes to whether they are retained. Absent retains every class.
	Profile map[string]bool `yaml:"profile"`
}

// SourceConfig holds input dialect settings.
type SourceConfig struct {
	// Comma is the CSV field delimiter (default: ",")
	Comma string `yaml:"comma"`

	// Comment marks CSV comment lines; empty disables comments
	Comment string `yaml:"comment"`

	// TrimSpace trims leading space in CSV fields
	TrimSpace bool `yaml:"trim_space"`

	// LazyQuotes relaxes CSV quote handling
	LazyQuotes bool `yaml:"lazy_quotes"`

	// NoHeader reads the first CSV line as data; columns are named by schema order
	NoHeader bool `yaml:"no_header"`
}

// Sink kinds.
const (
	SinkNone     = "none"
	SinkCSV      = "csv"
	SinkJSONL    = "jsonl"
	SinkParquet  = "parquet"
	SinkPostgres = "postgres"
	SinkMongo    = "mongo"
)

// SinkConfig holds the destination of the retained rows.
type SinkConfig struct {
	// Kind is one of none, csv, jsonl, parquet, postgres, mongo (default: none)
	Kind string `yaml:"kind"`

	// Path is the output file or s3://bucket/key for file sinks
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string or the MongoDB URI
	DSN string `yaml:"dsn"`

	// Table is the PostgreSQL table, optionally schema-qualified
	Table string `yaml:"table"`

	// Database and Collection address the MongoDB collection
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`

	// BatchSize is rows per insert or flush (default: 1000)
	BatchSize int `yaml:"batch_size"`

	// Verify pings the sink before any record is read
	Verify bool `yaml:"verify"`

	// Conflict is the PostgreSQL conflict policy: error, ignore, update (default: error)
	Conflict        string   `yaml:"conflict"`
	ConflictColumns []string `yaml:"conflict_columns"`

	// Compression is the parquet codec: snappy, gzip, zstd, brotli (default: snappy)
	Compression string `yaml:"compression"`

	// RowGroupSize caps rows per parquet row group (default: 10000)
	RowGroupSize int64 `yaml:"row_group_size"`

	// CRLF ends csv sink lines with \r\n
	CRLF bool `yaml:"crlf"`

	// Timeout bounds each database statement and connection attempt (default: 30s)
	Timeout time.Duration `yaml:"timeout"`

	// Transaction commits all postgres rows at once when the sink is closed
	Transaction bool `yaml:"transaction"`

	// Unordered lets a mongo batch continue past a failed document
	Unordered bool `yaml:"unordered"`

	Pool PoolConfig `yaml:"pool"`
}

// PoolConfig sizes the postgres connection pool. Zero values keep the driver defaults
// chosen by the writer.
type PoolConfig struct {
	MaxOpen     int           `yaml:"max_open"`
	MaxIdle     int           `yaml:"max_idle"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// AWSConfig holds settings for S3 inputs and outputs.
type AWSConfig struct {
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Endpoint string `yaml:"endpoint"`

	// PathStyle forces path-style addressing for S3-compatible stores
	PathStyle bool `yaml:"path_style"`

	// AccessKeyID and SecretAccessKey override the default credential chain
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}
