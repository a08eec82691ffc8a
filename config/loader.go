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

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/goingest/audit"
	"github.com/aaronlmathis/goingest/location"
	"github.com/aaronlmathis/goingest/writers"
)

// Load reads a YAML or JSON configuration file.
// It expands environment references, applies defaults for unset values and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "logs"
	}
	if c.Logging.FileFormat == "" {
		c.Logging.FileFormat = string(audit.FormatCSV)
	}
	if c.Source.Comma == "" {
		c.Source.Comma = ","
	}
	if c.Sink.Kind == "" {
		c.Sink.Kind = SinkNone
	}
	c.Sink.Kind = strings.ToLower(c.Sink.Kind)
	if c.Sink.BatchSize == 0 {
		c.Sink.BatchSize = 1000
	}
	if c.Sink.Compression == "" {
		c.Sink.Compression = "snappy"
	}
	if c.Sink.Timeout == 0 {
		c.Sink.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.SchemaPath == "" {
		errs = append(errs, "schema_path is required")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("logging.format (%q) must be one of: text, json", c.Logging.Format))
	}
	if _, err := audit.ParseFormat(c.Logging.FileFormat); err != nil {
		errs = append(errs, fmt.Sprintf("logging.file_format: %v", err))
	}
	if _, err := c.AuditProfile(); err != nil {
		errs = append(errs, fmt.Sprintf("logging.profile: %v", err))
	}

	// Source validation
	if utf8.RuneCountInString(c.Source.Comma) != 1 {
		errs = append(errs, fmt.Sprintf("source.comma (%q) must be a single character", c.Source.Comma))
	}
	if utf8.RuneCountInString(c.Source.Comment) > 1 {
		errs = append(errs, fmt.Sprintf("source.comment (%q) must be a single character", c.Source.Comment))
	}

	// Sink validation
	if c.Sink.BatchSize < 0 {
		errs = append(errs, "sink.batch_size must be non-negative")
	}
	if c.Sink.RowGroupSize < 0 {
		errs = append(errs, "sink.row_group_size must be non-negative")
	}
	if c.Sink.Timeout < 0 {
		errs = append(errs, "sink.timeout must be non-negative")
	}
	p := c.Sink.Pool
	if p.MaxOpen < 0 || p.MaxIdle < 0 || p.MaxLifetime < 0 || p.MaxIdleTime < 0 {
		errs = append(errs, "sink.pool values must be non-negative")
	} else if p.MaxOpen > 0 && p.MaxIdle > p.MaxOpen {
		errs = append(errs, fmt.Sprintf("sink.pool.max_idle (%d) must not exceed sink.pool.max_open (%d)", p.MaxIdle, p.MaxOpen))
	}
	switch c.Sink.Kind {
	case SinkNone:
	case SinkCSV, SinkJSONL, SinkParquet:
		if c.Sink.Path == "" {
			errs = append(errs, fmt.Sprintf("sink.path is required for %s sinks", c.Sink.Kind))
		}
		if c.Sink.Kind == SinkParquet {
			if _, err := writers.ParseCompression(c.Sink.Compression); err != nil {
				errs = append(errs, fmt.Sprintf("sink.compression: %v", err))
			}
		}
	case SinkPostgres:
		if c.Sink.DSN == "" {
			errs = append(errs, "sink.dsn is required for postgres sinks")
		}
		if c.Sink.Table == "" {
			errs = append(errs, "sink.table is required for postgres sinks")
		}
		res, err := writers.ParseConflictResolution(c.Sink.Conflict)
		if err != nil {
			errs = append(errs, fmt.Sprintf("sink.conflict: %v", err))
		} else if res != writers.ConflictError && len(c.Sink.ConflictColumns) == 0 {
			errs = append(errs, "sink.conflict_columns is required when sink.conflict is ignore or update")
		}
	case SinkMongo:
		if c.Sink.DSN == "" {
			errs = append(errs, "sink.dsn is required for mongo sinks")
		}
		if c.Sink.Database == "" || c.Sink.Collection == "" {
			errs = append(errs, "sink.database and sink.collection are required for mongo sinks")
		}
	default:
		errs = append(errs, fmt.Sprintf("sink.kind (%q) must be one of: none, csv, jsonl, parquet, postgres, mongo", c.Sink.Kind))
	}

	// AWS validation
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		errs = append(errs, "aws.access_key_id and aws.secret_access_key must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// AuditProfile returns the retained log classes. An absent profile retains every
// class and is returned as nil.
func (c *Config) AuditProfile() (audit.Profile, error) {
	if c.Logging.Profile == nil {
		return nil, nil
	}
	return audit.ParseProfile(c.Logging.Profile)
}

// AWSOptions converts the aws section for the location and readers packages.
func (c *Config) AWSOptions() location.AWSOptions {
	opts := location.AWSOptions{
		Region:         c.AWS.Region,
		Profile:        c.AWS.Profile,
		EndpointURL:    c.AWS.Endpoint,
		ForcePathStyle: c.AWS.PathStyle,
	}
	if c.AWS.AccessKeyID != "" {
		opts.Credentials = aws.Credentials{
			AccessKeyID:     c.AWS.AccessKeyID,
			SecretAccessKey: c.AWS.SecretAccessKey,
		}
	}
	return opts
}

// Comma returns the CSV delimiter rune.
func (c *Config) Comma() rune {
	r, _ := utf8.DecodeRuneInString(c.Source.Comma)
	return r
}

// CommentRune returns the CSV comment rune, or 0 when comments are disabled.
func (c *Config) CommentRune() rune {
	if c.Source.Comment == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(c.Source.Comment)
	return r
}

// String returns a safe string representation of the config for logging.
// Connection strings and secrets are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("UserID: %q, SchemaPath: %q, Input: %q, CascadeReject: %v, ",
		c.UserID, c.SchemaPath, c.Input, c.CascadeReject))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q, Output: %q, FileFormat: %q, MergeLogs: %v}, ",
		c.Logging.Level, c.Logging.Format, c.Logging.Output, c.Logging.FileFormat, c.Logging.MergeLogs))
	dsn := ""
	if c.Sink.DSN != "" {
		dsn = "[MASKED]"
	}
	b.WriteString(fmt.Sprintf("Sink: {Kind: %q, Path: %q, DSN: %s, Table: %q}, ",
		c.Sink.Kind, c.Sink.Path, dsn, c.Sink.Table))
	b.WriteString(fmt.Sprintf("AWS: {Region: %q, Endpoint: %q}", c.AWS.Region, c.AWS.Endpoint))
	b.WriteString("}")
	return b.String()
}
