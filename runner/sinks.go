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

package runner

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/config"
	"github.com/aaronlmathis/goingest/location"
	"github.com/aaronlmathis/goingest/writers"
)

// OpenSink builds the configured sink for a table with the given header. It returns
// nil for the none kind.
func OpenSink(ctx context.Context, cfg *config.Config, header []string) (goingest.DataSink, error) {
	sc := cfg.Sink
	switch sc.Kind {
	case config.SinkNone:
		return nil, nil

	case config.SinkCSV, config.SinkJSONL, config.SinkParquet:
		loc, name, err := location.ParseTarget(ctx, sc.Path, cfg.AWSOptions())
		if err != nil {
			return nil, err
		}
		w, err := loc.Create(ctx, name)
		if err != nil {
			return nil, err
		}
		var sink goingest.DataSink
		switch sc.Kind {
		case config.SinkCSV:
			sink, err = writers.NewCSVWriter(w, csvSinkOptions(cfg, header)...)
		case config.SinkJSONL:
			sink = writers.NewJSONWriter(w,
				writers.WithFields(header),
				writers.WithJSONBatchSize(sc.BatchSize),
				writers.WithFlushOnWrite(false),
			)
		default:
			var opts []writers.WriterOption
			if opts, err = parquetSinkOptions(cfg, header); err == nil {
				sink, err = writers.NewParquetWriter(w, opts...)
			}
		}
		if err != nil {
			w.Close()
			return nil, err
		}
		return sink, nil

	case config.SinkPostgres:
		opts, err := postgresSinkOptions(cfg, header)
		if err != nil {
			return nil, err
		}
		return writers.NewPostgresWriter(ctx, opts...)

	case config.SinkMongo:
		return writers.NewMongoWriter(ctx, mongoSinkOptions(cfg, header)...)
	}
	return nil, fmt.Errorf("unknown sink kind %q", sc.Kind)
}

// VerifySink checks that a database sink is reachable before any record is read.
// File sinks need no check.
func VerifySink(ctx context.Context, cfg *config.Config) error {
	var sink goingest.DataSink
	var err error
	switch cfg.Sink.Kind {
	case config.SinkPostgres:
		var opts []writers.PostgresWriterOption
		if opts, err = postgresSinkOptions(cfg, nil); err == nil {
			// The header is unknown before loading, so only the table itself is checked.
			opts = append(opts, writers.WithConflictResolution(writers.ConflictError, nil, nil), writers.WithVerify(true))
			sink, err = writers.NewPostgresWriter(ctx, opts...)
		}
	case config.SinkMongo:
		sink, err = writers.NewMongoWriter(ctx, mongoSinkOptions(cfg, nil)...)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return sink.Close()
}

func csvSinkOptions(cfg *config.Config, header []string) []writers.WriterOptionCSV {
	return []writers.WriterOptionCSV{
		writers.WithHeaders(header),
		writers.WithComma(cfg.Comma()),
		writers.WithUseCRLF(cfg.Sink.CRLF),
		writers.WithCSVBatchSize(cfg.Sink.BatchSize),
	}
}

func parquetSinkOptions(cfg *config.Config, header []string) ([]writers.WriterOption, error) {
	codec, err := writers.ParseCompression(cfg.Sink.Compression)
	if err != nil {
		return nil, err
	}
	return []writers.WriterOption{
		writers.WithFieldOrder(header),
		writers.WithBatchSize(int64(cfg.Sink.BatchSize)),
		writers.WithRowGroupSize(cfg.Sink.RowGroupSize),
		writers.WithCompression(codec),
		writers.WithMetadata(map[string]string{"writer": "goingest"}),
	}, nil
}

func postgresSinkOptions(cfg *config.Config, header []string) ([]writers.PostgresWriterOption, error) {
	sc := cfg.Sink
	resolution, err := writers.ParseConflictResolution(sc.Conflict)
	if err != nil {
		return nil, err
	}
	return []writers.PostgresWriterOption{
		writers.WithPostgresDSN(sc.DSN),
		writers.WithTableName(sc.Table),
		writers.WithColumns(header),
		writers.WithPostgresBatchSize(sc.BatchSize),
		writers.WithVerify(sc.Verify),
		writers.WithConflictResolution(resolution, sc.ConflictColumns, updateColumns(header, sc.ConflictColumns)),
		writers.WithTransactionMode(sc.Transaction),
		writers.WithPostgresQueryTimeout(sc.Timeout),
		writers.WithPostgresConnectionPool(sc.Pool.MaxOpen, sc.Pool.MaxIdle, sc.Pool.MaxLifetime, sc.Pool.MaxIdleTime),
	}, nil
}

func mongoSinkOptions(cfg *config.Config, header []string) []writers.WriterOptionMongo {
	sc := cfg.Sink
	return []writers.WriterOptionMongo{
		writers.WithMongoURI(sc.DSN),
		writers.WithMongoDatabase(sc.Database),
		writers.WithMongoCollection(sc.Collection),
		writers.WithMongoFields(header),
		writers.WithMongoBatchSize(sc.BatchSize),
		writers.WithMongoTimeout(sc.Timeout),
		writers.WithMongoOrdered(!sc.Unordered),
	}
}

// updateColumns returns the header without the conflict columns.
func updateColumns(header, conflict []string) []string {
	skip := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		skip[c] = true
	}
	var out []string
	for _, h := range header {
		if !skip[h] {
			out = append(out, h)
		}
	}
	return out
}
