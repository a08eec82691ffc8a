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

// Package runner executes one ingest from configuration to audit output. It is the
// single boundary where fatal errors and panics are turned into a crash dump.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/goingest"
	"github.com/aaronlmathis/goingest/audit"
	"github.com/aaronlmathis/goingest/config"
	"github.com/aaronlmathis/goingest/engine"
	"github.com/aaronlmathis/goingest/location"
	"github.com/aaronlmathis/goingest/logging"
	"github.com/aaronlmathis/goingest/readers"
	"github.com/aaronlmathis/goingest/schema"
)

const origin = "runner"

// CrashError is returned when a run ends on the crash path.
type CrashError struct {
	Path    string // Crash file location; empty when it could not be written
	Err     error
	DumpErr error
}

func (e *CrashError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("critical error: %v\ncrash log could not be written: %v", e.Err, e.DumpErr)
	}
	return fmt.Sprintf("critical error: %v\ncrash log written to %s", e.Err, e.Path)
}

func (e *CrashError) Unwrap() error {
	return e.Err
}

// SourceOpener opens the input of a run.
type SourceOpener func(ctx context.Context, input string) (goingest.DataSource, error)

// SinkOpener opens the destination of the retained rows.
type SinkOpener func(ctx context.Context, cfg *config.Config, header []string) (goingest.DataSink, error)

// Options configures Run.
type Options struct {
	Config     *config.Config
	Input      string // Overrides Config.Input
	SchemaPath string // Overrides Config.SchemaPath

	Logger    *slog.Logger     // Operational logger; discards when nil
	SessionID string           // Defaults to a fresh UUIDv7
	Now       func() time.Time // Audit clock; defaults to time.Now

	LogLocation location.Location // Overrides Config.Logging.Output
	OpenSource  SourceOpener      // Defaults to readers.Open with the configured dialect
	OpenSink    SinkOpener        // Defaults to OpenSink
}

// Result summarises a run that did not crash.
type Result struct {
	SessionID string
	Load      goingest.LoadStats
	Report    engine.Report
	Outputs   []audit.Output
	SinkErr   error // Recovered sink failure, also logged
	Aborted   bool  // No data was loaded
}

type run struct {
	opts   Options
	cfg    *config.Config
	input  string
	schema string
	sch    *schema.Schema
	rc     *audit.RunContext
	loc    location.Location
	format audit.Format
	logger *slog.Logger
	result *Result
}

// Run executes one ingest: load the schema, read the input, validate it, hand the
// retained rows to the sink and flush the audit buffer. A schema that fails to load
// or fails its integrity check is returned as a plain error before any audit entry
// exists. Later fatal errors and panics end in a crash dump and a *CrashError.
func Run(ctx context.Context, opts Options) (res *Result, err error) {
	r, err := newRun(ctx, opts)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = r.result, r.crash(ctx, fmt.Errorf("panic: %v", p))
		}
	}()

	if err := r.pipeline(ctx); err != nil {
		return r.result, r.crash(ctx, err)
	}
	return r.result, nil
}

func newRun(ctx context.Context, opts Options) (*run, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("runner: config is required")
	}

	profile, err := cfg.AuditProfile()
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	format, err := audit.ParseFormat(cfg.Logging.FileFormat)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	loc := opts.LogLocation
	if loc == nil {
		loc, err = location.Parse(ctx, cfg.Logging.Output, cfg.AWSOptions())
		if err != nil {
			return nil, fmt.Errorf("runner: log output: %w", err)
		}
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Setup(io.Discard, cfg.Logging.Level, cfg.Logging.Format)
	}
	logger = logging.WithRun(logger, sessionID, cfg.UserID)

	schemaPath := firstNonEmpty(opts.SchemaPath, cfg.SchemaPath)
	s, err := schema.Load(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	r := &run{
		opts:   opts,
		cfg:    cfg,
		input:  firstNonEmpty(opts.Input, cfg.Input),
		schema: schemaPath,
		sch:    s,
		loc:    loc,
		format: format,
		logger: logger,
		result: &Result{SessionID: sessionID},
	}
	r.rc = audit.NewRunContext(audit.Options{
		SessionID:     sessionID,
		UserID:        cfg.UserID,
		CascadeReject: cfg.CascadeReject,
		Profile:       profile,
		LogToConsole:  cfg.Logging.LogToConsole,
		MergeLogs:     cfg.Logging.MergeLogs,
		Logger:        logger,
		Now:           opts.Now,
	})
	return r, nil
}

func (r *run) pipeline(ctx context.Context) error {
	r.logger.Info("run started", "input", r.input, "schema", r.schema)

	s := r.sch

	if r.cfg.Sink.Verify {
		if err := VerifySink(ctx, r.cfg); err != nil {
			return fmt.Errorf("sink pre-flight: %w", err)
		}
	}

	if r.input == "" {
		return errors.New("no input given")
	}
	// An empty input may surface either when the source reads its header or in Load.
	var table *goingest.Table
	src, err := r.openSource(ctx, s.ColumnNames())
	if err == nil {
		defer src.Close()
		table, r.result.Load, err = goingest.Load(ctx, src, s.ColumnNames())
	}
	stats := r.result.Load
	if errors.Is(err, goingest.ErrNoData) {
		r.rc.Log(audit.TypeError, audit.ClassErrorCritical, origin, "Aborting pipeline: no data loaded.")
		r.result.Aborted = true
		return r.flush(ctx)
	}
	if err != nil {
		return err
	}

	r.rc.Log(audit.TypeEvent, audit.ClassInfoDetailed, "loader",
		fmt.Sprintf("Successfully loaded %d rows from %s", table.Len(), r.input))
	if len(stats.Dropped) > 0 {
		r.rc.Log(audit.TypeEvent, audit.ClassInfoDetailed, "loader",
			fmt.Sprintf("Dropped columns not in schema: %s", strings.Join(stats.Dropped, ", ")))
	}

	retained, report, err := engine.New(s, r.rc).Validate(ctx, table)
	r.result.Report = report
	if err != nil {
		return err
	}
	r.logger.Info("validation complete",
		"rows_in", report.RowsIn,
		"retained", report.RowsRetained,
		"rejected", report.RowsRejected,
		"null_key", report.NullKeyExcluded,
		"groups_rejected", report.GroupsRejected,
		"duration", report.Duration)

	if r.cfg.Sink.Kind != config.SinkNone {
		r.send(ctx, retained)
	}

	r.rc.Log(audit.TypeEvent, audit.ClassProcedureStatus, origin, fmt.Sprintf("%s process complete", r.input))
	return r.flush(ctx)
}

// openSource opens the input. A headerless CSV takes its column names from the
// schema, in declaration order.
func (r *run) openSource(ctx context.Context, columns []string) (goingest.DataSource, error) {
	if r.opts.OpenSource != nil {
		return r.opts.OpenSource(ctx, r.input)
	}
	csvOpts := []readers.ReaderOptionCSV{
		readers.WithCSVComma(r.cfg.Comma()),
		readers.WithCSVTrimSpace(r.cfg.Source.TrimSpace),
		readers.WithCSVLazyQuotes(r.cfg.Source.LazyQuotes),
	}
	if c := r.cfg.CommentRune(); c != 0 {
		csvOpts = append(csvOpts, readers.WithCSVComment(c))
	}
	if r.cfg.Source.NoHeader {
		csvOpts = append(csvOpts, readers.WithCSVHasHeaders(false), readers.WithCSVColumns(columns))
	}
	return readers.Open(ctx, r.input, readers.OpenOptions{CSV: csvOpts, AWS: r.cfg.AWSOptions()})
}

// send writes the retained table. Failures are logged and recorded, never fatal.
func (r *run) send(ctx context.Context, table *goingest.Table) {
	r.rc.Log(audit.TypeEvent, audit.ClassFunctionCall, origin, fmt.Sprintf("Sending %d rows to sink", table.Len()))

	open := r.opts.OpenSink
	if open == nil {
		open = OpenSink
	}
	sink, err := open(ctx, r.cfg, table.Header())
	if err == nil && sink != nil {
		err = goingest.WriteTable(ctx, sink, table)
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		r.result.SinkErr = err
		r.rc.Log(audit.TypeError, audit.ClassErrorRecoverable, "sink",
			fmt.Sprintf("%s sink failed: %v", r.cfg.Sink.Kind, err))
		r.logger.Warn("sink failed", "kind", r.cfg.Sink.Kind, "error", err)
	}
}

func (r *run) flush(ctx context.Context) error {
	outputs, err := audit.Flush(ctx, r.rc, r.loc, r.format)
	r.result.Outputs = outputs
	if err != nil {
		return err
	}
	for _, o := range outputs {
		r.logger.Info("audit log written", "group", o.Group, "path", o.Path, "entries", o.Entries)
	}
	return nil
}

// crash dumps the whole buffer and wraps cause. The dump ignores cancellation of ctx
// so an interrupted run still leaves its trail.
func (r *run) crash(ctx context.Context, cause error) error {
	out, err := audit.CrashDump(context.WithoutCancel(ctx), r.rc, r.loc, r.format, cause)
	if err != nil {
		r.logger.Error("crash dump failed", "cause", cause, "error", err)
		return &CrashError{Err: cause, DumpErr: err}
	}
	r.logger.Error("run crashed", "error", cause, "crash_log", out.Path)
	return &CrashError{Path: out.Path, Err: cause}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
